package uploads

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// AllowedExtensions lists the accepted extensions in enumeration order.
// Matching is exact and case-sensitive, so "Pdf" is rejected.
var AllowedExtensions = []string{"pdf", "PDF", "jpg", "JPG", "jpeg", "JPEG"}

const (
	// StampLayout renders as month.day.year-hour.minuteAM, e.g. 3.7.2024-09.05PM.
	StampLayout = "1.2.2006-03.04PM"

	archiveStampLayout = "1-2-2006"
	archivePrefix      = "4culture-w9-uploads_"
)

var nameReplacer = strings.NewReplacer(" ", "-", "/", "-", `\`, "-")

// Extension returns the text after the last dot of the base name, without the dot.
func Extension(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filepath.Base(filename)), ".")
}

func ValidExtension(ext string) bool {
	return slices.Contains(AllowedExtensions, ext)
}

// StoredName builds {name}_{stamp}.{ext} for a submission. Leading dots of
// the name become hyphens so the stored file is never hidden.
func StoredName(displayName, ext string, now time.Time) string {
	name := nameReplacer.Replace(displayName)
	trimmed := strings.TrimLeft(name, ".")
	name = strings.Repeat("-", len(name)-len(trimmed)) + trimmed
	return name + "_" + now.Format(StampLayout) + "." + ext
}

// ArchiveName is the download filename of the zip archive for the given day.
func ArchiveName(now time.Time) string {
	return archivePrefix + now.Format(archiveStampLayout) + ".zip"
}
