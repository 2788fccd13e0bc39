// Package uploads manages the flat directory of submitted documents.
//
// Concurrent requests are not coordinated: two uploads with the same name in
// the same minute overwrite each other, and a delete may race an archive that
// is still reading. Both are accepted for a low-traffic back-office tool.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"w9-uploads/core"

	"github.com/sirupsen/logrus"
)

// DirMode keeps the upload directory private to the service account.
const DirMode os.FileMode = 0o700

type Directory struct {
	path string
}

func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

func (d *Directory) Path() string {
	return d.path
}

func (d *Directory) Exists() bool {
	info, err := os.Stat(d.path)
	return err == nil && info.IsDir()
}

// Ensure creates the directory when it is missing and reports whether it did.
func (d *Directory) Ensure() (bool, error) {
	if d.Exists() {
		return false, nil
	}
	if err := os.Mkdir(d.path, DirMode); err != nil {
		return false, fmt.Errorf("create upload directory %s: %w", d.path, err)
	}
	logrus.WithField("path", d.path).Info("Upload directory created")
	return true, nil
}

// Filenames returns the full paths of every stored file, grouped by extension
// in AllowedExtensions order and sorted by name inside each group. Names
// starting with a dot are never matched.
func (d *Directory) Filenames() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read upload directory: %w", err)
	}

	groups := make(map[string][]string, len(AllowedExtensions))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		for _, ext := range AllowedExtensions {
			if strings.HasSuffix(name, "."+ext) {
				groups[ext] = append(groups[ext], filepath.Join(d.path, name))
				break
			}
		}
	}

	var filenames []string
	for _, ext := range AllowedExtensions {
		group := groups[ext]
		sort.Strings(group)
		filenames = append(filenames, group...)
	}
	return filenames, nil
}

// Count returns the number of stored files, or 0 when the directory cannot be read.
func (d *Directory) Count() int {
	filenames, err := d.Filenames()
	if err != nil {
		logrus.WithField("path", d.path).WithError(err).Warn("Failed to count uploads")
		return 0
	}
	return len(filenames)
}

func (d *Directory) IsEmpty() bool {
	return d.Count() == 0
}

// List returns the stored files with the directory prefix stripped.
func (d *Directory) List() ([]core.StoredFile, error) {
	filenames, err := d.Filenames()
	if err != nil {
		return nil, err
	}
	files := make([]core.StoredFile, 0, len(filenames))
	for _, filename := range filenames {
		file := core.StoredFile{Name: filepath.Base(filename)}
		if info, err := os.Stat(filename); err == nil {
			file.Size = info.Size()
			file.ModTime = info.ModTime()
		}
		files = append(files, file)
	}
	return files, nil
}

// Save copies src into the directory under name, replacing any file of the
// same name. The content is written to a hidden temp file first and renamed
// into place, so a failed write never leaves a partial document behind.
func (d *Directory) Save(src io.Reader, name string) (string, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid stored file name %q", name)
	}
	target := filepath.Join(d.path, name)
	log := logrus.WithFields(logrus.Fields{"file": name, "path": d.path})

	tmp, err := os.CreateTemp(d.path, ".upload-*.tmp")
	if err != nil {
		log.WithError(err).Error("Failed to create temp upload file")
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.WithError(err).Error("Failed to write upload")
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		log.WithError(err).Error("Failed to move upload into place")
		return "", err
	}

	log.Info("Upload stored")
	return target, nil
}

// DeleteAll unlinks every stored file that is a regular file and skips
// anything else. Individual failures are logged, not returned; the result is
// the number of files removed.
func (d *Directory) DeleteAll() int {
	filenames, err := d.Filenames()
	if err != nil {
		logrus.WithField("path", d.path).WithError(err).Error("Failed to enumerate uploads for deletion")
		return 0
	}

	removed := 0
	for _, filename := range filenames {
		info, err := os.Stat(filename)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(filename); err != nil {
			logrus.WithField("file", filename).WithError(err).Warn("Failed to delete upload")
			continue
		}
		removed++
	}

	logrus.WithFields(logrus.Fields{"path": d.path, "removed": removed}).Info("Uploads deleted")
	return removed
}
