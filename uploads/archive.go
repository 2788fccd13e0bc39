package uploads

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// WriteArchive writes every stored file into a flat zip on w and returns the
// number of entries. Source files are left in place.
func (d *Directory) WriteArchive(w io.Writer) (int, error) {
	filenames, err := d.Filenames()
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	added := 0
	for _, filename := range filenames {
		ok, err := addFileToZip(zw, filename)
		if err != nil {
			zw.Close()
			return added, fmt.Errorf("add %s to archive: %w", filepath.Base(filename), err)
		}
		if ok {
			added++
		}
	}
	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("finish archive: %w", err)
	}

	logrus.WithFields(logrus.Fields{"path": d.path, "entries": added}).Info("Archive written")
	return added, nil
}

// addFileToZip skips entries that are not regular files.
func addFileToZip(zw *zip.Writer, filename string) (bool, error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, err
	}
	hdr.Name = filepath.Base(filename)
	hdr.Method = zip.Deflate

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(entry, f); err != nil {
		return false, err
	}
	return true, nil
}
