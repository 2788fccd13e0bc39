package uploads

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// MigrateLegacy drains legacyDir into the directory: every entry except
// .DS_Store is copied, each source that copied cleanly is removed, and then
// legacyDir itself is removed. It reports how many files moved and whether
// legacyDir is gone. A missing legacyDir is a no-op.
func (d *Directory) MigrateLegacy(legacyDir string) (int, bool, error) {
	entries, err := os.ReadDir(legacyDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	log := logrus.WithFields(logrus.Fields{"source": legacyDir, "path": d.path})

	var copied []string
	for _, entry := range entries {
		if entry.Name() == ".DS_Store" {
			continue
		}
		src := filepath.Join(legacyDir, entry.Name())
		if err := copyFile(src, filepath.Join(d.path, entry.Name())); err != nil {
			log.WithField("file", entry.Name()).WithError(err).Warn("Failed to copy legacy upload")
			continue
		}
		copied = append(copied, src)
	}

	for _, src := range copied {
		if err := os.Remove(src); err != nil {
			log.WithField("file", src).WithError(err).Warn("Failed to remove legacy upload")
		}
	}

	if err := os.Remove(legacyDir); err != nil {
		log.WithError(err).Warn("Legacy upload directory not removed")
		return len(copied), false, nil
	}

	log.WithField("moved", len(copied)).Info("Legacy uploads migrated")
	return len(copied), true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("not a regular file")
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
