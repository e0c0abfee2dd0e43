package firewall

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Archiver packages the behavior log, the interaction log and the action
// audit log into a timestamped zip when a device is contained.
type Archiver struct {
	dir     string
	sources []string
}

// NewArchiver writes archives into dir, packaging the given files.
func NewArchiver(dir string, sources ...string) *Archiver {
	return &Archiver{dir: dir, sources: sources}
}

// Archive writes evidence_<ts>.zip and returns its path. Missing source files
// are skipped; the archive is still produced.
func (a *Archiver) Archive() (string, error) {
	path := filepath.Join(a.dir, fmt.Sprintf("evidence_%s.zip", time.Now().Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create evidence archive: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	for _, src := range a.sources {
		if err := addFile(w, src); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("archive %s: %w", src, err)
		}
	}
	return path, nil
}

func addFile(w *zip.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := w.Create(filepath.Base(src))
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	return err
}
