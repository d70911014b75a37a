package output

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	appLog "discordcal/internal/log"
)

// Writer persists the generated calendar document.
type Writer struct {
	Path string
}

// NewWriter returns a Writer targeting path.
func NewWriter(path string) *Writer {
	return &Writer{Path: path}
}

// Write replaces the file at w.Path with doc.
//
// The parent directory is created (0755) if needed and the document is
// written to a temp file in the same directory, then renamed over the target
// so readers never observe a partial feed. The final file is 0644.
func (w *Writer) Write(doc string) error {
	if w.Path == "" {
		return errors.New("output path is empty")
	}

	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".discordcal-*.ics.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.WriteString(tmp, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, w.Path); err != nil {
		return err
	}

	appLog.Info("calendar written", "path", w.Path, "bytes", len(doc))
	return nil
}

// CopyPublicAssets copies the regular files directly under srcDir into
// dstDir, overwriting existing files. An empty srcDir is a no-op.
// Subdirectories are not descended into.
func CopyPublicAssets(srcDir, dstDir string) error {
	if srcDir == "" {
		return nil
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("read public dir: %w", err)
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	copied := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, e.Name()), filepath.Join(dstDir, e.Name())); err != nil {
			return fmt.Errorf("copy %s: %w", e.Name(), err)
		}
		copied++
	}

	appLog.Debug("public assets copied", "src", srcDir, "dst", dstDir, "files", copied)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(0o644))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
