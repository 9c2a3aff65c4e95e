package fetch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Extract unpacks the zip archive into dir and returns the number of files
// written. Entries resolving outside dir fail with ErrUnsafePath.
func Extract(archive, dir string) (int, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("[fetch] [zip] unable to open [%s]: %w", archive, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return count, fmt.Errorf("%w [%s]", ErrUnsafePath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o770); err != nil {
				return count, err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return count, fmt.Errorf("[fetch] [zip] unable to extract [%s]: %w", f.Name, err)
		}
		count++
	}
	return count, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o770); err != nil {
		return err
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o660)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Find walks dir and returns the path of the first regular file called name.
func Find(dir, name string) (string, error) {
	found := ""
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("[fetch] unable to search [%s]: %w", dir, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w [%s] [in %s]", ErrNotFound, name, dir)
	}
	return found, nil
}
