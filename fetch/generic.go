package fetch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// isReadable ...
func isReadable(filename string) bool {
	f, err := os.Open(filename)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// readCloser closes a decoder and its underlying file together.
type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() (err error) {
	for _, c := range r.closers {
		if cerr := c(); err == nil {
			err = cerr
		}
	}
	return err
}

// Open returns a reader of the decompressed content of name. The codec is
// picked by extension: .zst, .gz and .xz are decoded; .csv, .tsv, .txt and
// .list are read as is.
func Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("[fetch] unable to read file [%s]: %w", name, err)
	}
	rc := &readCloser{closers: []func() error{f.Close}}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zst":
		d, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("[fetch] [zstd] unable to read file [%s]: %w", name, err)
		}
		rc.Reader = d
		rc.closers = append([]func() error{func() error { d.Close(); return nil }}, rc.closers...)
	case ".gz":
		z, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("[fetch] [gzip] unable to read file [%s]: %w", name, err)
		}
		rc.Reader = z
		rc.closers = append([]func() error{z.Close}, rc.closers...)
	case ".xz":
		x, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("[fetch] [xz] unable to read file [%s]: %w", name, err)
		}
		rc.Reader = x
	case ".csv", ".tsv", ".txt", ".list":
		rc.Reader = f
	default:
		f.Close()
		return nil, fmt.Errorf("%w [%s]", ErrFormat, name)
	}
	return rc, nil
}

// Recompress converts a gzip file into a zstd sibling (name.zst instead of
// name.gz) for faster repeated reads, and returns the path to use. An
// existing zstd sibling is reused; other files are returned unchanged.
func Recompress(name string, level int) (string, error) {
	if !strings.HasSuffix(name, ".gz") {
		return name, nil
	}
	zFile := strings.TrimSuffix(name, ".gz") + ".zst"
	if isReadable(zFile) {
		return zFile, nil
	}
	in, err := Open(name)
	if err != nil {
		return name, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(zFile), "."+filepath.Base(zFile)+".*")
	if err != nil {
		return name, fmt.Errorf("[fetch] [zstd] unable to write file [%s]: %w", zFile, err)
	}
	defer os.Remove(tmp.Name())
	if level > 19 {
		level = 19
	}
	w, err := zstd.NewWriter(tmp,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(false),
		zstd.WithZeroFrames(false),
		zstd.WithLowerEncoderMem(false),
		zstd.WithAllLitEntropyCompression(true),
		zstd.WithNoEntropyCompression(false))
	if err != nil {
		tmp.Close()
		return name, fmt.Errorf("[fetch] [zstd] unable to create writer: %w", err)
	}
	_, err = io.Copy(w, in)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return name, fmt.Errorf("[fetch] [zstd] unable to convert [%s]: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), zFile); err != nil {
		return name, fmt.Errorf("[fetch] [zstd] unable to write file [%s]: %w", zFile, err)
	}
	return zFile, nil
}
