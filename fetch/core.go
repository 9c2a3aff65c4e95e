package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Download fetches src.URL into src.File. The body is staged in a temporary
// file next to the target, so a failed transfer never leaves a partial cache.
func Download(ctx context.Context, client *http.Client, src Source) error {
	if client == nil {
		client = NewClient(0)
	}
	request, err := getRequest(ctx, src.URL, src.UserAgent)
	if err != nil {
		return fmt.Errorf("%w [%s] [%v]", ErrDownload, src.Name, err)
	}
	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("%w [%s] [%v]", ErrDownload, src.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		return fmt.Errorf("%w [%s] [status %d]", ErrDownload, src.Name, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(src.File), 0o770); err != nil {
		return fmt.Errorf("%w [%s] [%v]", ErrDownload, src.Name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(src.File), "."+filepath.Base(src.File)+".*")
	if err != nil {
		return fmt.Errorf("%w [%s] [%v]", ErrDownload, src.Name, err)
	}
	defer os.Remove(tmp.Name())

	maxsize := src.MaxSizeMB * 1024 * 1024
	if maxsize <= 0 {
		maxsize = 1 << 30
	}
	l, err := io.Copy(tmp, io.LimitReader(resp.Body, maxsize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		return fmt.Errorf("%w [%s] [%v]", ErrDownload, src.Name, err)
	case l == 0:
		return fmt.Errorf("%w [%s] [empty body]", ErrDownload, src.Name)
	case l > maxsize:
		return fmt.Errorf("%w [%s] [exceeds %d MB]", ErrDownload, src.Name, src.MaxSizeMB)
	}
	if err := os.Rename(tmp.Name(), src.File); err != nil {
		return fmt.Errorf("%w [%s] [%v]", ErrDownload, src.Name, err)
	}
	return nil
}
