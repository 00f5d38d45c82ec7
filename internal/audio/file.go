package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// File is an audio file on local disk that lives for one request.
type File struct {
	Path     string
	Filename string // name supplied by the client, informational only
}

// Transcoder converts an audio file into the service's target format.
type Transcoder interface {
	Transcode(ctx context.Context, in File) (File, error)
	Format() string
}

// Store copies r into a uniquely named file under dir. The extension of
// filename is kept so conversion tools can sniff the container.
func Store(dir, filename string, r io.Reader) (File, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return File{}, fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return File{}, fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return File{}, fmt.Errorf("close upload file: %w", err)
	}

	return File{Path: path, Filename: filename}, nil
}

// Remove deletes the file. A file that is already gone is not an error.
func Remove(f File) error {
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", f.Path, err)
	}
	return nil
}
