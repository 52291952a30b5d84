// Package storage keeps uploaded bill images and generated reports on local disk.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("stored object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Object is a stored file opened for reading.
type Object struct {
	io.ReadSeekCloser
	Key         string
	Size        int64
	ContentType string
}

// Store is a flat directory of objects named <uuid><ext>.
type Store struct {
	base string
}

// New creates base if needed.
func New(base string) (*Store, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", base, err)
	}
	return &Store{base: base}, nil
}

// Base returns the storage directory.
func (s *Store) Base() string { return s.base }

// Put writes data under a fresh key that keeps the lower-cased extension of name.
func (s *Store) Put(name string, data []byte) (string, error) {
	key := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(name)))
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.base, ".put-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.base, key)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return key, nil
}

// Open returns the object stored under key.
func (s *Store) Open(key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.base, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Object{ReadSeekCloser: f, Key: key, Size: fi.Size(), ContentType: ContentType(key)}, nil
}

// ReadAll returns the full contents stored under key.
func (s *Store) ReadAll(key string) ([]byte, error) {
	obj, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.base, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ValidateKey accepts only keys produced by Put: a UUID plus an optional extension.
func ValidateKey(key string) error {
	id, ext, _ := strings.Cut(key, ".")
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if strings.ContainsAny(ext, `./\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ContentType guesses a MIME type from the key's extension.
func ContentType(key string) string {
	switch ext := strings.ToLower(filepath.Ext(key)); ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
