package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutOpenDelete(t *testing.T) {
	t.Parallel()
	s, err := New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	key, err := s.Put("Hoa Don Thang 3.JPG", []byte("jpeg bytes"))
	require.NoError(t, err)
	require.Equal(t, ".jpg", filepath.Ext(key))
	require.NoError(t, ValidateKey(key))

	obj, err := s.Open(key)
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	require.Equal(t, "jpeg bytes", string(data))
	require.Equal(t, int64(10), obj.Size)
	require.Equal(t, "image/jpeg", obj.ContentType)

	require.NoError(t, s.Delete(key))
	_, err = s.Open(key)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(key))
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	a, err := s.Put("a.png", []byte("a"))
	require.NoError(t, err)
	b, err := s.Put("a.png", []byte("b"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestValidateKey(t *testing.T) {
	t.Parallel()
	for _, key := range []string{
		"",
		"../etc/passwd",
		"report.xlsx",
		"0b3c1f0e-7a52-4b8e-9d8a-2f6f1d1c9e10/../x",
		"0b3c1f0e-7a52-4b8e-9d8a-2f6f1d1c9e10.tar.gz",
		"0b3c1f0e7a524b8e9d8a2f6f1d1c9e10.png",
	} {
		require.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
	require.NoError(t, ValidateKey("0b3c1f0e-7a52-4b8e-9d8a-2f6f1d1c9e10.png"))
	require.NoError(t, ValidateKey("0b3c1f0e-7a52-4b8e-9d8a-2f6f1d1c9e10"))
}

func TestContentType(t *testing.T) {
	t.Parallel()
	require.Equal(t, "image/tiff", ContentType("x.TIF"))
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType("x.xlsx"))
	require.Equal(t, "application/octet-stream", ContentType("x"))
}
