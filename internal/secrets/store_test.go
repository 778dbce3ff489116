package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	_, err := s.Get("pb.example.com")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("PB.example.com ", "tok-123"))
	got, err := s.Get("pb.example.com")
	require.NoError(t, err)
	require.Equal(t, "tok-123", got)

	require.NoError(t, s.Put("pb.example.com", "tok-456"))
	got, err = s.Get("pb.example.com")
	require.NoError(t, err)
	require.Equal(t, "tok-456", got)

	require.NoError(t, s.Delete("pb.example.com"))
	require.NoError(t, s.Delete("pb.example.com"))
	_, err = s.Get("pb.example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileIsPrivateAndSealed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Put("remote", "super-secret-token"))

	info, err := os.Stat(filepath.Join(dir, fileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "super-secret-token")
}

func TestOtherUserCannotOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, (&Store{dir: dir, user: "alice"}).Put("remote", "tok"))

	_, err := (&Store{dir: dir, user: "mallory"}).Get("remote")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestNameRequired(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())
	require.Error(t, s.Put("  ", "x"))
	_, err := s.Get("")
	require.Error(t, err)
}
