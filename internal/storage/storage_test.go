package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest valid PNG header plus padding
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

func TestSaveAndDelete(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root, "/storage/", 1<<20)

	rel, err := s.Save(context.Background(), Packages, bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "packages/"))
	assert.True(t, strings.HasSuffix(rel, ".png"))
	assert.Equal(t, "/storage/"+rel, s.URL(rel))

	got, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	require.NoError(t, s.Delete(rel))
	_, err = os.Stat(filepath.Join(root, rel))
	assert.True(t, os.IsNotExist(err))

	// already gone
	assert.NoError(t, s.Delete(rel))
	assert.NoError(t, s.Delete(""))
}

func TestSaveRejects(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/storage", 32)
	ctx := context.Background()

	_, err := s.Save(ctx, Avatars, strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Save(ctx, Avatars, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Save(ctx, Packages, bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, ErrTooLarge)
	entries, _ := os.ReadDir(filepath.Join(s.Root(), "packages"))
	assert.Empty(t, entries)
}

func TestPDFOnlyForChatAttachments(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/storage", 0)
	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n")

	_, err := s.Save(context.Background(), Avatars, bytes.NewReader(pdf))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	rel, err := s.Save(context.Background(), ChatAttachments, bytes.NewReader(pdf))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(rel, ".pdf"))
}

func TestDeleteRejectsTraversal(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/storage", 0)
	assert.ErrorIs(t, s.Delete("../etc/passwd"), ErrInvalidPath)
	assert.ErrorIs(t, s.Delete("/"), ErrInvalidPath)
}
