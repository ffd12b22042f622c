// Package storage keeps uploaded files on local disk under category
// prefixes with random names.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Category string

const (
	Packages        Category = "packages"
	Portfolios      Category = "portfolios"
	PortfolioAlbums Category = "portfolio_albums"
	Avatars         Category = "avatars"
	ChatAttachments Category = "chat_attachments"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidPath     = errors.New("invalid storage path")
)

// imageTypes maps sniffed content types to the extension files are saved with.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStore writes files below Root and serves them from BaseURL.
type LocalStore struct {
	root     string
	baseURL  string
	maxBytes int64
}

func NewLocalStore(root, baseURL string, maxBytes int64) *LocalStore {
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}
}

func (s *LocalStore) Root() string { return s.root }

// Save stores r as <category>/<uuid><ext> and returns that relative path.
// The type is sniffed from content; the client's filename is ignored
// except for logging. Receipts on chat attachments may also be PDFs.
func (s *LocalStore) Save(ctx context.Context, cat Category, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return "", ErrUnsupportedType
		}
		return "", err
	}
	head = head[:n]
	ext, ok := extensionFor(cat, http.DetectContentType(head))
	if !ok {
		return "", ErrUnsupportedType
	}

	dir := filepath.Join(s.root, string(cat))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	rel := path.Join(string(cat), uuid.NewString()+ext)
	dst := filepath.Join(s.root, filepath.FromSlash(rel))
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", rel, err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		src = io.LimitReader(src, s.maxBytes+1)
	}
	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return rel, nil
}

func extensionFor(cat Category, contentType string) (string, bool) {
	if ext, ok := imageTypes[contentType]; ok {
		return ext, true
	}
	if cat == ChatAttachments && contentType == "application/pdf" {
		return ".pdf", true
	}
	return "", false
}

// Delete removes a stored file. Missing files and empty paths are ignored.
func (s *LocalStore) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteAll removes every path, returning the first failure.
func (s *LocalStore) DeleteAll(paths ...string) error {
	var first error
	for _, p := range paths {
		if err := s.Delete(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// URL maps a stored path to its public URL.
func (s *LocalStore) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.baseURL + "/" + strings.TrimLeft(rel, "/")
}

// resolve rejects paths that would escape the root.
func (s *LocalStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(rel, s.baseURL))
	if clean == "/" || strings.Contains(rel, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
