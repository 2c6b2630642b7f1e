package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/twmb/murmur3"
)

var (
	ErrBlobNotFound   = errors.New("blob not found")
	ErrInvalidBlobKey = errors.New("invalid blob key")
)

// BlobStore holds uploaded bytes. Put returns the public reference for key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DiskBlobStore writes blobs under root, spread over 256 shard directories
// chosen by the murmur3 hash of the key.
type DiskBlobStore struct {
	root    string
	baseURL string
}

func NewDiskBlobStore(root, baseURL string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &DiskBlobStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func shardOf(key string) string {
	return fmt.Sprintf("%02x", murmur3.StringSum32(key)%256)
}

// relPath maps key to "<shard>/<key>". Keys may contain "/" but must stay
// inside the root.
func relPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || !fs.ValidPath(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBlobKey, key)
	}
	return filepath.Join(shardOf(key), filepath.FromSlash(key)), nil
}

func (s *DiskBlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := relPath(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return s.URL(key), nil
}

func (s *DiskBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := relPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes key. Deleting a missing blob succeeds.
func (s *DiskBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := relPath(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, rel))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// URL is the public reference for key.
func (s *DiskBlobStore) URL(key string) string {
	return s.baseURL + "/" + shardOf(key) + "/" + key
}
