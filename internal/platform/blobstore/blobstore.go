// Package blobstore keeps uploaded cohort files so an import can be
// re-run or audited later.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrMissingKey   = errors.New("key is required")
)

// MaxFileSize caps a single upload at 20 MB.
const MaxFileSize = 20 * 1024 * 1024

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// readLimited reads content, failing once it exceeds MaxFileSize.
func readLimited(content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}
	return data, nil
}

func describe(key, contentType string, data []byte) *Object {
	sum := sha256.Sum256(data)
	return &Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
	}
}

// InMemoryBlobStore is used in development and tests.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, content io.Reader) (*Object, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	data, err := readLimited(content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return describe(key, contentType, data), nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
