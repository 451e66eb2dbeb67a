package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ContentHash returns the hex BLAKE2b-256 digest of data.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DiskFileStore writes files under a root directory with generated names.
type DiskFileStore struct {
	root string
}

func NewDiskFileStore(root string) (*DiskFileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("upload path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskFileStore{root: root}, nil
}

func (s *DiskFileStore) Store(_ context.Context, name string, data []byte) (string, error) {
	ref := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(name)))
	if err := os.WriteFile(filepath.Join(s.root, ref), data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *DiskFileStore) Load(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *DiskFileStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// resolve rejects references that would escape the root directory.
func (s *DiskFileStore) resolve(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." {
		return "", fmt.Errorf("invalid file reference %q", ref)
	}
	return filepath.Join(s.root, ref), nil
}

// MemoryFileStore keeps files in process memory.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string][]byte)}
}

func (s *MemoryFileStore) Store(_ context.Context, name string, data []byte) (string, error) {
	ref := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(name)))
	cp := append([]byte(nil), data...)
	s.mu.Lock()
	s.files[ref] = cp
	s.mu.Unlock()
	return ref, nil
}

func (s *MemoryFileStore) Load(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[ref]
	if !ok {
		return nil, fmt.Errorf("file %q: %w", ref, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryFileStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	delete(s.files, ref)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored files.
func (s *MemoryFileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
