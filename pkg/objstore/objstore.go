package objstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store holds raw dataset bytes addressed by an opaque reference.
type Store interface {
	Put(name string, r io.Reader) (ref string, err error)
	Get(ref string) (io.ReadCloser, error)
}

// Disk stores objects as files under a base directory (configurable via
// UPLOAD_BASE, default "uploads"). The returned reference is the
// base-relative path.
type Disk struct {
	base string
}

func NewDisk(base string) (*Disk, error) {
	if base == "" {
		base = "uploads"
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", base, err)
	}
	return &Disk{base: base}, nil
}

func (d *Disk) Put(name string, r io.Reader) (string, error) {
	name = filepath.Base(name) // object names never carry directories
	if name == "" || name == "." {
		return "", fmt.Errorf("empty object name")
	}
	full := filepath.Join(d.base, name)
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

func (d *Disk) Get(ref string) (io.ReadCloser, error) {
	// refuse refs that would escape the base dir
	clean := filepath.Clean(ref)
	if clean != filepath.Base(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid object reference %q", ref)
	}
	return os.Open(filepath.Join(d.base, clean))
}

// Memory is an in-process store for tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[name] = b
	m.mu.Unlock()
	return name, nil
}

func (m *Memory) Get(ref string) (io.ReadCloser, error) {
	m.mu.RLock()
	b, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", ref)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
