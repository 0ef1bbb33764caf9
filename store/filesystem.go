package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	ExtSlot = ".json"
	ExtTemp = ".temp"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Filesystem keeps each slot in its own file below BasePath. Writes go to a
// temporary file first and are renamed into place, so readers never observe
// a partial value.
type Filesystem struct {
	BasePath string
}

func NewFilesystem(path string) (*Filesystem, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &Filesystem{
		BasePath: path,
	}, nil
}

func (f *Filesystem) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid slot key %q", key)
	}
	return filepath.Join(f.BasePath, key+ExtSlot), nil
}

func (f *Filesystem) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

func (f *Filesystem) Put(ctx context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(p+ExtTemp, value, 0644); err != nil {
		return err
	}
	return os.Rename(p+ExtTemp, p)
}

func (f *Filesystem) Delete(ctx context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
