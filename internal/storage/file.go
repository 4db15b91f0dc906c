package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audimg/internal/model"
	"audimg/internal/study"
)

const partialExt = ".json.zst"

// FileStore writes one compressed record per key into a directory. Writes go
// through a temporary file and a rename so readers never see partial files.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Init(_ context.Context) error {
	if s.dir == "" {
		return errors.New("file store directory is required")
	}
	return os.MkdirAll(s.dir, 0o755)
}

func (s *FileStore) SavePartial(_ context.Context, partial model.PartialResult) error {
	payload, err := EncodePartial(partial)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, partial.Key()+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(partial.Key()))
}

func (s *FileStore) GetPartial(_ context.Context, subject study.Subject, task study.Task) (model.PartialResult, bool, error) {
	key := model.PartialKey(subject, task)
	payload, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.PartialResult{}, false, nil
		}
		return model.PartialResult{}, false, err
	}
	partial, err := DecodePartial(payload)
	if err != nil {
		return model.PartialResult{}, false, fmt.Errorf("decode partial %s: %w", key, err)
	}
	return partial, true, nil
}

func (s *FileStore) ListPartials(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, partialExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, partialExt))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+partialExt)
}
