package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"audimg/internal/study"
)

type CacheStatus int

const (
	CacheMiss CacheStatus = iota
	CacheHit
	// CacheCorrupt means an entry exists but could not be decoded.
	CacheCorrupt
)

func (s CacheStatus) String() string {
	switch s {
	case CacheHit:
		return "hit"
	case CacheCorrupt:
		return "corrupt"
	default:
		return "miss"
	}
}

// CacheResult is the outcome of a cache lookup. Cause is set for corrupt
// entries.
type CacheResult struct {
	Matrix SampleMatrix
	Status CacheStatus
	Cause  error
}

// Cache keeps preprocessed subject matrices as zstd-compressed JSON files.
type Cache struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Cache{dir: dir, encoder: encoder, decoder: decoder}, nil
}

func (c *Cache) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

func (c *Cache) path(subject study.Subject) string {
	return filepath.Join(c.dir, string(subject)+".ds_cache.json.zst")
}

// Load never hides failures: unreadable files are returned as errors and
// undecodable entries are reported as CacheCorrupt.
func (c *Cache) Load(subject study.Subject) (CacheResult, error) {
	data, err := os.ReadFile(c.path(subject))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CacheResult{Status: CacheMiss}, nil
		}
		return CacheResult{}, err
	}
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return CacheResult{Status: CacheCorrupt, Cause: fmt.Errorf("decompress: %w", err)}, nil
	}
	var m SampleMatrix
	if err := json.Unmarshal(raw, &m); err != nil {
		return CacheResult{Status: CacheCorrupt, Cause: fmt.Errorf("decode: %w", err)}, nil
	}
	if err := m.Validate(); err != nil {
		return CacheResult{Status: CacheCorrupt, Cause: err}, nil
	}
	return CacheResult{Matrix: m, Status: CacheHit}, nil
}

func (c *Cache) Save(subject study.Subject, m SampleMatrix) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(c.encoder.EncodeAll(raw, nil)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(subject))
}

// LoadSubject serves the subject from cache when possible and refreshes the
// cache after a miss or a corrupt entry. A nil cache always loads from disk.
func LoadSubject(ctx context.Context, loader Loader, cache *Cache, subject study.Subject) (SampleMatrix, CacheResult, error) {
	if cache == nil {
		m, err := loader.Load(ctx, subject)
		return m, CacheResult{Status: CacheMiss}, err
	}
	res, err := cache.Load(subject)
	if err != nil {
		return SampleMatrix{}, res, fmt.Errorf("read cache for %s: %w", subject, err)
	}
	if res.Status == CacheHit {
		return res.Matrix, res, nil
	}
	m, err := loader.Load(ctx, subject)
	if err != nil {
		return SampleMatrix{}, res, err
	}
	if err := cache.Save(subject, m); err != nil {
		return SampleMatrix{}, res, fmt.Errorf("write cache for %s: %w", subject, err)
	}
	return m, res, nil
}
