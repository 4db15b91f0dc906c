package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"audimg/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// CurrentVersion is the version stamp written on new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// EncodePartial serializes a partial result as zstd-compressed JSON.
func EncodePartial(p model.PartialResult) ([]byte, error) {
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(payload, nil), nil
}

func DecodePartial(data []byte) (model.PartialResult, error) {
	_, dec, err := zstdCodec()
	if err != nil {
		return model.PartialResult{}, err
	}
	payload, err := dec.DecodeAll(data, nil)
	if err != nil {
		return model.PartialResult{}, fmt.Errorf("decompress partial: %w", err)
	}
	var partial model.PartialResult
	if err := json.Unmarshal(payload, &partial); err != nil {
		return model.PartialResult{}, err
	}
	if err := checkVersion(partial.VersionedRecord); err != nil {
		return model.PartialResult{}, err
	}
	if partial.Tree == nil {
		partial.Tree = model.ResultTree{}
	}
	return partial, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema %d codec %d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
