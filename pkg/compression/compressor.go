// Package compression decodes and encodes the stored payloads sources read.
//
// Element blobs may be stored compressed; the algorithm is a property of the
// store, configured once, and every Get is decompressed transparently:
//
//	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Zstd})
//	raw, err := comp.Decompress(stored)
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None stores payloads as is
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy block compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 block compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// ParseAlgorithm parses a configured algorithm name; empty means None.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(s))
	switch a {
	case "":
		return None, nil
	case None, Gzip, Snappy, LZ4, Zstd, S2:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Level represents compression level.
type Level int

const (
	// Fastest prioritizes speed over ratio
	Fastest Level = 1
	// Default balances speed and ratio
	Default Level = 5
	// Best maximizes ratio
	Best Level = 9
)

// DefaultMaxDecodedSize bounds a single decompressed payload.
const DefaultMaxDecodedSize = 1 << 30

// ErrTooLarge is returned when a payload decompresses past the limit.
var ErrTooLarge = errors.New("decompressed payload exceeds limit")

// Compressor compresses and decompresses whole payloads. Implementations are
// safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
	// MaxDecodedSize caps Decompress output; zero means DefaultMaxDecodedSize
	MaxDecodedSize int64
}

// NewCompressor creates a compressor. A nil config means no compression.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = &Config{Algorithm: None}
	}
	limit := config.MaxDecodedSize
	if limit <= 0 {
		limit = DefaultMaxDecodedSize
	}
	base := baseCompressor{algorithm: config.Algorithm, limit: limit}

	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCompressor{base}, nil
	case Gzip:
		return newGzipCompressor(base, config.Level), nil
	case Snappy:
		return &snappyCompressor{base}, nil
	case LZ4:
		return &lz4Compressor{baseCompressor: base, level: mapLZ4Level(config.Level)}, nil
	case Zstd:
		return newZstdCompressor(base, config.Level)
	case S2:
		return &s2Compressor{base}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

type baseCompressor struct {
	algorithm Algorithm
	limit     int64
}

func (bc *baseCompressor) Algorithm() Algorithm {
	return bc.algorithm
}

// readLimited drains r, failing once more than limit bytes are produced.
func (bc *baseCompressor) readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, bc.limit+1))
	if err != nil {
		return nil, err
	}
	if n > bc.limit {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

func (bc *baseCompressor) checkLen(n int, err error) error {
	if err != nil {
		return err
	}
	if int64(n) > bc.limit {
		return ErrTooLarge
	}
	return nil
}

type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

type gzipCompressor struct {
	baseCompressor
	writerPool sync.Pool
}

func newGzipCompressor(base baseCompressor, l Level) *gzipCompressor {
	level := mapGzipLevel(l)
	gc := &gzipCompressor{baseCompressor: base}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	return gc
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return gc.readLimited(r)
}

type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if err := sc.checkLen(snappy.DecodedLen(data)); err != nil {
		return nil, err
	}
	return snappy.Decode(nil, data)
}

type lz4Compressor struct {
	baseCompressor
	level lz4.CompressionLevel
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lc.level)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return lc.readLimited(lz4.NewReader(bytes.NewReader(data)))
}

type zstdCompressor struct {
	baseCompressor
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCompressor(base baseCompressor, l Level) (*zstdCompressor, error) {
	// EncodeAll and DecodeAll are safe for concurrent use on one instance.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(mapZstdLevel(l)))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(base.limit)))
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{baseCompressor: base, enc: enc, dec: dec}, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return zc.enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return zc.dec.DecodeAll(data, nil)
}

type s2Compressor struct {
	baseCompressor
}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	if err := sc.checkLen(s2.DecodedLen(data)); err != nil {
		return nil, err
	}
	return s2.Decode(nil, data)
}

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
