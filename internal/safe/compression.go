// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
	// Maximum content size for single-shot compression
	StreamingThreshold int64
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize:            1024,             // 1KB
		Level:              2,                // Balanced speed/compression
		StreamingThreshold: 50 * 1024 * 1024, // 50MB
	}
}

// Content that is already compressed gains nothing from zstd
var compressedSignatures = [][]byte{
	zstdMagic,
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip, docx, xlsx
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0xFF, 0xD8, 0xFF},       // jpeg
	{0x47, 0x49, 0x46, 0x38}, // gif
	{0x25, 0x50, 0x44, 0x46}, // pdf
	{0xFD, 0x37, 0x7A, 0x58}, // xz
	{0x42, 0x5A, 0x68},       // bzip2
}

// compressionManager handles compression operations
type compressionManager struct {
	opts CompressionOptions

	// Encoder/decoder pools
	encoders sync.Pool
	decoders sync.Pool

	// Buffer pool for streaming operations
	largeBufs sync.Pool
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	level := zstd.EncoderLevelFromZstd(opts.Level)

	// Create encoder/decoder for validation
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test encoder: %w", err)
	}
	enc.Close()

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating test decoder: %w", err)
	}
	dec.Close()

	return &compressionManager{
		opts: opts,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(level),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
		largeBufs: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 1024*1024)) // 1MB
			},
		},
	}, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(data []byte) bool {
	if len(data) < cm.opts.MinSize {
		return false
	}
	for _, sig := range compressedSignatures {
		if bytes.HasPrefix(data, sig) {
			return false
		}
	}
	return true
}

// compress compresses content
func (cm *compressionManager) compress(data []byte) ([]byte, error) {
	enc := cm.encoders.Get().(*zstd.Encoder)
	defer cm.encoders.Put(enc)

	if int64(len(data)) > cm.opts.StreamingThreshold {
		return cm.compressStream(enc, data)
	}
	return enc.EncodeAll(data, nil), nil
}

// compressStream handles large content compression
func (cm *compressionManager) compressStream(enc *zstd.Encoder, data []byte) ([]byte, error) {
	buf := cm.largeBufs.Get().(*bytes.Buffer)
	defer cm.largeBufs.Put(buf)
	buf.Reset()

	enc.Reset(buf)
	if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("streaming compression: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing compression: %w", err)
	}

	// buf goes back to the pool
	return bytes.Clone(buf.Bytes()), nil
}

// decompress decompresses content
func (cm *compressionManager) decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}

	dec := cm.decoders.Get().(*zstd.Decoder)
	defer cm.decoders.Put(dec)

	if int64(len(data)) > cm.opts.StreamingThreshold {
		return cm.decompressStream(dec, data)
	}
	return dec.DecodeAll(data, nil)
}

// decompressStream handles large content decompression
func (cm *compressionManager) decompressStream(dec *zstd.Decoder, data []byte) ([]byte, error) {
	buf := cm.largeBufs.Get().(*bytes.Buffer)
	defer cm.largeBufs.Put(buf)
	buf.Reset()

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("resetting decoder: %w", err)
	}
	if _, err := io.Copy(buf, dec); err != nil {
		return nil, fmt.Errorf("streaming decompression: %w", err)
	}

	return bytes.Clone(buf.Bytes()), nil
}

// close releases pooled encoders and decoders. The manager must not be used
// afterwards.
func (cm *compressionManager) close() {
	cm.encoders.New = nil
	cm.decoders.New = nil
	for {
		enc, ok := cm.encoders.Get().(*zstd.Encoder)
		if !ok || enc == nil {
			break
		}
		enc.Close()
	}
	for {
		dec, ok := cm.decoders.Get().(*zstd.Decoder)
		if !ok || dec == nil {
			break
		}
		dec.Close()
	}
}
