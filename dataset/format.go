package dataset

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/graphmap/codec"
)

// Compression names a frame-stream compression scheme.
type Compression string

// Supported compression schemes.
const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Format describes how a dataset's records are encoded on disk.
type Format struct {
	// Codec encodes record payloads. Nil selects codec.Default.
	Codec codec.Codec

	// Compression wraps the frame stream. Empty selects CompressionNone.
	Compression Compression
}

func (f Format) normalize() Format {
	if f.Codec == nil {
		f.Codec = codec.Default
	}
	if f.Compression == "" {
		f.Compression = CompressionNone
	}
	return f
}

// compressWriter wraps w according to the compression scheme.
// The returned closer must be closed before the underlying blob.
func compressWriter(c Compression, w io.Writer) (io.Writer, io.Closer, error) {
	switch c {
	case CompressionNone:
		return w, nil, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset: zstd writer: %w", err)
		}
		return zw, zw, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw, nil
	default:
		return nil, nil, fmt.Errorf("dataset: unknown compression %q", c)
	}
}

// compressReader wraps r according to the compression scheme.
func compressReader(c Compression, r io.ReadCloser) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return r, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("dataset: zstd reader: %w", err)
		}
		return &zstdReadCloser{r: zr, under: r}, nil
	case CompressionLZ4:
		return &lz4ReadCloser{r: lz4.NewReader(r), under: r}, nil
	default:
		r.Close()
		return nil, fmt.Errorf("dataset: unknown compression %q", c)
	}
}

type zstdReadCloser struct {
	r     *zstd.Decoder
	under io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.r.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.r.Close()
	return z.under.Close()
}

type lz4ReadCloser struct {
	r     *lz4.Reader
	under io.Closer
}

func (l *lz4ReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *lz4ReadCloser) Close() error               { return l.under.Close() }
