package dataset

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/codec"
	"github.com/hupe1980/graphmap/model"
)

// ErrChecksum indicates a record failed its CRC-32C check.
var ErrChecksum = errors.New("dataset: record checksum mismatch")

// maxRecordSize bounds a single framed record. A length prefix beyond this is
// treated as corruption rather than attempted as an allocation.
const maxRecordSize = 64 << 20 // 64 MiB

// Dataset is an opened, read-only dataset.
type Dataset struct {
	store    blobstore.Store
	name     string
	manifest *Manifest
	codec    codec.Codec
}

// Open opens an existing dataset by name.
func Open(ctx context.Context, store blobstore.Store, name string) (*Dataset, error) {
	m, err := readManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(m.Codec)
	if !ok {
		return nil, fmt.Errorf("dataset %q: unknown codec %q", name, m.Codec)
	}

	return &Dataset{
		store:    store,
		name:     name,
		manifest: m,
		codec:    c,
	}, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Format returns the dataset's record format.
func (d *Dataset) Format() Format {
	return Format{Codec: d.codec, Compression: d.manifest.Compression}
}

// Partitions returns the partition table in index order.
func (d *Dataset) Partitions() []model.PartitionInfo {
	out := make([]model.PartitionInfo, len(d.manifest.Partitions))
	copy(out, d.manifest.Partitions)
	return out
}

// OpenPartition opens an ordered reader over one partition.
func (d *Dataset) OpenPartition(ctx context.Context, id model.PartitionID) (*PartitionReader, error) {
	blob, err := d.store.Open(ctx, partitionName(d.name, id))
	if err != nil {
		return nil, fmt.Errorf("dataset %q: open partition %d: %w", d.name, id, err)
	}

	var rc io.ReadCloser
	if blob.Size() == 0 {
		blob.Close()
		return &PartitionReader{dataset: d, id: id, eof: true}, nil
	}

	raw, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("dataset %q: read partition %d: %w", d.name, id, err)
	}
	rc, err = compressReader(d.manifest.Compression, raw)
	if err != nil {
		blob.Close()
		return nil, err
	}

	return &PartitionReader{
		dataset: d,
		id:      id,
		blob:    blob,
		rc:      rc,
		br:      bufio.NewReaderSize(rc, 256<<10),
	}, nil
}

// PartitionReader yields the vertices of one partition in adapter order.
// Not safe for concurrent use; each partition has exactly one reader per
// lifecycle run.
type PartitionReader struct {
	dataset *Dataset
	id      model.PartitionID
	blob    blobstore.Blob
	rc      io.ReadCloser
	br      *bufio.Reader
	next    model.Ordinal
	eof     bool
}

// Partition returns the partition being read.
func (r *PartitionReader) Partition() model.PartitionID { return r.id }

// Next returns the next vertex record, or io.EOF after the last one.
// Any other error means the partition cannot be read further.
func (r *PartitionReader) Next() (*model.Vertex, error) {
	if r.eof {
		return nil, io.EOF
	}

	var header [8]byte
	if _, err := io.ReadFull(r.br, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			r.eof = true
			return nil, io.EOF
		}
		return nil, r.readError(err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	sum := binary.LittleEndian.Uint32(header[4:8])
	if length > maxRecordSize {
		return nil, r.readError(fmt.Errorf("frame length %d exceeds limit", length))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, r.readError(err)
	}
	if crc32.Checksum(payload, crcTable) != sum {
		return nil, r.readError(ErrChecksum)
	}

	var v model.Vertex
	if err := r.dataset.codec.Unmarshal(payload, &v); err != nil {
		return nil, r.readError(err)
	}

	r.next++
	return &v, nil
}

// Ordinal returns the partition-local ordinal of the next record.
func (r *PartitionReader) Ordinal() model.Ordinal { return r.next }

func (r *PartitionReader) readError(cause error) error {
	return fmt.Errorf("dataset %q partition %d record %d: %w", r.dataset.name, r.id, r.next, cause)
}

// Close releases the underlying blob.
func (r *PartitionReader) Close() error {
	var err error
	if r.rc != nil {
		err = r.rc.Close()
		r.rc = nil
	}
	if r.blob != nil {
		if cerr := r.blob.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.blob = nil
	}
	return err
}
