package dataset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"sync"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/model"
)

// crcTable is the Castagnoli polynomial, the same checksum S3-era storage
// systems use for record integrity.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Writer materializes a new dataset. Partitions may be created and filled
// concurrently (one goroutine per partition writer); Commit finalizes the
// manifest once all partition writers are closed.
type Writer struct {
	store  blobstore.Store
	name   string
	format Format

	mu        sync.Mutex
	parts     []model.PartitionInfo
	committed bool
}

// NewWriter starts a new dataset with the given name and format.
func NewWriter(store blobstore.Store, name string, format Format) *Writer {
	return &Writer{
		store:  store,
		name:   name,
		format: format.normalize(),
	}
}

// CreatePartition opens a writer for one partition. The caller owns the
// returned PartitionWriter and must Close it before Commit.
func (w *Writer) CreatePartition(ctx context.Context, info model.PartitionInfo) (*PartitionWriter, error) {
	blob, err := w.store.Create(ctx, partitionName(w.name, info.ID))
	if err != nil {
		return nil, fmt.Errorf("dataset %q: create partition %d: %w", w.name, info.ID, err)
	}

	out, closer, err := compressWriter(w.format.Compression, blob)
	if err != nil {
		return nil, err
	}

	return &PartitionWriter{
		parent: w,
		info:   info,
		blob:   blob,
		out:    out,
		closer: closer,
	}, nil
}

// Commit writes the manifest, making the dataset visible to readers.
// All partition writers must be closed first.
func (w *Writer) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.committed {
		return errors.New("dataset: writer already committed")
	}
	w.committed = true

	parts := make([]model.PartitionInfo, len(w.parts))
	copy(parts, w.parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })

	return writeManifest(ctx, w.store, &Manifest{
		Version:     manifestVersion,
		Name:        w.name,
		Codec:       w.format.Codec.Name(),
		Compression: w.format.Compression,
		Partitions:  parts,
	})
}

func (w *Writer) registerPartition(info model.PartitionInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.parts = append(w.parts, info)
}

// PartitionWriter appends vertex records to one partition blob in order.
// Not safe for concurrent use; each partition has exactly one writer.
type PartitionWriter struct {
	parent *Writer
	info   model.PartitionInfo
	blob   blobstore.WritableBlob
	out    io.Writer
	closer io.Closer
	count  uint32
	header [8]byte
}

// Append encodes and frames one vertex record.
func (pw *PartitionWriter) Append(v *model.Vertex) error {
	payload, err := pw.parent.format.Codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("dataset: encode vertex %d: %w", v.ID, err)
	}

	binary.LittleEndian.PutUint32(pw.header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(pw.header[4:8], crc32.Checksum(payload, crcTable))

	if _, err := pw.out.Write(pw.header[:]); err != nil {
		return fmt.Errorf("dataset: write record header: %w", err)
	}
	if _, err := pw.out.Write(payload); err != nil {
		return fmt.Errorf("dataset: write record payload: %w", err)
	}
	pw.count++
	return nil
}

// Count returns the number of records appended so far.
func (pw *PartitionWriter) Count() uint32 { return pw.count }

// Close flushes the partition blob and registers the partition with the
// parent writer.
func (pw *PartitionWriter) Close() error {
	if pw.closer != nil {
		if err := pw.closer.Close(); err != nil {
			return fmt.Errorf("dataset: close compressor: %w", err)
		}
	}
	if err := pw.blob.Close(); err != nil {
		return fmt.Errorf("dataset: close partition blob: %w", err)
	}

	info := pw.info
	info.VertexCount = pw.count
	pw.parent.registerPartition(info)
	return nil
}

// Abort closes the partition blob without registering the partition.
// Used when a materializing worker fails and the partition will be retried.
func (pw *PartitionWriter) Abort() error {
	if pw.closer != nil {
		_ = pw.closer.Close()
	}
	return pw.blob.Close()
}
