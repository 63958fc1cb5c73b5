package dataset

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/codec"
	"github.com/hupe1980/graphmap/model"
)

const manifestBlob = "MANIFEST"

// manifestVersion guards against opening manifests written by a newer layout.
const manifestVersion = 1

// Manifest is the self-describing header of a dataset. It is always encoded
// as plain JSON regardless of the record codec, so it can be inspected with
// standard tools.
type Manifest struct {
	Version     int                   `json:"version"`
	Name        string                `json:"name"`
	Codec       string                `json:"codec"`
	Compression Compression           `json:"compression"`
	Partitions  []model.PartitionInfo `json:"partitions"`
}

func manifestName(dataset string) string {
	return dataset + "/" + manifestBlob
}

func partitionName(dataset string, id model.PartitionID) string {
	return fmt.Sprintf("%s/part-%05d", dataset, id)
}

func writeManifest(ctx context.Context, store blobstore.Store, m *Manifest) error {
	data, err := (codec.JSON{}).Marshal(m)
	if err != nil {
		return fmt.Errorf("dataset: encode manifest: %w", err)
	}
	return store.Put(ctx, manifestName(m.Name), data)
}

func readManifest(ctx context.Context, store blobstore.Store, dataset string) (*Manifest, error) {
	blob, err := store.Open(ctx, manifestName(dataset))
	if err != nil {
		return nil, fmt.Errorf("dataset %q: open manifest: %w", dataset, err)
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("dataset %q: read manifest: %w", dataset, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: read manifest: %w", dataset, err)
	}

	var m Manifest
	if err := (codec.JSON{}).Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dataset %q: decode manifest: %w", dataset, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("dataset %q: unsupported manifest version %d", dataset, m.Version)
	}
	return &m, nil
}
