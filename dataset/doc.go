// Package dataset implements the partitioned, record-oriented vertex datasets
// graphmap jobs read and write.
//
// A dataset is a set of blobs under a common name in a blobstore.Store:
//
//	<name>/MANIFEST      JSON manifest: format, codec, partition table
//	<name>/part-00000    partition 0, records in adapter order
//	<name>/part-00001    partition 1
//	...
//
// Each partition blob is a sequence of framed records:
//
//	uint32 LE payload length | uint32 LE CRC-32C(payload) | payload
//
// The payload is one vertex encoded by the manifest's codec. The whole frame
// stream may be compressed (zstd or lz4); the manifest records which.
//
// Readers are ordered and resumable: Next returns records in the order they
// were appended and reports io.EOF at the end of the partition. A checksum or
// framing failure surfaces as a read error carrying the partition and the
// ordinal of the bad record.
package dataset
