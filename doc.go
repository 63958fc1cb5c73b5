// Package graphmap provides an embeddable bulk-processing engine for
// property graphs.
//
// A chain of jobs runs a user script against every vertex of a partitioned
// dataset; each partition is driven by a worker through a strict
// setup → map → cleanup lifecycle, with side-effect writes to an external
// graph store buffered until a single commit during cleanup.
//
// Partitions are assigned to worker slots with locality awareness: a
// partition prefers a slot co-located with the store shard holding its
// vertices, and falls back to any free slot after a bounded wait.
//
// # Quick Start
//
//	ctx := context.Background()
//	dfs := blobstore.NewMemoryStore()
//	local := blobstore.NewMemoryStore()
//
//	chain := graphmap.New("enrich", dfs, local)
//	chain.Input("people")
//	chain.Step("scripts/normalize").WithOutput(graphmap.Materialize())
//	chain.Step("scripts/annotate").WithStore(connector, extstore.Config{Address: addr})
//
//	if err := chain.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Cloud mode stores datasets on S3 via the blobstore/s3 subpackage and can
// record per-job checkpoints in DynamoDB via the checkpoint subpackage.
package graphmap
