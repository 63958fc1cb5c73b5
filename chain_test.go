package graphmap

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/graphmap/blobstore"
	"github.com/hupe1980/graphmap/checkpoint"
	"github.com/hupe1980/graphmap/dataset"
	"github.com/hupe1980/graphmap/extstore"
	"github.com/hupe1980/graphmap/model"
	"github.com/hupe1980/graphmap/scheduler"
	"github.com/hupe1980/graphmap/script"
	"github.com/hupe1980/graphmap/worker"
	"github.com/stretchr/testify/require"
)

var (
	fathersNameMaps atomic.Int64
	upperNameMaps   atomic.Int64
)

// fathersNameScript copies the name of each vertex's father onto the vertex
// itself, writing through the external store connection.
type fathersNameScript struct{}

func (fathersNameScript) Setup(context.Context, *script.Env, script.Args) error { return nil }

func (fathersNameScript) Map(ctx context.Context, env *script.Env, v *model.Vertex, _ script.Args) (any, error) {
	fathersNameMaps.Add(1)

	for _, e := range v.EdgesByLabel("father") {
		name, ok, err := env.Graph.GetProperty(ctx, e.Target, "name")
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := env.Graph.SetProperty(ctx, v.ID, "fathersName", name); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

func (fathersNameScript) Cleanup(context.Context, *script.Env, script.Args) error { return nil }

// upperNameScript materializes each vertex with its name upper-cased.
type upperNameScript struct{}

func (upperNameScript) Setup(context.Context, *script.Env, script.Args) error { return nil }

func (upperNameScript) Map(_ context.Context, _ *script.Env, v *model.Vertex, _ script.Args) (any, error) {
	upperNameMaps.Add(1)

	name, _ := v.Property("name")
	out := v.Clone()
	out.Properties["name"] = strings.ToUpper(name.(string))

	return out, nil
}

func (upperNameScript) Cleanup(context.Context, *script.Env, script.Args) error { return nil }

// requireUpperScript fails on any vertex whose name is not upper-case. Used
// to verify that a materialized output feeds the next job.
type requireUpperScript struct{}

func (requireUpperScript) Setup(context.Context, *script.Env, script.Args) error { return nil }

func (requireUpperScript) Map(_ context.Context, _ *script.Env, v *model.Vertex, _ script.Args) (any, error) {
	name, _ := v.Property("name")
	if s := name.(string); s != strings.ToUpper(s) {
		return nil, errors.New("name not upper-cased")
	}
	return nil, nil
}

func (requireUpperScript) Cleanup(context.Context, *script.Env, script.Args) error { return nil }

// brokenSetupScript fails every setup call.
type brokenSetupScript struct{}

func (brokenSetupScript) Setup(context.Context, *script.Env, script.Args) error {
	return errors.New("setup always fails")
}

func (brokenSetupScript) Map(context.Context, *script.Env, *model.Vertex, script.Args) (any, error) {
	return nil, nil
}

func (brokenSetupScript) Cleanup(context.Context, *script.Env, script.Args) error { return nil }

// idleScript does nothing.
type idleScript struct{}

func (idleScript) Setup(context.Context, *script.Env, script.Args) error { return nil }

func (idleScript) Map(context.Context, *script.Env, *model.Vertex, script.Args) (any, error) {
	return nil, nil
}

func (idleScript) Cleanup(context.Context, *script.Env, script.Args) error { return nil }

func init() {
	script.Register("fathers-name", func(map[string]any) (any, error) { return fathersNameScript{}, nil })
	script.Register("upper-name", func(map[string]any) (any, error) { return upperNameScript{}, nil })
	script.Register("require-upper", func(map[string]any) (any, error) { return requireUpperScript{}, nil })
	script.Register("broken-setup", func(map[string]any) (any, error) { return brokenSetupScript{}, nil })
	script.Register("idle", func(map[string]any) (any, error) { return idleScript{}, nil })
}

type testPartition struct {
	info     model.PartitionInfo
	vertices []*model.Vertex
}

func writeTestDataset(t *testing.T, store blobstore.Store, name string, parts []testPartition) {
	t.Helper()

	ctx := context.Background()
	w := dataset.NewWriter(store, name, dataset.Format{})

	for _, part := range parts {
		pw, err := w.CreatePartition(ctx, part.info)
		require.NoError(t, err)

		for _, v := range part.vertices {
			require.NoError(t, pw.Append(v))
		}
		require.NoError(t, pw.Close())
	}

	require.NoError(t, w.Commit(ctx))
}

func writeScript(t *testing.T, store blobstore.Store, location, factory string) {
	t.Helper()
	require.NoError(t, script.WriteDescriptor(context.Background(), store, location, factory, nil))
}

// familyFixture builds a 12-vertex, 3-partition dataset where vertices 3 and
// 9 carry a father edge, plus a seeded in-memory graph store holding every
// vertex's name.
var familyNames = []string{
	"arthur", "beth", "cedric", "dana", "edgar", "fin",
	"greta", "hugo", "iris", "jonas", "kara", "liam",
}

func familyFixture(t *testing.T, dfs blobstore.Store) *extstore.MemoryGraph {
	t.Helper()

	names := familyNames

	var parts []testPartition
	for p := 0; p < 3; p++ {
		part := testPartition{info: model.PartitionInfo{ID: model.PartitionID(p)}}
		for i := 0; i < 4; i++ {
			id := model.VertexID(p*4 + i + 1)
			b := model.NewVertex(id).WithProperty("name", names[id-1])
			if id == 3 {
				b = b.WithEdge("father", 1)
			}
			if id == 9 {
				b = b.WithEdge("father", 5)
			}
			part.vertices = append(part.vertices, b.Build())
		}
		parts = append(parts, part)
	}

	writeTestDataset(t, dfs, "family", parts)

	return seedFamilyGraph(t)
}

func seedFamilyGraph(t *testing.T) *extstore.MemoryGraph {
	t.Helper()

	names := familyNames
	graph := extstore.NewMemoryGraph("graph://family")

	ctx := context.Background()
	conn, err := graph.Connector().Open(ctx, extstore.Config{Address: "graph://family"})
	require.NoError(t, err)
	for i, name := range names {
		require.NoError(t, conn.SetProperty(ctx, model.VertexID(i+1), "name", name))
	}
	require.NoError(t, conn.Commit(ctx))
	require.NoError(t, conn.Close())

	return graph
}

func TestChainSideEffectJob(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	graph := familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/fathers-name", "fathers-name")

	fathersNameMaps.Store(0)
	metrics := &BasicMetricsCollector{}

	chain := New("family-enrich", dfs, blobstore.NewMemoryStore(),
		WithMetricsCollector(metrics),
	)
	chain.Input("family")
	job := chain.Step("scripts/fathers-name").
		WithStore(graph.Connector(), extstore.Config{Address: "graph://family"})

	require.NoError(t, chain.Run(context.Background()))
	require.Equal(t, JobSucceeded, job.State())

	// Every vertex was mapped exactly once.
	require.Equal(t, int64(12), fathersNameMaps.Load())
	require.Equal(t, int64(12), metrics.VerticesMapped.Load())

	// Only the two vertices with a father edge gained the property.
	enriched := graph.VerticesWithProperty("fathersName")
	require.ElementsMatch(t, []model.VertexID{3, 9}, enriched)

	name, ok := graph.CommittedProperty(3, "fathersName")
	require.True(t, ok)
	require.Equal(t, "arthur", name)

	name, ok = graph.CommittedProperty(9, "fathersName")
	require.True(t, ok)
	require.Equal(t, "edgar", name)

	// One commit per partition worker, plus the fixture seed commit.
	require.Equal(t, 4, graph.Commits())
}

func TestChainUnreachableStoreFailsJob(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	graph := familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/fathers-name", "fathers-name")

	seedCommits := graph.Commits()

	chain := New("family-enrich", dfs, blobstore.NewMemoryStore(),
		WithRetryBudget(1),
	)
	chain.Input("family")
	job := chain.Step("scripts/fathers-name").
		WithStore(graph.Connector(), extstore.Config{Address: "graph://typo"})

	err := chain.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, JobFailed, job.State())

	var jf *ErrJobFailed
	require.ErrorAs(t, err, &jf)
	require.Equal(t, 0, jf.Job)
	require.NotNil(t, jf.Partition)

	var su *ErrStoreUnavailable
	require.ErrorAs(t, err, &su)
	require.Equal(t, "graph://typo", su.Address)
	require.ErrorIs(t, err, extstore.ErrUnreachable)

	// The retry budget was honored and nothing became visible.
	var perr *worker.PartitionError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 2, perr.Attempts)
	require.Equal(t, seedCommits, graph.Commits())
}

func TestChainHaltsAtFirstFailedJob(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/upper-name", "upper-name")
	writeScript(t, dfs, "scripts/broken-setup", "broken-setup")
	writeScript(t, dfs, "scripts/idle", "idle")

	chain := New("family-pipeline", dfs, blobstore.NewMemoryStore(),
		WithRetryBudget(0),
	)
	chain.Input("family")
	job0 := chain.Step("scripts/upper-name").WithOutput(Materialize())
	job1 := chain.Step("scripts/broken-setup")
	job2 := chain.Step("scripts/idle")

	err := chain.Run(context.Background())
	require.Error(t, err)

	// The failure is attributed to the second job.
	var jf *ErrJobFailed
	require.ErrorAs(t, err, &jf)
	require.Equal(t, 1, jf.Job)
	require.Equal(t, "family-pipeline", jf.Chain)

	require.Equal(t, JobSucceeded, job0.State())
	require.Equal(t, JobFailed, job1.State())
	require.Equal(t, JobPending, job2.State())

	// The first job's materialized output survives the chain failure.
	ds, err := dataset.Open(context.Background(), dfs, job0.OutputDataset())
	require.NoError(t, err)
	require.Len(t, ds.Partitions(), 3)
}

func TestChainMaterializedOutputFeedsNextJob(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/upper-name", "upper-name")
	writeScript(t, dfs, "scripts/require-upper", "require-upper")

	chain := New("family-upper", dfs, blobstore.NewMemoryStore(),
		WithFailurePolicy(worker.AbortPartition),
	)
	chain.Input("family")
	job0 := chain.Step("scripts/upper-name").WithOutput(Materialize())
	chain.Step("scripts/require-upper")

	require.NoError(t, chain.Run(context.Background()))

	require.Equal(t, "family-upper/job-000", job0.OutputDataset())

	// The materialized dataset holds the transformed records in order.
	ctx := context.Background()
	ds, err := dataset.Open(ctx, dfs, job0.OutputDataset())
	require.NoError(t, err)

	pr, err := ds.OpenPartition(ctx, 0)
	require.NoError(t, err)
	defer pr.Close()

	v, err := pr.Next()
	require.NoError(t, err)
	name, _ := v.Property("name")
	require.Equal(t, "ARTHUR", name)
}

func TestChainValidation(t *testing.T) {
	dfs := blobstore.NewMemoryStore()

	chain := New("empty", dfs, blobstore.NewMemoryStore())
	require.ErrorIs(t, chain.Run(context.Background()), ErrEmptyChain)

	chain = New("no-input", dfs, blobstore.NewMemoryStore())
	chain.Step("scripts/idle")
	require.ErrorIs(t, chain.Run(context.Background()), ErrNoInput)
}

func TestChainMissingScriptFailsBeforeWorkers(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	familyFixture(t, dfs)

	fathersNameMaps.Store(0)

	chain := New("family-missing", dfs, blobstore.NewMemoryStore())
	chain.Input("family")
	job := chain.Step("scripts/nowhere")

	err := chain.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, JobFailed, job.State())

	var sl *ErrScriptLoad
	require.ErrorAs(t, err, &sl)
	require.Equal(t, "scripts/nowhere", sl.Location)

	// No worker ran.
	require.Equal(t, int64(0), fathersNameMaps.Load())
}

func TestChainCheckpointSkipsCompletedJobs(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/upper-name", "upper-name")
	writeScript(t, dfs, "scripts/require-upper", "require-upper")

	checkpoints := checkpoint.NewMemoryStore()

	run := func() []*Job {
		chain := New("family-ckpt", dfs, blobstore.NewMemoryStore(),
			WithCheckpointStore(checkpoints),
		)
		chain.Input("family")
		chain.Step("scripts/upper-name").WithOutput(Materialize())
		chain.Step("scripts/require-upper")
		require.NoError(t, chain.Run(context.Background()))
		return chain.Jobs()
	}

	upperNameMaps.Store(0)

	jobs := run()
	require.Equal(t, JobSucceeded, jobs[0].State())
	require.Equal(t, int64(12), upperNameMaps.Load())

	// A re-run finds the markers and touches nothing.
	jobs = run()
	require.Equal(t, JobSkipped, jobs[0].State())
	require.Equal(t, JobSkipped, jobs[1].State())
	require.Equal(t, int64(12), upperNameMaps.Load())
	require.Equal(t, "family-ckpt/job-000", jobs[0].OutputDataset())
}

func TestChainColocatedSlots(t *testing.T) {
	dfs := blobstore.NewMemoryStore()

	var parts []testPartition
	for p := 0; p < 4; p++ {
		parts = append(parts, testPartition{
			info: model.PartitionInfo{
				ID:           model.PartitionID(p),
				LocalityHint: []string{"rack-a", "rack-b"}[p%2],
			},
			vertices: []*model.Vertex{model.NewVertex(model.VertexID(p + 1)).Build()},
		})
	}
	writeTestDataset(t, dfs, "racked", parts)
	writeScript(t, dfs, "scripts/idle", "idle")

	metrics := &BasicMetricsCollector{}

	chain := New("racked-run", dfs, blobstore.NewMemoryStore(),
		WithMetricsCollector(metrics),
		WithSlots(
			scheduler.Slot{ID: 0, Location: "rack-a"},
			scheduler.Slot{ID: 1, Location: "rack-b"},
		),
	)
	chain.Input("racked")
	chain.Step("scripts/idle")

	require.NoError(t, chain.Run(context.Background()))

	// Every partition found a slot on its own rack.
	require.Equal(t, int64(4), metrics.AssignmentCount.Load())
	require.Equal(t, 1.0, metrics.ColocationRate())
}

func TestChainSkippedVerticesDoNotFailJob(t *testing.T) {
	dfs := blobstore.NewMemoryStore()

	// Vertex 1 fails the upper-case check; the default policy skips it.
	parts := []testPartition{{
		info: model.PartitionInfo{ID: 0},
		vertices: []*model.Vertex{
			model.NewVertex(1).WithProperty("name", "ada").Build(),
			model.NewVertex(2).WithProperty("name", "BOB").Build(),
		},
	}}
	writeTestDataset(t, dfs, "mixed", parts)
	writeScript(t, dfs, "scripts/require-upper", "require-upper")

	metrics := &BasicMetricsCollector{}

	chain := New("mixed-run", dfs, blobstore.NewMemoryStore(),
		WithMetricsCollector(metrics),
	)
	chain.Input("mixed")
	job := chain.Step("scripts/require-upper")

	require.NoError(t, chain.Run(context.Background()))
	require.Equal(t, JobSucceeded, job.State())
	require.Equal(t, int64(1), metrics.VerticesMapped.Load())
	require.Equal(t, int64(1), metrics.VerticesSkipped.Load())
}

func TestChainRerunReachesSameState(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	graph := familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/fathers-name", "fathers-name")

	run := func() {
		chain := New("family-idem", dfs, blobstore.NewMemoryStore())
		chain.Input("family")
		chain.Step("scripts/fathers-name").
			WithStore(graph.Connector(), extstore.Config{Address: "graph://family"})
		require.NoError(t, chain.Run(context.Background()))
	}

	run()
	first := graph.VerticesWithProperty("fathersName")

	// The script's writes are idempotent, so a full re-run converges on the
	// same committed state.
	run()
	require.ElementsMatch(t, first, graph.VerticesWithProperty("fathersName"))
	require.ElementsMatch(t, []model.VertexID{3, 9}, first)
}

func TestChainResultIndependentOfWorkerCount(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	familyFixture(t, dfs)
	writeScript(t, dfs, "scripts/fathers-name", "fathers-name")

	run := func(workers int) []model.VertexID {
		graph := seedFamilyGraph(t)
		chain := New("family-par", dfs, blobstore.NewMemoryStore(),
			WithMaxWorkers(workers),
		)
		chain.Input("family")
		chain.Step("scripts/fathers-name").
			WithStore(graph.Connector(), extstore.Config{Address: "graph://family"})
		require.NoError(t, chain.Run(context.Background()))
		return graph.VerticesWithProperty("fathersName")
	}

	// Partitions land on workers in whatever order the scheduler picks; the
	// committed state must not depend on it.
	require.ElementsMatch(t, run(1), run(3))
}

func TestPartitionReaderEOFSticky(t *testing.T) {
	dfs := blobstore.NewMemoryStore()
	familyFixture(t, dfs)

	ctx := context.Background()
	ds, err := dataset.Open(ctx, dfs, "family")
	require.NoError(t, err)

	pr, err := ds.OpenPartition(ctx, 2)
	require.NoError(t, err)
	defer pr.Close()

	for i := 0; i < 4; i++ {
		_, err := pr.Next()
		require.NoError(t, err)
	}

	_, err = pr.Next()
	require.ErrorIs(t, err, io.EOF)
	_, err = pr.Next()
	require.ErrorIs(t, err, io.EOF)
}
