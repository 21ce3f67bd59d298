package playbook

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyNilBatch(t *testing.T) {
	m := NewMerger(New())
	_, err := m.Apply(context.Background(), nil)
	require.Error(t, err)
}

func TestAddDedupIncrementsNeutral(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	first := applyOps(t, m, AddOp("math", "Show your work"))
	require.Len(t, first.Added, 1)
	id := first.Added[0]

	// Same section, normalized-equal content: no new bullet.
	second := applyOps(t, m, AddOp("math", "  show  your WORK  "))
	assert.Empty(t, second.Added)
	assert.Equal(t, []string{id}, second.Deduplicated)

	b, ok := pb.Get(id)
	require.True(t, ok)
	assert.Equal(t, 1, b.Neutral)
	assert.Equal(t, 1, pb.Len())
}

func TestAddDedupIsSectionScoped(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	applyOps(t, m, AddOp("math", "Show your work"))
	report := applyOps(t, m, AddOp("general", "Show your work"))
	assert.Len(t, report.Added, 1)
	assert.Equal(t, 2, pb.Len())
}

func TestAddDedupByTokenOverlap(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	applyOps(t, m, AddOp("math", "always check the units of the final answer before reporting it"))
	report := applyOps(t, m, AddOp("math", "check the units of the final answer before reporting it always"))
	assert.Empty(t, report.Added)
	assert.Len(t, report.Deduplicated, 1)
}

func TestUpdateAndTag(t *testing.T) {
	pb := New()
	m := NewMerger(pb)
	added := applyOps(t, m, AddOp("math", "Estimate first"))
	bID := added.Added[0]

	applyOps(t, m,
		UpdateOp(bID, "Estimate the magnitude first"),
		TagOp(bID, TagHelpful),
		TagOp(bID, TagHarmful),
		TagOp(bID, TagHelpful),
	)

	b, ok := pb.Get(bID)
	require.True(t, ok)
	assert.Equal(t, "Estimate the magnitude first", b.Content)
	assert.Equal(t, 2, b.Helpful)
	assert.Equal(t, 1, b.Harmful)
}

func TestTagAmountFromMetadata(t *testing.T) {
	pb := New()
	m := NewMerger(pb)
	id := applyOps(t, m, AddOp("math", "Show your work")).Added[0]

	op := DeltaOperation{
		Type:     OpTag,
		BulletID: id,
		Metadata: map[string]int{"helpful": 3, "neutral": 2},
	}
	applyOps(t, m, op)

	b, _ := pb.Get(id)
	assert.Equal(t, 3, b.Helpful)
	assert.Equal(t, 2, b.Neutral)
}

func TestCountersNeverGoNegative(t *testing.T) {
	pb := New()
	m := NewMerger(pb)
	id := applyOps(t, m, AddOp("math", "Show your work")).Added[0]

	op := TagOp(id, TagHarmful)
	op.Amount = -5
	applyOps(t, m, op)

	b, _ := pb.Get(id)
	assert.Equal(t, 0, b.Harmful)
}

func TestMissingIDIsAnomalyNotFailure(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	report := applyOps(t, m,
		AddOp("math", "Show your work"),
		UpdateOp("math-09999", "never lands"),
		TagOp("general-00042", TagHelpful),
		RemoveOp("math-00777"),
	)

	// The ADD applied despite three dangling references.
	require.Len(t, report.Added, 1)
	require.Len(t, report.Anomalies, 3)
	assert.Equal(t, 1, pb.Len())
	for _, a := range report.Anomalies {
		assert.Error(t, a.Err())
	}
}

func TestRemoveThenTagSameBatch(t *testing.T) {
	pb := New()
	m := NewMerger(pb)
	id := applyOps(t, m, AddOp("math", "Show your work")).Added[0]

	report := applyOps(t, m,
		RemoveOp(id),
		TagOp(id, TagHelpful),
	)
	assert.Equal(t, []string{id}, report.Removed)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, id, report.Anomalies[0].BulletID)
	assert.Equal(t, 0, pb.Len())
}

func TestRemovedIDNeverReused(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	id := applyOps(t, m, AddOp("math", "Show your work")).Added[0]
	applyOps(t, m, RemoveOp(id))
	next := applyOps(t, m, AddOp("math", "A different strategy")).Added[0]

	assert.NotEqual(t, id, next)
}

func TestUnknownOpTypeIsAnomaly(t *testing.T) {
	pb := New()
	m := NewMerger(pb)
	report := applyOps(t, m, DeltaOperation{Type: "MERGE", Content: "bogus"})
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, 0, pb.Len())
}

func TestFIFOOrdering(t *testing.T) {
	pb := New()
	m := NewMerger(pb)
	id := applyOps(t, m, AddOp("math", "Show your work")).Added[0]

	// Many goroutines each submit UPDATE then TAG; whatever interleaving the
	// scheduler picks, each batch applies atomically and in submission order,
	// so counters stay exact.
	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applyOps(t, m, TagOp(id, TagHelpful), TagOp(id, TagHarmful))
		}()
	}
	wg.Wait()

	b, ok := pb.Get(id)
	require.True(t, ok)
	assert.Equal(t, workers, b.Helpful)
	assert.Equal(t, workers, b.Harmful)
}

func TestBulletLifecycle(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	// Born neutral.
	id := applyOps(t, m, AddOp("math", "Convert units before comparing quantities")).Added[0]
	b, _ := pb.Get(id)
	assert.Equal(t, Counters{}, b.Counters())

	// Earns credit across a few tasks.
	applyOps(t, m, TagOp(id, TagHelpful))
	applyOps(t, m, TagOp(id, TagHelpful))
	applyOps(t, m, TagOp(id, TagHarmful))

	// Refined in place.
	applyOps(t, m, UpdateOp(id, "Convert all quantities to SI units before comparing"))
	b, _ = pb.Get(id)
	assert.Equal(t, "Convert all quantities to SI units before comparing", b.Content)
	assert.Equal(t, 2, b.Helpful)

	// Retired; a late tag is an anomaly, not a resurrection.
	applyOps(t, m, RemoveOp(id))
	report := applyOps(t, m, TagOp(id, TagHelpful))
	require.Len(t, report.Anomalies, 1)
	_, ok := pb.Get(id)
	assert.False(t, ok)
}

func TestGrowAndRefineMergesAndPrunes(t *testing.T) {
	pb := New()
	m := NewMerger(pb, WithMergerConfig(MergerConfig{
		MaxBullets:          3,
		PruneMargin:         1,
		MinEvidence:         5,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}))

	a := applyOps(t, m, AddOp("math", "Always verify the final numeric answer")).Added[0]
	b := applyOps(t, m, AddOp("math", "A harmful habit worth forgetting entirely")).Added[0]
	applyOps(t, m, TagOp(b, TagHarmful), TagOp(b, TagHarmful), TagOp(b, TagHarmful))
	c := applyOps(t, m, AddOp("math", "Estimate magnitudes before computing")).Added[0]

	// Rewrite c into a near-duplicate of a, and credit it so the merge has
	// counters to fold in.
	applyOps(t, m,
		UpdateOp(c, "verify the final numeric answer, always"),
		TagOp(c, TagHelpful),
	)

	// The fourth bullet pushes the store over MaxBullets and triggers
	// maintenance: c merges into a, and the weakly-evidenced harmful bullet
	// is pruned.
	report := applyOps(t, m, AddOp("general", "State assumptions explicitly"))
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 1, report.Pruned)

	survivor, ok := pb.Get(a)
	require.True(t, ok)
	assert.Equal(t, 1, survivor.Helpful)
	_, ok = pb.Get(c)
	assert.False(t, ok)
	_, ok = pb.Get(b)
	assert.False(t, ok)
	assert.Equal(t, 2, pb.Len())
}

func TestContextCancelledBeforeApply(t *testing.T) {
	pb := New()
	m := NewMerger(pb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Apply(ctx, &DeltaBatch{Operations: []DeltaOperation{AddOp("math", "x")}})
	require.Error(t, err)
	assert.Equal(t, 0, pb.Len())
}
