package playbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

func buildSamplePlaybook(t *testing.T) *Playbook {
	t.Helper()
	pb := New()
	m := NewMerger(pb)
	report := applyOps(t, m,
		AddOp("math", "Decompose multiplication into place values"),
		AddOp("math", "Check the answer's order of magnitude"),
		AddOp("general", "State assumptions explicitly"),
	)
	applyOps(t, m,
		TagOp(report.Added[0], TagHelpful),
		TagOp(report.Added[1], TagHarmful),
	)
	return pb
}

func TestDumpParseRoundTrip(t *testing.T) {
	pb := buildSamplePlaybook(t)

	data, err := pb.Dump()
	require.NoError(t, err)

	restored, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, pb.Sections(), restored.Sections())
	assert.Equal(t, pb.Stats(), restored.Stats())

	orig := pb.List()
	back := restored.List()
	require.Equal(t, len(orig), len(back))
	for i := range orig {
		assert.Equal(t, orig[i].ID, back[i].ID)
		assert.Equal(t, orig[i].Content, back[i].Content)
		assert.Equal(t, orig[i].Counters(), back[i].Counters())
	}
}

func TestParsePreservesIDSequence(t *testing.T) {
	pb := buildSamplePlaybook(t)
	m := NewMerger(pb)
	removed := pb.List()[0].ID
	applyOps(t, m, RemoveOp(removed))

	data, err := pb.Dump()
	require.NoError(t, err)
	restored, err := Parse(data)
	require.NoError(t, err)

	// New ids issued after a reload never collide with retired ones.
	fresh := applyOps(t, NewMerger(restored), AddOp("math", "A brand new strategy")).Added[0]
	assert.NotEqual(t, removed, fresh)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("{not json")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	doc := `{
  "version": 1,
  "next_seq": 3,
  "sections": [
    {"name": "math", "bullets": [
      {"id": "math-00001", "content": "a"},
      {"id": "math-00001", "content": "b"}
    ]}
  ]
}`
	_, err := Parse(doc)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestParseRejectsNegativeCounters(t *testing.T) {
	doc := `{
  "version": 1,
  "next_seq": 2,
  "sections": [
    {"name": "math", "bullets": [
      {"id": "math-00001", "content": "a", "harmful": -1}
    ]}
  ]
}`
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	pb := buildSamplePlaybook(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "playbook.json")

	require.NoError(t, pb.Save(path))

	// No temp file left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	restored, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pb.Stats(), restored.Stats())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.NotFound))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	pb := buildSamplePlaybook(t)
	path := filepath.Join(t.TempDir(), "playbook.json")
	require.NoError(t, pb.Save(path))

	m := NewMerger(pb)
	applyOps(t, m, AddOp("general", "Prefer simpler derivations"))
	require.NoError(t, pb.Save(path))

	restored, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pb.Len(), restored.Len())
}

func TestTrailingSeq(t *testing.T) {
	assert.Equal(t, 12, trailingSeq("math-00012"))
	assert.Equal(t, 3, trailingSeq("common-mistakes-00003"))
	assert.Equal(t, 0, trailingSeq("no-digits-here"))
	assert.Equal(t, 0, trailingSeq("12345"))
}

func TestEmptyPlaybookRoundTrip(t *testing.T) {
	data, err := New().Dump()
	require.NoError(t, err)
	restored, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Len())
	assert.Equal(t, EmptyPrompt, restored.AsPrompt())

	// Applying to a reloaded empty playbook starts the sequence at 1.
	id := applyOps(t, NewMerger(restored), AddOp("math", "x")).Added[0]
	assert.Equal(t, "math-00001", id)
}
