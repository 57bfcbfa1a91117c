package roster

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layers/internal/errs"
)

func TestReferenceStagesFollowDepth(t *testing.T) {
	r := Reference()
	require.Equal(t, 14, r.Len())
	assert.Equal(t, "producer", r.Root())
	assert.Equal(t, [][]string{
		{"producer"},
		{"director"},
		{"lead_design", "lead_prog", "lead_qa"},
		{"designer_1", "designer_2", "programmer_1", "programmer_2", "programmer_3",
			"programmer_4", "programmer_5", "tester_1", "tester_2"},
	}, r.Stages())

	lead, ok := r.Lookup("lead_prog")
	require.True(t, ok)
	assert.Equal(t, []string{"programmer_1", "programmer_2", "programmer_3", "programmer_4", "programmer_5"}, lead.Subordinates)
}

func TestParseEnvelopeWithCommentsAndLegacyName(t *testing.T) {
	doc := `{
  // studio hierarchy
  "agents": [
    {"sessionName": "root", "role": "producer", "superior": null, "subordinates": ["child"]},
    {"name": "child", "role": "director", "superior": "root", "permissionMode": "acceptEdits",},
    {"name": "leaf", "superior": "child", "promptFile": "prompts/leaf.md"},
  ]
}`
	r, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "child", "leaf"}, r.Names())
	assert.Equal(t, [][]string{{"root"}, {"child"}, {"leaf"}}, r.Stages())

	child, _ := r.Lookup("child")
	assert.Equal(t, PermissionAcceptEdits, child.PermissionMode)
	assert.Equal(t, []string{"leaf"}, child.Subordinates)
	depth, ok := r.Depth("leaf")
	assert.True(t, ok)
	assert.Equal(t, 2, depth)
}

func TestParseBareArray(t *testing.T) {
	r, err := Parse([]byte(`[{"name":"solo","role":"producer","superior":null}]`))
	require.NoError(t, err)
	assert.Equal(t, "solo", r.Root())
	assert.Equal(t, [][]string{{"solo"}}, r.Stages())
}

func TestNewRejectsInvalidTrees(t *testing.T) {
	cases := map[string][]WorkerConfig{
		"empty": nil,
		"missing name": {
			{Name: "root"},
			{Superior: "root"},
		},
		"duplicate": {
			{Name: "root"},
			{Name: "a", Superior: "root"},
			{Name: "a", Superior: "root"},
		},
		"no root": {
			{Name: "a", Superior: "b"},
			{Name: "b", Superior: "a"},
		},
		"multiple roots": {
			{Name: "a"},
			{Name: "b"},
		},
		"dangling superior": {
			{Name: "root"},
			{Name: "a", Superior: "ghost"},
		},
		"self superior": {
			{Name: "root"},
			{Name: "a", Superior: "a"},
		},
		"cycle": {
			{Name: "root"},
			{Name: "a", Superior: "b"},
			{Name: "b", Superior: "a"},
		},
		"subordinate mismatch": {
			{Name: "root", Subordinates: []string{"a", "b"}},
			{Name: "a", Superior: "root"},
			{Name: "b", Superior: "a"},
		},
		"subordinate omitted": {
			{Name: "root", Subordinates: []string{"a"}},
			{Name: "a", Superior: "root"},
			{Name: "b", Superior: "root"},
		},
		"unknown role": {
			{Name: "root", Role: "janitor"},
		},
		"unknown permission": {
			{Name: "root", PermissionMode: "yolo"},
		},
	}
	for name, workers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(workers)
			assert.Error(t, err)
		})
	}
}

func TestLoadWrapsFailuresAsConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, errs.ErrConfig))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"agents": [`), 0o644))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, errs.ErrConfig))

	cyclic := filepath.Join(dir, "cyclic.json")
	require.NoError(t, os.WriteFile(cyclic, []byte(`[{"name":"a","superior":"b"},{"name":"b","superior":"a"}]`), 0o644))
	_, err = Load(cyclic)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestSaveThenLoadReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "agents.json")
	require.NoError(t, Save(path, Reference()))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Reference().Stages(), loaded.Stages())
}

func TestAccessorsReturnCopies(t *testing.T) {
	r := Reference()
	w, _ := r.Lookup("director")
	w.Subordinates[0] = "mutated"
	again, _ := r.Lookup("director")
	assert.Equal(t, "lead_design", again.Subordinates[0])

	stages := r.Stages()
	stages[0][0] = "mutated"
	assert.Equal(t, "producer", r.Stages()[0][0])
}
