package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidate(t *testing.T) {
	valid := Task{
		ID:               "django__django-11099",
		ProblemStatement: "UsernameValidator allows trailing newline in usernames",
		Repo:             "django/django",
		BaseCommit:       "d26b2424437dabeeca94d7900b37d2df4410da0c",
	}
	require.NoError(t, valid.Validate())

	empty := valid
	empty.ProblemStatement = "   \n"
	err := empty.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem statement is empty")

	noID := valid
	noID.ID = ""
	require.Error(t, noID.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeTemp(t, "task.json", `{
  "instance_id": "astropy__astropy-12907",
  "problem_statement": "Modeling's separability_matrix does not compute separability correctly",
  "repo": "astropy/astropy",
  "base_commit": "d16bfe05a744909de4b27f5875fe0d4ed41ce607"
}`)

	task, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "astropy__astropy-12907", task.ID)
	assert.Equal(t, "astropy/astropy", task.Repo)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := writeTemp(t, "task.json", `{"instance_id": "x", "repo": "a/b", "base_commit": "abc"}`)
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadJSONL(t *testing.T) {
	path := writeTemp(t, "tasks.jsonl",
		`{"instance_id": "t-1", "problem_statement": "first", "repo": "a/b", "base_commit": "aaaa"}

{"instance_id": "t-2", "problem_statement": "second", "repo": "a/b", "base_commit": "bbbb"}
{"instance_id": "t-3", "problem_statement": "third", "repo": "c/d", "base_commit": "cccc"}
`)

	all, err := LoadJSONL(path, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t-1", all[0].ID)
	assert.Equal(t, "t-3", all[2].ID)

	limited, err := LoadJSONL(path, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLoadJSONLReportsLineNumber(t *testing.T) {
	path := writeTemp(t, "tasks.jsonl",
		`{"instance_id": "t-1", "problem_statement": "ok", "repo": "a/b", "base_commit": "aaaa"}
not json
`)

	_, err := LoadJSONL(path, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	tasks := []Task{
		{ID: "t-1", ProblemStatement: "first", Repo: "a/b", BaseCommit: "aaaa"},
		{ID: "t-2", ProblemStatement: "second", Repo: "a/b", BaseCommit: "bbbb"},
	}

	path := filepath.Join(t.TempDir(), "subset.jsonl")
	require.NoError(t, WriteJSONL(path, tasks))

	loaded, err := LoadJSONL(path, 0)
	require.NoError(t, err)
	assert.Equal(t, tasks, loaded)
}
