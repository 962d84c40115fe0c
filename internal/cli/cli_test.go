package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Promptonauts/configrepo/pkg/models"
	"github.com/Promptonauts/configrepo/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buildDoc = `
jobs:
  - name: compile
    resources: [linux, go]
    tasks:
      - type: exec
        command: make
        arguments: [-j4, install]
  - name: test
    tasks:
      - type: rake
        target: spec
`

const reorderedDoc = `
jobs:
  - name: test
    tasks:
      - type: rake
        target: spec
  - name: compile
    resources: [go, linux]
    tasks:
      - type: exec
        command: make
        arguments: [install, -j4]
`

const changedDoc = `
jobs:
  - name: compile
    resources: [linux, go]
    timeout: 30
    tasks:
      - type: exec
        command: make
        arguments: [-j4, install]
  - name: lint
    tasks:
      - type: exec
        command: golangci-lint
`

const brokenDoc = `
jobs:
  - name: compile
    environment_variables:
      - name: A
      - name: A
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", buildDoc)
	bad := writeFile(t, dir, "bad.yaml", brokenDoc)

	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (2 jobs)")

	out, err = run(t, "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 file(s) invalid", err.Error())
	assert.Contains(t, out, "bad.yaml: 2 problem(s)")
	assert.Contains(t, out, "Environment variable A defined more than once")
	assert.Contains(t, out, "Missing field 'tasks'.")

	out, err = run(t, "validate", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, "missing.yaml")
}

func TestValidateCommand_JSON(t *testing.T) {
	bad := writeFile(t, t.TempDir(), "bad.yaml", brokenDoc)

	out, err := run(t, "validate", "--format", "json", bad)
	require.Error(t, err)

	var reports []fileReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Jobs)
	assert.Len(t, reports[0].Findings, 2)
}

func TestCompareCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", buildDoc)
	b := writeFile(t, dir, "b.yaml", reorderedDoc)
	c := writeFile(t, dir, "c.yaml", changedDoc)

	out, err := run(t, "compare", a, b)
	require.NoError(t, err)
	assert.Equal(t, "unchanged\n", out)

	out, err = run(t, "compare", a, c)
	require.NoError(t, err)
	assert.Equal(t, "changed\n  + lint\n  - test\n  ~ compile\n0 of 2 job(s) unchanged\n", out)

	_, err = run(t, "compare", "--exit-code", a, c)
	assert.EqualError(t, err, "definitions differ")
}

func seedStore(t *testing.T, path string) {
	t.Helper()
	st, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	defer st.Close()

	for i, name := range []string{"compile", "test"} {
		job := &models.JobInstance{Identifier: models.JobIdentifier{
			StageIdentifier: models.StageIdentifier{PipelineName: "web", PipelineCounter: i + 1, StageName: "build", StageCounter: 1},
			JobName:         name,
		}}
		_, err := st.Save(1, job)
		require.NoError(t, err)
		job.AgentUUID = "agent-1"
		job.State = models.JobAssigned
		_, err = st.UpdateAssignedInfo(job)
		require.NoError(t, err)
		job.State = models.JobCompleted
		job.Result = models.ResultPassed
		_, err = st.UpdateStateAndResult(job)
		require.NoError(t, err)
	}

	running := &models.JobInstance{Identifier: models.JobIdentifier{
		StageIdentifier: models.StageIdentifier{PipelineName: "web", PipelineCounter: 3, StageName: "build", StageCounter: 1},
		JobName:         "package",
	}}
	_, err = st.Save(1, running)
	require.NoError(t, err)
	running.AgentUUID = "agent-2"
	running.State = models.JobBuilding
	_, err = st.UpdateAssignedInfo(running)
	require.NoError(t, err)
}

func TestHistoryCommands(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state", "jobs.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(state), 0o750))
	seedStore(t, state)

	out, err := run(t, "history", "agent-1", "--state", state, "--column", "job", "--order", "asc")
	require.NoError(t, err)
	assert.Contains(t, out, "compile")
	assert.Contains(t, out, "test")
	assert.Contains(t, out, "showing 2 of 2 completed job(s) on agent-1")

	_, err = run(t, "history", "agent-1", "--state", state, "--column", "colour")
	assert.Error(t, err)

	out, err = run(t, "active", "--state", state)
	require.NoError(t, err)
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "agent-2")
	assert.NotContains(t, out, "compile")

	out, err = run(t, "hung", "agent-2", "--state", state)
	require.NoError(t, err)
	assert.Equal(t, "no hung jobs\n", out)

	out, err = run(t, "hung", "agent-2", "--state", state, "--hung-after", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "package")
}

func TestActiveCommand_EmptyStateCreatesDatabase(t *testing.T) {
	state := filepath.Join(t.TempDir(), "nested", "dir", "state.db")

	out, err := run(t, "active", "--state", state)
	require.NoError(t, err)
	assert.Equal(t, "no active jobs\n", out)
	assert.FileExists(t, state)
}

func TestRootCommand_BadConfig(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "configrepo.yaml", "log_level: loud\n")
	_, err := run(t, "active", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log_level")
}

func TestDiffJobs(t *testing.T) {
	dir := t.TempDir()
	a, err := loadDocument(writeFile(t, dir, "a.yaml", buildDoc))
	require.NoError(t, err)
	b, err := loadDocument(writeFile(t, dir, "b.yaml", reorderedDoc))
	require.NoError(t, err)

	added, removed, changed := diffJobs(a.Jobs, b.Jobs)
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Empty(t, changed)
	assert.Equal(t, 2, unchangedJobs(a.Jobs, b.Jobs))
}
