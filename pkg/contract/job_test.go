package contract

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJob(name string) *Job {
	return NewJob(name, NewExecTask("make", "build"))
}

func validate(j *Job) *ErrorCollection {
	errs := NewErrorCollection()
	j.Validate(errs, "pipeline.gocd.yaml")
	return errs
}

func richJob() *Job {
	return &Job{
		Name: "test",
		EnvironmentVariables: []EnvironmentVariable{
			{Name: "GOFLAGS", Value: "-mod=mod"},
			{Name: "CI", Value: "true"},
			{Name: "TOKEN", EncryptedValue: "AES:abc"},
		},
		Tabs:      []Tab{{Name: "coverage", Path: "cover/index.html"}, {Name: "junit", Path: "reports/junit.html"}},
		Resources: []string{"linux", "docker", "go"},
		Artifacts: []Artifact{
			{Source: "bin/app", Destination: "bin", Type: ArtifactBuild},
			{Source: "reports", Type: ArtifactTest},
		},
		PropertyGenerators: []PropertyGenerator{
			{Name: "coverage.line", Source: "cover.xml", XPath: "//coverage/@line-rate"},
			{Name: "tests.count", Source: "junit.xml", XPath: "count(//testcase)"},
		},
		RunInstanceCount: 2,
		Timeout:          30,
		Tasks: []Task{
			*NewExecTask("go", "mod", "download"),
			*NewExecTask("go", "test", "./..."),
			{RunIf: RunIfFailed, Body: &ExecTask{Command: "./collect-logs.sh"}},
		},
	}
}

func TestJob_ValidMinimalHasNoFindings(t *testing.T) {
	errs := validate(validJob("build"))
	assert.True(t, errs.Empty(), errs.Report())
	assert.NoError(t, errs.Err())
}

func TestJob_RichJobHasNoFindings(t *testing.T) {
	errs := validate(richJob())
	assert.True(t, errs.Empty(), errs.Report())
}

func TestJob_MissingNameAnchoredAtJobLocation(t *testing.T) {
	j := validJob("")
	errs := validate(j)

	require.Equal(t, 1, errs.Len())
	f := errs.Findings()[0]
	assert.Equal(t, KindMissingField, f.Kind)
	assert.Equal(t, j.Location("pipeline.gocd.yaml"), f.Location)
	assert.Equal(t, "pipeline.gocd.yaml; Job (unknown name)", f.Location)
	assert.Equal(t, "Missing field 'name'.", f.Message)
}

func TestJob_DuplicateEnvironmentVariables(t *testing.T) {
	tests := []struct {
		name  string
		vars  []string
		dupes int
	}{
		{name: "unique", vars: []string{"A", "B", "C"}, dupes: 0},
		{name: "pair", vars: []string{"A", "B", "A"}, dupes: 1},
		{name: "three equal", vars: []string{"A", "A", "A"}, dupes: 2},
		{name: "two pairs", vars: []string{"A", "B", "B", "A"}, dupes: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := validJob("build")
			for _, v := range tt.vars {
				j.AddEnvironmentVariable(v, "1")
			}
			errs := validate(j)

			dupes := 0
			for _, f := range errs.Findings() {
				if f.Kind == KindDuplicateName {
					dupes++
					assert.Equal(t, j.Location("pipeline.gocd.yaml"), f.Location)
					assert.Contains(t, f.Message, "defined more than once")
				}
			}
			assert.Equal(t, tt.dupes, dupes)
			assert.Equal(t, tt.dupes, errs.Len())
		})
	}
}

func TestJob_MissingTasks(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
	}{
		{name: "nil", tasks: nil},
		{name: "empty", tasks: []Task{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{Name: "build", Tasks: tt.tasks}
			errs := validate(j)

			require.Equal(t, 1, errs.Len())
			f := errs.Findings()[0]
			assert.Equal(t, KindMissingField, f.Kind)
			assert.Equal(t, "Missing field 'tasks'.", f.Message)
		})
	}
}

func TestJob_ReportsEveryProblemInOnePass(t *testing.T) {
	j := &Job{
		EnvironmentVariables: []EnvironmentVariable{{Name: "A"}, {Name: "A"}},
		Tabs:                 []Tab{{Name: "coverage"}},
		Artifacts:            []Artifact{{Type: ArtifactBuild}},
		PropertyGenerators:   []PropertyGenerator{{Name: "p", Source: "s"}},
	}
	errs := validate(j)

	byLocation := errs.ByLocation()
	jobLoc := "pipeline.gocd.yaml; Job (unknown name)"
	assert.ElementsMatch(t, []string{
		"Missing field 'name'.",
		"Environment variable A defined more than once",
		"Missing field 'tasks'.",
	}, byLocation[jobLoc])
	assert.Equal(t, []string{"Missing field 'path'."}, byLocation[jobLoc+"; Tab (coverage)"])
	assert.Equal(t, []string{"Missing field 'source'."}, byLocation[jobLoc+"; build artifacts from 'unknown source'"])
	assert.Equal(t, []string{"Missing field 'xpath'."}, byLocation[jobLoc+"; Property (p)"])
	assert.Equal(t, 6, errs.Len())
}

func TestJob_NestedTaskFindingsKeepTaskLocation(t *testing.T) {
	j := NewJob("deploy", &Task{Body: &FetchTask{Stage: "build", Source: "bin"}})
	errs := validate(j)

	require.Equal(t, 1, errs.Len())
	f := errs.Findings()[0]
	assert.Equal(t, "pipeline.gocd.yaml; Job (deploy); fetch task", f.Location)
	assert.Equal(t, "Missing field 'job'.", f.Message)
}

func TestJob_ValidateNameUniqueness(t *testing.T) {
	names := NewNameSet()
	j := validJob("build")

	assert.Equal(t, "", j.ValidateNameUniqueness(names))
	assert.Equal(t, "Job build is defined more than once", j.ValidateNameUniqueness(names))
	assert.Equal(t, "", validJob("test").ValidateNameUniqueness(names))
}

func TestValidateJobs_DuplicateSiblings(t *testing.T) {
	errs := NewErrorCollection()
	ValidateJobs(errs, "stage (build)", []*Job{validJob("compile"), validJob("compile"), validJob("lint")})

	require.Equal(t, 1, errs.Len())
	f := errs.Findings()[0]
	assert.Equal(t, KindDuplicateName, f.Kind)
	assert.Equal(t, "stage (build)", f.Location)
	assert.Equal(t, "Job compile is defined more than once", f.Message)
}

func TestValidateJobs_UnnamedJobsAreNotDuplicates(t *testing.T) {
	errs := NewErrorCollection()
	ValidateJobs(errs, "stage (build)", []*Job{validJob(""), validJob("")})

	for _, f := range errs.Findings() {
		assert.Equal(t, KindMissingField, f.Kind)
	}
	assert.Equal(t, 2, errs.Len())
}

func permuted(j *Job) *Job {
	p := *j
	p.EnvironmentVariables = reversed(j.EnvironmentVariables)
	p.Tabs = reversed(j.Tabs)
	p.Resources = reversed(j.Resources)
	p.Artifacts = reversed(j.Artifacts)
	p.PropertyGenerators = reversed(j.PropertyGenerators)
	return &p
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func TestJob_EqualIgnoresOrderOfUnorderedCollections(t *testing.T) {
	a := richJob()
	b := permuted(a)

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestJob_PermutingPreservesValidationFindings(t *testing.T) {
	a := richJob()
	a.Name = ""
	a.EnvironmentVariables = append(a.EnvironmentVariables, EnvironmentVariable{Name: "CI"})
	a.Tabs = append(a.Tabs, Tab{Name: "logs"})
	a.Artifacts = append(a.Artifacts, Artifact{Source: "x", Type: "docs"})

	sortedFindings := func(errs *ErrorCollection) []Finding {
		out := errs.Findings()
		sort.Slice(out, func(i, k int) bool {
			if out[i].Location != out[k].Location {
				return out[i].Location < out[k].Location
			}
			return out[i].Message < out[k].Message
		})
		return out
	}

	first := validate(a)
	second := validate(permuted(a))
	require.False(t, first.Empty())
	assert.Equal(t, sortedFindings(first), sortedFindings(second))
}

func TestJob_TaskOrderIsSignificant(t *testing.T) {
	a := richJob()
	b := richJob()
	b.Tasks = reversed(b.Tasks)

	assert.False(t, a.Equal(b))
}

func TestJob_EqualDetectsDifferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(j *Job)
	}{
		{name: "name", mutate: func(j *Job) { j.Name = "other" }},
		{name: "env value", mutate: func(j *Job) { j.EnvironmentVariables[0].Value = "changed" }},
		{name: "extra resource", mutate: func(j *Job) { j.Resources = append(j.Resources, "arm64") }},
		{name: "duplicated resource", mutate: func(j *Job) { j.Resources[2] = "linux" }},
		{name: "tab path", mutate: func(j *Job) { j.Tabs[0].Path = "other.html" }},
		{name: "artifact type", mutate: func(j *Job) { j.Artifacts[1].Type = ArtifactBuild }},
		{name: "property xpath", mutate: func(j *Job) { j.PropertyGenerators[0].XPath = "//x" }},
		{name: "run on all agents", mutate: func(j *Job) { j.RunOnAllAgents = true }},
		{name: "instance count", mutate: func(j *Job) { j.RunInstanceCount = 3 }},
		{name: "timeout", mutate: func(j *Job) { j.Timeout = 60 }},
		{name: "task command", mutate: func(j *Job) { j.Tasks[0].Body = &ExecTask{Command: "gmake"} }},
		{name: "task run if", mutate: func(j *Job) { j.Tasks[2].RunIf = RunIfAny }},
		{name: "dropped task", mutate: func(j *Job) { j.Tasks = j.Tasks[:2] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := richJob()
			b := richJob()
			tt.mutate(b)
			assert.False(t, a.Equal(b))
		})
	}
}

func TestJob_EqualNilHandling(t *testing.T) {
	var nilJob *Job
	assert.True(t, nilJob.Equal(nil))
	assert.False(t, nilJob.Equal(validJob("a")))
	assert.False(t, validJob("a").Equal(nil))

	a := &Job{Name: "a", Resources: nil}
	b := &Job{Name: "a", Resources: []string{}}
	assert.True(t, a.Equal(b))
}

func TestJobsEqual(t *testing.T) {
	a := []*Job{validJob("compile"), richJob()}
	b := []*Job{permuted(richJob()), validJob("compile")}
	assert.True(t, JobsEqual(a, b))

	c := []*Job{validJob("compile"), validJob("compile")}
	assert.False(t, JobsEqual(a, c))
	assert.False(t, JobsEqual(a, a[:1]))
}

func TestFieldPolicy(t *testing.T) {
	tests := []struct {
		node   string
		field  string
		policy Policy
	}{
		{"job", "tasks", Ordered},
		{"job", "environment_variables", Unordered},
		{"job", "tabs", Unordered},
		{"job", "resources", Unordered},
		{"job", "artifacts", Unordered},
		{"job", "properties", Unordered},
		{"job", "timeout", ByValue},
		{TypeExec, "args", Unordered},
		{TypeExec, "command", ByValue},
		{TypeFetch, "source", ByValue},
		{TypeNant, "nant_path", ByValue},
	}

	for _, tt := range tests {
		t.Run(tt.node+"."+tt.field, func(t *testing.T) {
			p, ok := FieldPolicy(tt.node, tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.policy, p)
		})
	}

	_, ok := FieldPolicy("job", "nope")
	assert.False(t, ok)
	_, ok = FieldPolicy("stage", "jobs")
	assert.False(t, ok)
}

func TestFields_JobCoversEveryComparedField(t *testing.T) {
	assert.Equal(t, []string{
		"name", "environment_variables", "tabs", "resources", "artifacts", "properties",
		"tasks", "run_on_all_agents", "run_instance_count", "timeout",
	}, Fields("job"))
}
