package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

// Exec arguments are compared as an unordered collection. Argument order is
// significant when the command runs, so this equality is knowingly loose.
func TestExecTask_ArgumentOrderIgnoredByEquality(t *testing.T) {
	a := NewExecTask("make", "-j4", "install")
	b := NewExecTask("make", "install", "-j4")

	assert.True(t, a.Equal(b))

	p, ok := FieldPolicy(TypeExec, "args")
	require.True(t, ok)
	assert.Equal(t, Unordered, p)
}

func TestExecTask_ArgumentCardinalityMatters(t *testing.T) {
	a := NewExecTask("echo", "x", "x", "y")
	b := NewExecTask("echo", "x", "y", "y")
	assert.False(t, a.Equal(b))
}

func TestExecTask_Equal(t *testing.T) {
	base := func() *Task {
		return &Task{Body: &ExecTask{Command: "make", WorkingDirectory: "src", Timeout: int64p(10), Args: []string{"all"}}}
	}

	tests := []struct {
		name   string
		mutate func(e *ExecTask)
		equal  bool
	}{
		{name: "identical", mutate: func(*ExecTask) {}, equal: true},
		{name: "command", mutate: func(e *ExecTask) { e.Command = "gmake" }},
		{name: "working directory", mutate: func(e *ExecTask) { e.WorkingDirectory = "" }},
		{name: "timeout value", mutate: func(e *ExecTask) { e.Timeout = int64p(20) }},
		{name: "timeout inherited", mutate: func(e *ExecTask) { e.Timeout = nil }},
		{name: "args", mutate: func(e *ExecTask) { e.Args = append(e.Args, "check") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base()
			tt.mutate(other.Body.(*ExecTask))
			assert.Equal(t, tt.equal, base().Equal(other))
		})
	}
}

func TestExecTask_MissingCommandIsNotReported(t *testing.T) {
	errs := NewErrorCollection()
	(&Task{Body: &ExecTask{}}).Validate(errs, "job")
	assert.True(t, errs.Empty())
}

func TestTask_RunIfDefaultsToPassed(t *testing.T) {
	a := &Task{Body: &ExecTask{Command: "ls"}}
	b := &Task{RunIf: RunIfPassed, Body: &ExecTask{Command: "ls"}}
	c := &Task{RunIf: RunIfAny, Body: &ExecTask{Command: "ls"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestTask_InvalidRunIf(t *testing.T) {
	errs := NewErrorCollection()
	(&Task{RunIf: "sometimes", Body: &ExecTask{Command: "ls"}}).Validate(errs, "job")

	require.Equal(t, 1, errs.Len())
	f := errs.Findings()[0]
	assert.Equal(t, KindInvalid, f.Kind)
	assert.Equal(t, "job; exec task", f.Location)
	assert.Contains(t, f.Message, "sometimes")
}

func TestTask_MissingBodyFallsBackToUnknownLocation(t *testing.T) {
	task := &Task{}
	assert.Equal(t, "job; unknown task", task.Location("job"))

	errs := NewErrorCollection()
	task.Validate(errs, "job")
	require.Equal(t, 1, errs.Len())
	assert.Equal(t, "Missing field 'type'.", errs.Findings()[0].Message)

	var nilTask *Task
	assert.Equal(t, "job; unknown task", nilTask.Location("job"))
}

func TestTask_OnCancelValidatedWithNestedLocation(t *testing.T) {
	task := &Task{
		Body: &ExecTask{Command: "deploy"},
		OnCancel: &Task{
			Body:     &FetchTask{Stage: "build", Job: "compile"},
			OnCancel: &Task{RunIf: "never", Body: &ExecTask{Command: "rollback"}},
		},
	}
	errs := NewErrorCollection()
	task.Validate(errs, "job")

	byLocation := errs.ByLocation()
	assert.Equal(t, []string{"Missing field 'source'."}, byLocation["job; exec task; on_cancel[1]; fetch task"])
	require.Len(t, byLocation["job; exec task; on_cancel[2]; exec task"], 1)
	assert.Equal(t, 2, errs.Len())
}

func cancelChain(depth int, leaf string) *Task {
	root := NewExecTask("step")
	cur := root
	for i := 1; i < depth; i++ {
		cur.OnCancel = NewExecTask("cancel")
		cur = cur.OnCancel
	}
	cur.Body = &ExecTask{Command: leaf}
	return root
}

func TestTask_DeepCancelChain(t *testing.T) {
	const depth = 100000
	a := cancelChain(depth, "cleanup")
	b := cancelChain(depth, "cleanup")
	c := cancelChain(depth, "other")

	assert.Equal(t, depth, a.Depth())
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(cancelChain(depth-1, "cleanup")))
}

func TestTask_DeepCancelChainValidates(t *testing.T) {
	task := cancelChain(2000, "cleanup")
	task.Body = &FetchTask{}

	errs := NewErrorCollection()
	task.Validate(errs, "job")
	assert.Equal(t, 3, errs.Len())
}

func TestTask_DeepCancelChainValidatesInLinearTime(t *testing.T) {
	const depth = 100000
	task := cancelChain(depth, "cleanup")

	errs := NewErrorCollection()
	task.Validate(errs, "job")
	assert.True(t, errs.Empty())

	leaf := task
	for leaf.OnCancel != nil {
		leaf = leaf.OnCancel
	}
	leaf.RunIf = "never"

	errs = NewErrorCollection()
	task.Validate(errs, "job")
	require.Equal(t, 1, errs.Len())
	finding := errs.Findings()[0]
	assert.Equal(t, "job; exec task; on_cancel[99999]; exec task", finding.Location)
	assert.Equal(t, KindInvalid, finding.Kind)
}

func TestTask_DifferentVariantsNotEqual(t *testing.T) {
	exec := NewExecTask("rake")
	rake := &Task{Body: &BuildTask{Tool: TypeRake}}
	assert.False(t, exec.Equal(rake))
	assert.False(t, rake.Equal(&Task{Body: &BuildTask{Tool: TypeAnt}}))
	assert.False(t, exec.Equal(&Task{}))
	assert.True(t, (&Task{}).Equal(&Task{}))
}

func TestBuildTask_Validate(t *testing.T) {
	tests := []struct {
		name     string
		task     *BuildTask
		messages []string
	}{
		{name: "rake", task: &BuildTask{Tool: TypeRake, Target: "default"}},
		{name: "ant with build file", task: &BuildTask{Tool: TypeAnt, BuildFile: "build.xml"}},
		{name: "nant path on nant", task: &BuildTask{Tool: TypeNant, NantPath: "C:/nant"}},
		{name: "nant path on ant", task: &BuildTask{Tool: TypeAnt, NantPath: "C:/nant"}, messages: []string{
			"Field 'nant_path' is only allowed on nant tasks.",
		}},
		{name: "unknown tool", task: &BuildTask{Tool: "maven"}, messages: []string{"Unknown build tool 'maven'."}},
		{name: "missing tool", task: &BuildTask{}, messages: []string{"Missing field 'type'."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := NewErrorCollection()
			(&Task{Body: tt.task}).Validate(errs, "job")
			var got []string
			for _, f := range errs.Findings() {
				got = append(got, f.Message)
			}
			assert.Equal(t, tt.messages, got)
		})
	}
}

func TestFetchTask_Validate(t *testing.T) {
	errs := NewErrorCollection()
	(&Task{Body: &FetchTask{Pipeline: "upstream"}}).Validate(errs, "job")

	assert.Equal(t, map[string][]string{
		"job; fetch task": {"Missing field 'stage'.", "Missing field 'job'.", "Missing field 'source'."},
	}, errs.ByLocation())
}
