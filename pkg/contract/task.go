package contract

import (
	"fmt"
	"strconv"
)

const (
	TypeExec  = "exec"
	TypeRake  = "rake"
	TypeAnt   = "ant"
	TypeNant  = "nant"
	TypeFetch = "fetch"
)

// RunIf decides whether a task runs given the outcome of the tasks before it.
type RunIf string

const (
	RunIfPassed RunIf = "passed"
	RunIfFailed RunIf = "failed"
	RunIfAny    RunIf = "any"
)

// normalized maps the empty value to the default, RunIfPassed.
func (r RunIf) normalized() RunIf {
	if r == "" {
		return RunIfPassed
	}
	return r
}

func (r RunIf) valid() bool {
	switch r.normalized() {
	case RunIfPassed, RunIfFailed, RunIfAny:
		return true
	}
	return false
}

// TaskBody is the variant-specific part of a task. The set of variants is
// closed: ExecTask, BuildTask and FetchTask.
type TaskBody interface {
	TaskType() string
	validate(errs *ErrorCollection, location string)
}

// Task is one step of a job. OnCancel, when set, is owned by this task and
// runs if the task is cancelled; chains may be arbitrarily deep.
type Task struct {
	RunIf    RunIf
	OnCancel *Task
	Body     TaskBody
}

func (t *Task) Type() string {
	if t == nil || t.Body == nil {
		return ""
	}
	return t.Body.TaskType()
}

func (t *Task) Location(parent string) string {
	return childLocation(parent, "%s task", orUnknown(t.Type(), "unknown"))
}

// Validate checks the task and its on-cancel chain. The chain is walked
// iteratively so deep chains do not grow the call stack. A task at depth d
// of the chain is located as "<root>; on_cancel[d]; <type> task", which
// keeps every location the same size however deep the chain goes.
func (t *Task) Validate(errs *ErrorCollection, parent string) {
	root := t.Location(parent)
	t.validateSelf(errs, root)
	depth := 0
	for cur := t.OnCancel; cur != nil; cur = cur.OnCancel {
		depth++
		cur.validateSelf(errs, cancelLocation(root, depth, cur))
	}
}

func cancelLocation(root string, depth int, t *Task) string {
	return t.Location(root + "; on_cancel[" + strconv.Itoa(depth) + "]")
}

func (t *Task) validateSelf(errs *ErrorCollection, location string) {
	if !t.RunIf.valid() {
		errs.AddError(location, fmt.Sprintf("Invalid run_if value '%s'. Expected one of passed, failed, any.", t.RunIf))
	}
	if t.Body == nil {
		errs.CheckMissing(location, "type", nil)
		return
	}
	t.Body.validate(errs, location)
}

var taskEquality = equalityTable[*Task]{
	{"run_if", ByValue, func(a, b *Task) bool { return a.RunIf.normalized() == b.RunIf.normalized() }},
	{"body", ByValue, func(a, b *Task) bool { return bodyEqual(a.Body, b.Body) }},
	{"on_cancel", Ordered, func(a, b *Task) bool { return (a.OnCancel == nil) == (b.OnCancel == nil) }},
}

// Equal compares t and o including their whole on-cancel chains. The
// on_cancel rule only checks presence; the loop below walks the chain.
func (t *Task) Equal(o *Task) bool {
	a, b := t, o
	for {
		if a == nil || b == nil {
			return a == b
		}
		if a == b {
			return true
		}
		if !taskEquality.equal(a, b) {
			return false
		}
		a, b = a.OnCancel, b.OnCancel
	}
}

func bodyEqual(a, b TaskBody) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.TaskType() != b.TaskType() {
		return false
	}
	switch x := a.(type) {
	case *ExecTask:
		y, ok := b.(*ExecTask)
		return ok && execEquality.equal(x, y)
	case *BuildTask:
		y, ok := b.(*BuildTask)
		return ok && buildEquality.equal(x, y)
	case *FetchTask:
		y, ok := b.(*FetchTask)
		return ok && fetchEquality.equal(x, y)
	}
	return false
}

// Depth returns the number of tasks in the on-cancel chain starting at t.
func (t *Task) Depth() int {
	n := 0
	for cur := t; cur != nil; cur = cur.OnCancel {
		n++
	}
	return n
}
