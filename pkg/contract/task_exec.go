package contract

// ExecTask runs a command with an argument list passed verbatim, without a shell.
type ExecTask struct {
	Command          string
	WorkingDirectory string
	// Timeout overrides the job timeout when set.
	Timeout *int64
	Args    []string
}

func NewExecTask(command string, args ...string) *Task {
	return &Task{Body: &ExecTask{Command: command, Args: args}}
}

func (e *ExecTask) TaskType() string { return TypeExec }

// validate is intentionally empty: exec tasks currently define no checks of
// their own, and a missing command is not reported.
// TODO: report a missing command once existing repositories have been audited for exec tasks without one.
func (e *ExecTask) validate(*ErrorCollection, string) {}

// Args compare as an unordered collection even though argument order matters
// when the command runs, so ["-j4", "install"] equals ["install", "-j4"].
var execEquality = equalityTable[*ExecTask]{
	{"command", ByValue, func(a, b *ExecTask) bool { return a.Command == b.Command }},
	{"working_directory", ByValue, func(a, b *ExecTask) bool { return a.WorkingDirectory == b.WorkingDirectory }},
	{"timeout", ByValue, func(a, b *ExecTask) bool { return ptrEqual(a.Timeout, b.Timeout) }},
	{"args", Unordered, func(a, b *ExecTask) bool { return unorderedEqual(a.Args, b.Args) }},
}
