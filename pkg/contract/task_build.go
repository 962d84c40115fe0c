package contract

import "fmt"

// BuildTask invokes a build tool (rake, ant or nant) on a target.
type BuildTask struct {
	Tool             string
	Target           string
	BuildFile        string
	WorkingDirectory string
	// NantPath is only meaningful for nant.
	NantPath string
}

func (b *BuildTask) TaskType() string { return b.Tool }

func (b *BuildTask) validate(errs *ErrorCollection, location string) {
	switch b.Tool {
	case TypeRake, TypeAnt, TypeNant:
	case "":
		errs.CheckMissing(location, "type", b.Tool)
	default:
		errs.AddError(location, fmt.Sprintf("Unknown build tool '%s'.", b.Tool))
	}
	if b.NantPath != "" && b.Tool != TypeNant {
		errs.AddError(location, "Field 'nant_path' is only allowed on nant tasks.")
	}
}

var buildEquality = equalityTable[*BuildTask]{
	{"type", ByValue, func(a, b *BuildTask) bool { return a.Tool == b.Tool }},
	{"target", ByValue, func(a, b *BuildTask) bool { return a.Target == b.Target }},
	{"build_file", ByValue, func(a, b *BuildTask) bool { return a.BuildFile == b.BuildFile }},
	{"working_directory", ByValue, func(a, b *BuildTask) bool { return a.WorkingDirectory == b.WorkingDirectory }},
	{"nant_path", ByValue, func(a, b *BuildTask) bool { return a.NantPath == b.NantPath }},
}
