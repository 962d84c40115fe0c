package contract

import "fmt"

// Job is a unit of work within a stage. Tasks run in declaration order; all
// other collections are unordered.
type Job struct {
	Name                 string                `yaml:"name" json:"name"`
	EnvironmentVariables []EnvironmentVariable `yaml:"environment_variables,omitempty" json:"environment_variables,omitempty"`
	Tabs                 []Tab                 `yaml:"tabs,omitempty" json:"tabs,omitempty"`
	Resources            []string              `yaml:"resources,omitempty" json:"resources,omitempty"`
	Artifacts            []Artifact            `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	PropertyGenerators   []PropertyGenerator   `yaml:"properties,omitempty" json:"properties,omitempty"`
	RunOnAllAgents       bool                  `yaml:"run_on_all_agents,omitempty" json:"run_on_all_agents,omitempty"`
	RunInstanceCount     int                   `yaml:"run_instance_count,omitempty" json:"run_instance_count,omitempty"`
	Timeout              int                   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Tasks                []Task                `yaml:"-" json:"-"`
}

func NewJob(name string, tasks ...*Task) *Job {
	j := &Job{Name: name}
	for _, t := range tasks {
		j.Tasks = append(j.Tasks, *t)
	}
	return j
}

func (j *Job) AddEnvironmentVariable(name, value string) {
	j.EnvironmentVariables = append(j.EnvironmentVariables, EnvironmentVariable{Name: name, Value: value})
}

func (j *Job) Location(parent string) string {
	return childLocation(parent, "Job (%s)", orUnknown(j.Name, unknownName))
}

// Validate records every finding for the job and its descendants. No check
// short-circuits the ones after it.
func (j *Job) Validate(errs *ErrorCollection, parent string) {
	location := j.Location(parent)
	errs.CheckMissing(location, "name", j.Name)
	j.validateEnvironmentVariables(errs, location)
	for _, tab := range j.Tabs {
		tab.Validate(errs, location)
	}
	for _, artifact := range j.Artifacts {
		artifact.Validate(errs, location)
	}
	for _, gen := range j.PropertyGenerators {
		gen.Validate(errs, location)
	}
	j.validateTasks(errs, location)
}

func (j *Job) validateEnvironmentVariables(errs *ErrorCollection, location string) {
	names := NewNameSet()
	for _, v := range j.EnvironmentVariables {
		if msg := v.ValidateNameUniqueness(names); msg != "" {
			errs.AddDuplicate(location, msg)
		}
	}
	for _, v := range j.EnvironmentVariables {
		v.Validate(errs, location)
	}
}

func (j *Job) validateTasks(errs *ErrorCollection, location string) {
	errs.CheckMissing(location, "tasks", j.Tasks)
	for i := range j.Tasks {
		j.Tasks[i].Validate(errs, location)
	}
}

// ValidateNameUniqueness claims the job name in names and returns
// "Job <name> is defined more than once" if it was already claimed.
func (j *Job) ValidateNameUniqueness(names NameSet) string {
	if !names.claim(j.Name) {
		return fmt.Sprintf("Job %s is defined more than once", j.Name)
	}
	return ""
}

// ValidateJobs validates sibling jobs, including name uniqueness among them.
// Duplicate names are reported at parent.
func ValidateJobs(errs *ErrorCollection, parent string, jobs []*Job) {
	names := NewNameSet()
	for _, j := range jobs {
		if j.Name != "" {
			if msg := j.ValidateNameUniqueness(names); msg != "" {
				errs.AddDuplicate(parent, msg)
			}
		}
		j.Validate(errs, parent)
	}
}

var jobEquality = equalityTable[*Job]{
	{"name", ByValue, func(a, b *Job) bool { return a.Name == b.Name }},
	{"environment_variables", Unordered, func(a, b *Job) bool {
		return unorderedEqual(a.EnvironmentVariables, b.EnvironmentVariables)
	}},
	{"tabs", Unordered, func(a, b *Job) bool { return unorderedEqual(a.Tabs, b.Tabs) }},
	{"resources", Unordered, func(a, b *Job) bool { return unorderedEqual(a.Resources, b.Resources) }},
	{"artifacts", Unordered, func(a, b *Job) bool { return unorderedEqual(a.Artifacts, b.Artifacts) }},
	{"properties", Unordered, func(a, b *Job) bool { return unorderedEqual(a.PropertyGenerators, b.PropertyGenerators) }},
	{"tasks", Ordered, func(a, b *Job) bool {
		return orderedEqual(a.Tasks, b.Tasks, func(x, y Task) bool { return x.Equal(&y) })
	}},
	{"run_on_all_agents", ByValue, func(a, b *Job) bool { return a.RunOnAllAgents == b.RunOnAllAgents }},
	{"run_instance_count", ByValue, func(a, b *Job) bool { return a.RunInstanceCount == b.RunInstanceCount }},
	{"timeout", ByValue, func(a, b *Job) bool { return a.Timeout == b.Timeout }},
}

// Equal reports structural equality. Task order is significant; the order
// of every other collection is not.
func (j *Job) Equal(o *Job) bool {
	if j == nil || o == nil {
		return j == o
	}
	if j == o {
		return true
	}
	return jobEquality.equal(j, o)
}

// JobsEqual compares two job lists as unordered collections of jobs.
func JobsEqual(a, b []*Job) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, x := range a {
		for i, y := range b {
			if !used[i] && x.Equal(y) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}
