// Package configrepo ingests job definitions from configuration
// repositories: it decodes files into contract trees, validates them, and
// decides whether a freshly read definition should replace the active one.
package configrepo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/Promptonauts/configrepo/pkg/contract"
	"gopkg.in/yaml.v3"
)

// Document is the parsed content of one configuration source.
type Document struct {
	Source string
	Jobs   []*contract.Job
}

// Validate runs one validation pass over the whole document with a fresh
// ErrorCollection.
func (d *Document) Validate() *contract.ErrorCollection {
	errs := contract.NewErrorCollection()
	contract.ValidateJobs(errs, d.Source, d.Jobs)
	return errs
}

// Equal compares job lists ignoring job order.
func (d *Document) Equal(o *Document) bool {
	if d == nil || o == nil {
		return d == o
	}
	return contract.JobsEqual(d.Jobs, o.Jobs)
}

type document struct {
	Jobs []jobDoc `yaml:"jobs"`
}

type jobDoc struct {
	contract.Job `yaml:",inline"`
	Tasks        []taskDoc `yaml:"tasks"`
}

type taskDoc struct {
	Type     string   `yaml:"type"`
	RunIf    string   `yaml:"run_if"`
	OnCancel *taskDoc `yaml:"on_cancel"`

	Command          string   `yaml:"command"`
	WorkingDirectory string   `yaml:"working_directory"`
	Timeout          *int64   `yaml:"timeout"`
	Args             []string `yaml:"arguments"`

	Target    string `yaml:"target"`
	BuildFile string `yaml:"build_file"`
	NantPath  string `yaml:"nant_path"`

	Pipeline    string `yaml:"pipeline"`
	Stage       string `yaml:"stage"`
	Job         string `yaml:"job"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	IsFile      bool   `yaml:"is_file"`
}

// ParseDocument decodes YAML into a contract tree. Unknown keys and unknown
// task types are parse errors; everything else is left to validation.
func ParseDocument(source string, data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw document
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}

	doc := &Document{Source: source}
	for i := range raw.Jobs {
		job := raw.Jobs[i].Job
		job.Tasks = nil
		for _, td := range raw.Jobs[i].Tasks {
			task, err := td.toTask()
			if err != nil {
				return nil, fmt.Errorf("parse %s: job %q: %w", source, job.Name, err)
			}
			job.Tasks = append(job.Tasks, *task)
		}
		doc.Jobs = append(doc.Jobs, &job)
	}
	return doc, nil
}

// toTask converts the on-cancel chain iteratively.
func (d *taskDoc) toTask() (*contract.Task, error) {
	root := &contract.Task{}
	cur := root
	for doc := d; doc != nil; doc = doc.OnCancel {
		body, err := doc.body()
		if err != nil {
			return nil, err
		}
		cur.RunIf = contract.RunIf(doc.RunIf)
		cur.Body = body
		if doc.OnCancel != nil {
			cur.OnCancel = &contract.Task{}
			cur = cur.OnCancel
		}
	}
	return root, nil
}

// nant_path is accepted on every build tool; validation reports it on
// anything but nant.
var buildKeys = []string{"target", "build_file", "working_directory", "nant_path"}

// taskKeys lists the type-specific keys each task type accepts. run_if,
// on_cancel and type are accepted everywhere.
var taskKeys = map[string][]string{
	contract.TypeExec:  {"command", "working_directory", "timeout", "arguments"},
	contract.TypeRake:  buildKeys,
	contract.TypeAnt:   buildKeys,
	contract.TypeNant:  buildKeys,
	contract.TypeFetch: {"pipeline", "stage", "job", "source", "destination", "is_file"},
}

// setKeys returns the type-specific keys that carry a value, in
// declaration order.
func (d *taskDoc) setKeys() []string {
	fields := []struct {
		key string
		set bool
	}{
		{"command", d.Command != ""},
		{"working_directory", d.WorkingDirectory != ""},
		{"timeout", d.Timeout != nil},
		{"arguments", d.Args != nil},
		{"target", d.Target != ""},
		{"build_file", d.BuildFile != ""},
		{"nant_path", d.NantPath != ""},
		{"pipeline", d.Pipeline != ""},
		{"stage", d.Stage != ""},
		{"job", d.Job != ""},
		{"source", d.Source != ""},
		{"destination", d.Destination != ""},
		{"is_file", d.IsFile},
	}
	var keys []string
	for _, f := range fields {
		if f.set {
			keys = append(keys, f.key)
		}
	}
	return keys
}

func (d *taskDoc) checkKeys() error {
	allowed, ok := taskKeys[d.Type]
	if !ok {
		return nil
	}
	for _, key := range d.setKeys() {
		if !slices.Contains(allowed, key) {
			return fmt.Errorf("field %q is not allowed on %s tasks", key, d.Type)
		}
	}
	return nil
}

func (d *taskDoc) body() (contract.TaskBody, error) {
	if err := d.checkKeys(); err != nil {
		return nil, err
	}
	switch d.Type {
	case "":
		return nil, nil
	case contract.TypeExec:
		return &contract.ExecTask{
			Command:          d.Command,
			WorkingDirectory: d.WorkingDirectory,
			Timeout:          d.Timeout,
			Args:             d.Args,
		}, nil
	case contract.TypeRake, contract.TypeAnt, contract.TypeNant:
		return &contract.BuildTask{
			Tool:             d.Type,
			Target:           d.Target,
			BuildFile:        d.BuildFile,
			WorkingDirectory: d.WorkingDirectory,
			NantPath:         d.NantPath,
		}, nil
	case contract.TypeFetch:
		return &contract.FetchTask{
			Pipeline:      d.Pipeline,
			Stage:         d.Stage,
			Job:           d.Job,
			Source:        d.Source,
			Destination:   d.Destination,
			IsSourceAFile: d.IsFile,
		}, nil
	}
	return nil, fmt.Errorf("unknown task type %q", d.Type)
}
