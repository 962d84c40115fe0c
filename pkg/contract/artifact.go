package contract

import "fmt"

type ArtifactType string

const (
	ArtifactBuild ArtifactType = "build"
	ArtifactTest  ArtifactType = "test"
)

type Artifact struct {
	Source      string       `yaml:"source" json:"source"`
	Destination string       `yaml:"destination,omitempty" json:"destination,omitempty"`
	Type        ArtifactType `yaml:"type" json:"type"`
}

func (a Artifact) Location(parent string) string {
	kind := string(a.Type)
	if kind == "" {
		kind = "unknown"
	}
	return childLocation(parent, "%s artifacts from '%s'", kind, orUnknown(a.Source, "unknown source"))
}

func (a Artifact) Validate(errs *ErrorCollection, parent string) {
	location := a.Location(parent)
	errs.CheckMissing(location, "source", a.Source)
	errs.CheckMissing(location, "type", string(a.Type))
	if a.Type != "" && a.Type != ArtifactBuild && a.Type != ArtifactTest {
		errs.AddError(location, fmt.Sprintf("Invalid artifact type '%s'. Expected one of build, test.", a.Type))
	}
}
