package models

// JobPlan is everything an agent needs to run a scheduled job instance,
// derived from a validated job definition.
type JobPlan struct {
	JobID        int64             `json:"jobId"`
	Identifier   JobIdentifier     `json:"identifier"`
	Resources    []string          `json:"resources,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	SecureEnv    map[string]string `json:"secureEnvironment,omitempty"`
	Artifacts    []PlanArtifact    `json:"artifacts,omitempty"`
	Properties   []PlanProperty    `json:"properties,omitempty"`
	TimeoutMins  int               `json:"timeoutMinutes,omitempty"`
	Tasks        int               `json:"tasks"`
	ConfigSource string            `json:"configSource,omitempty"`
	Revision     string            `json:"revision,omitempty"`
}

type PlanArtifact struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	Type        string `json:"type"`
}

type PlanProperty struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	XPath  string `json:"xpath"`
}
