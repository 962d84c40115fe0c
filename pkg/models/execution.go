package models

import "time"

type JobState string

const (
	JobScheduled   JobState = "Scheduled"
	JobAssigned    JobState = "Assigned"
	JobPreparing   JobState = "Preparing"
	JobBuilding    JobState = "Building"
	JobCompleting  JobState = "Completing"
	JobCompleted   JobState = "Completed"
	JobRescheduled JobState = "Rescheduled"
)

// InProgress reports whether an agent is working on the job.
func (s JobState) InProgress() bool {
	switch s {
	case JobAssigned, JobPreparing, JobBuilding, JobCompleting:
		return true
	}
	return false
}

// Done reports whether the instance will not change state again.
func (s JobState) Done() bool {
	return s == JobCompleted || s == JobRescheduled
}

type JobResult string

const (
	ResultUnknown   JobResult = "Unknown"
	ResultPassed    JobResult = "Passed"
	ResultFailed    JobResult = "Failed"
	ResultCancelled JobResult = "Cancelled"
)

// StageIdentifier locates one run of a stage.
type StageIdentifier struct {
	PipelineName    string `json:"pipelineName"`
	PipelineCounter int    `json:"pipelineCounter"`
	StageName       string `json:"stageName"`
	StageCounter    int    `json:"stageCounter"`
}

// JobIdentifier locates one job instance within a stage run.
type JobIdentifier struct {
	StageIdentifier
	JobName string `json:"jobName"`
	BuildID int64  `json:"buildId"`
}

type Transition struct {
	State JobState  `json:"state"`
	At    time.Time `json:"at"`
}

// JobInstance is one execution of a job definition.
type JobInstance struct {
	ID             int64         `json:"id"`
	StageID        int64         `json:"stageId"`
	Identifier     JobIdentifier `json:"identifier"`
	State          JobState      `json:"state"`
	Result         JobResult     `json:"result"`
	AgentUUID      string        `json:"agentUuid,omitempty"`
	Ignored        bool          `json:"ignored"`
	RunOnAllAgents bool          `json:"runOnAllAgents"`
	RunMultiple    bool          `json:"runMultipleInstance"`
	OriginalJobID  int64         `json:"originalJobId,omitempty"`
	ScheduledAt    time.Time     `json:"scheduledAt"`
	Transitions    []Transition  `json:"transitions,omitempty"`
}

// Name returns the job's configured name.
func (j *JobInstance) Name() string {
	return j.Identifier.JobName
}

// LastTransition returns the newest recorded transition, if any.
func (j *JobInstance) LastTransition() (Transition, bool) {
	if len(j.Transitions) == 0 {
		return Transition{}, false
	}
	return j.Transitions[len(j.Transitions)-1], true
}

// ActiveJob is a summary of a job that has not completed yet.
type ActiveJob struct {
	ID              int64    `json:"id"`
	PipelineName    string   `json:"pipelineName"`
	PipelineCounter int      `json:"pipelineCounter"`
	StageName       string   `json:"stageName"`
	StageCounter    int      `json:"stageCounter"`
	JobName         string   `json:"jobName"`
	State           JobState `json:"state"`
	AgentUUID       string   `json:"agentUuid,omitempty"`
}
