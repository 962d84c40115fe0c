package store

import (
	"errors"

	"github.com/Promptonauts/configrepo/pkg/models"
)

var ErrNotFound = errors.New("not found")

// JobInstanceStore persists job execution instances and their plans. It is
// fed by whatever translates validated job definitions into execution
// entities; the contract package never calls it.
type JobInstanceStore interface {
	// OrderedScheduledBuilds returns plans of scheduled, non-ignored jobs, oldest first.
	OrderedScheduledBuilds() ([]*models.JobPlan, error)
	LatestCompletedJobs(pipelineName, stageName, jobName string, count int) ([]*models.JobInstance, error)

	Save(stageID int64, job *models.JobInstance) (*models.JobInstance, error)
	UpdateAssignedInfo(job *models.JobInstance) (*models.JobInstance, error)
	UpdateStateAndResult(job *models.JobInstance) (*models.JobInstance, error)
	// Ignore marks the instance as ignored. Ignoring twice is a no-op; an
	// unknown ID returns ErrNotFound.
	Ignore(job *models.JobInstance) error

	IsValid(pipelineName, stageName, jobName string) (bool, error)
	LatestInProgressBuildByAgent(agentUUID string) (*models.JobInstance, error)
	// FindHungJobs returns in-progress jobs on live agents that have not
	// transitioned within the store's hang threshold.
	FindHungJobs(liveAgents []string) ([]*models.JobInstance, error)

	BuildByIDWithTransitions(id int64) (*models.JobInstance, error)
	BuildByID(id int64) (*models.JobInstance, error)
	ActiveJobs() ([]models.ActiveJob, error)
	MostRecentJobWithTransitions(id models.JobIdentifier) (*models.JobInstance, error)

	SavePlan(jobID int64, plan *models.JobPlan) error
	LoadPlan(jobID int64) (*models.JobPlan, error)

	FindOriginalJobIdentifier(stage models.StageIdentifier, jobName string) (*models.JobIdentifier, error)
	BuildingJobs() ([]models.JobIdentifier, error)

	CompletedJobsOnAgent(agentUUID string, column HistoryColumn, order SortOrder, offset, limit int) ([]*models.JobInstance, error)
	TotalCompletedJobsOnAgent(agentUUID string) (int, error)

	Watch() <-chan JobEvent

	Migrate() error
	Close() error
}

type SortOrder string

const (
	Ascending  SortOrder = "ASC"
	Descending SortOrder = "DESC"
)

// HistoryColumn is a column agent job history can be sorted by.
type HistoryColumn string

const (
	ColumnPipeline  HistoryColumn = "pipeline"
	ColumnStage     HistoryColumn = "stage"
	ColumnJob       HistoryColumn = "job"
	ColumnResult    HistoryColumn = "result"
	ColumnCompleted HistoryColumn = "completed"
)

var historyColumns = map[HistoryColumn]string{
	ColumnPipeline:  "pipeline_name",
	ColumnStage:     "stage_name",
	ColumnJob:       "name",
	ColumnResult:    "result",
	ColumnCompleted: "last_transition_at",
}

type EventType string

const (
	EventScheduled EventType = "SCHEDULED"
	EventAssigned  EventType = "ASSIGNED"
	EventUpdated   EventType = "UPDATED"
	EventIgnored   EventType = "IGNORED"
)

type JobEvent struct {
	Type EventType
	Job  *models.JobInstance
}
