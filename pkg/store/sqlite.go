package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Promptonauts/configrepo/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

const DefaultHungAfter = 30 * time.Minute

var _ JobInstanceStore = (*SQLiteStore)(nil)

const jobColumns = `id, stage_id, pipeline_name, pipeline_counter, stage_name, stage_counter, name,
	state, result, agent_uuid, ignored, run_on_all_agents, run_multiple, original_job_id, scheduled_at`

type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	watchers  []chan JobEvent
	watchMu   sync.RWMutex
	hungAfter time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*SQLiteStore)

// WithHungAfter sets how long an in-progress job may go without a
// transition before FindHungJobs reports it.
func WithHungAfter(d time.Duration) Option {
	return func(s *SQLiteStore) { s.hungAfter = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLiteStore{
		db:        db,
		hungAfter: DefaultHungAfter,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) clock() time.Time {
	return s.now().UTC()
}

func (s *SQLiteStore) Save(stageID int64, job *models.JobInstance) (*models.JobInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	job.StageID = stageID
	if job.State == "" {
		job.State = models.JobScheduled
	}
	if job.Result == "" {
		job.Result = models.ResultUnknown
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id := job.Identifier
	res, err := tx.Exec(`
		INSERT INTO job_instances (stage_id, pipeline_name, pipeline_counter, stage_name, stage_counter, name,
			state, result, agent_uuid, ignored, run_on_all_agents, run_multiple, original_job_id,
			scheduled_at, last_transition_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stageID, id.PipelineName, id.PipelineCounter, id.StageName, id.StageCounter, id.JobName,
		string(job.State), string(job.Result), job.AgentUUID, job.Ignored, job.RunOnAllAgents,
		job.RunMultiple, job.OriginalJobID, job.ScheduledAt, now)
	if err != nil {
		return nil, fmt.Errorf("insert job instance: %w", err)
	}
	job.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job instance id: %w", err)
	}
	job.Identifier.BuildID = job.ID

	if err := insertTransition(tx, job.ID, job.State, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	job.Transitions = []models.Transition{{State: job.State, At: now}}

	s.logger.Debug("saved job instance",
		slog.Int64("id", job.ID),
		slog.String("pipeline", id.PipelineName),
		slog.String("stage", id.StageName),
		slog.String("job", id.JobName))
	s.emit(JobEvent{Type: EventScheduled, Job: job})
	return job, nil
}

func (s *SQLiteStore) UpdateAssignedInfo(job *models.JobInstance) (*models.JobInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateUnlocked(job, "agent_uuid = ?", job.AgentUUID); err != nil {
		return nil, err
	}
	s.emit(JobEvent{Type: EventAssigned, Job: job})
	return job, nil
}

func (s *SQLiteStore) UpdateStateAndResult(job *models.JobInstance) (*models.JobInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateUnlocked(job, "result = ?", string(job.Result)); err != nil {
		return nil, err
	}
	s.emit(JobEvent{Type: EventUpdated, Job: job})
	return job, nil
}

// updateUnlocked writes the job's state plus one extra column and records a
// transition when the state changed.
func (s *SQLiteStore) updateUnlocked(job *models.JobInstance, set string, value interface{}) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow("SELECT state FROM job_instances WHERE id = ?", job.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job instance %d: %w", job.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query job state: %w", err)
	}

	now := s.clock()
	changed := current != string(job.State)
	if changed {
		_, err = tx.Exec("UPDATE job_instances SET state = ?, last_transition_at = ?, "+set+" WHERE id = ?",
			string(job.State), now, value, job.ID)
	} else {
		_, err = tx.Exec("UPDATE job_instances SET "+set+" WHERE id = ?", value, job.ID)
	}
	if err != nil {
		return fmt.Errorf("update job instance: %w", err)
	}
	if changed {
		if err := insertTransition(tx, job.ID, job.State, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if changed {
		job.Transitions = append(job.Transitions, models.Transition{State: job.State, At: now})
	}
	return nil
}

func insertTransition(tx *sql.Tx, jobID int64, state models.JobState, at time.Time) error {
	_, err := tx.Exec("INSERT INTO job_transitions (job_id, state, transitioned_at) VALUES (?, ?, ?)",
		jobID, string(state), at)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ignore(job *models.JobInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE job_instances SET ignored = 1 WHERE id = ? AND ignored = 0", job.ID)
	if err != nil {
		return fmt.Errorf("ignore job instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ignore job instance: %w", err)
	}
	if n == 0 {
		var one int
		err := s.db.QueryRow("SELECT 1 FROM job_instances WHERE id = ?", job.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job instance %d: %w", job.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("ignore job instance: %w", err)
		}
		job.Ignored = true
		return nil
	}
	job.Ignored = true
	s.emit(JobEvent{Type: EventIgnored, Job: job})
	return nil
}

func (s *SQLiteStore) IsValid(pipelineName, stageName, jobName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM job_instances WHERE pipeline_name = ? AND stage_name = ? AND name = ?",
		pipelineName, stageName, jobName,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count job instances: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) LatestCompletedJobs(pipelineName, stageName, jobName string, count int) ([]*models.JobInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJobs(`
		WHERE pipeline_name = ? AND stage_name = ? AND name = ? AND state = ?
		ORDER BY id DESC LIMIT ?
	`, pipelineName, stageName, jobName, string(models.JobCompleted), count)
}

func (s *SQLiteStore) LatestInProgressBuildByAgent(agentUUID string) (*models.JobInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states, args := inProgressStates()
	args = append(args, agentUUID)
	jobs, err := s.queryJobs("WHERE state IN ("+states+") AND agent_uuid = ? AND ignored = 0 ORDER BY id DESC LIMIT 1", args...)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("in-progress job on agent %s: %w", agentUUID, ErrNotFound)
	}
	return jobs[0], nil
}

func (s *SQLiteStore) FindHungJobs(liveAgents []string) ([]*models.JobInstance, error) {
	if len(liveAgents) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	states, args := inProgressStates()
	for _, a := range liveAgents {
		args = append(args, a)
	}
	query := "WHERE state IN (" + states + ") AND ignored = 0 AND agent_uuid IN (" + placeholders(len(liveAgents)) + ") ORDER BY id"
	jobs, err := s.queryJobs(query, args...)
	if err != nil {
		return nil, err
	}

	cutoff := s.clock().Add(-s.hungAfter)
	var hung []*models.JobInstance
	for _, j := range jobs {
		if err := s.loadTransitions(j); err != nil {
			return nil, err
		}
		last, ok := j.LastTransition()
		if ok && last.At.Before(cutoff) {
			hung = append(hung, j)
		}
	}
	return hung, nil
}

func (s *SQLiteStore) BuildByID(id int64) (*models.JobInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.jobByID(id)
}

func (s *SQLiteStore) BuildByIDWithTransitions(id int64) (*models.JobInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, err := s.jobByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.loadTransitions(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) jobByID(id int64) (*models.JobInstance, error) {
	jobs, err := s.queryJobs("WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job instance %d: %w", id, ErrNotFound)
	}
	return jobs[0], nil
}

func (s *SQLiteStore) ActiveJobs() ([]models.ActiveJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs, err := s.queryJobs("WHERE state NOT IN (?, ?) AND ignored = 0 ORDER BY id",
		string(models.JobCompleted), string(models.JobRescheduled))
	if err != nil {
		return nil, err
	}
	active := make([]models.ActiveJob, 0, len(jobs))
	for _, j := range jobs {
		active = append(active, models.ActiveJob{
			ID:              j.ID,
			PipelineName:    j.Identifier.PipelineName,
			PipelineCounter: j.Identifier.PipelineCounter,
			StageName:       j.Identifier.StageName,
			StageCounter:    j.Identifier.StageCounter,
			JobName:         j.Identifier.JobName,
			State:           j.State,
			AgentUUID:       j.AgentUUID,
		})
	}
	return active, nil
}

func (s *SQLiteStore) MostRecentJobWithTransitions(id models.JobIdentifier) (*models.JobInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs, err := s.queryJobs(`
		WHERE pipeline_name = ? AND pipeline_counter = ? AND stage_name = ? AND stage_counter = ? AND name = ?
		ORDER BY id DESC LIMIT 1
	`, id.PipelineName, id.PipelineCounter, id.StageName, id.StageCounter, id.JobName)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s/%d/%s/%d/%s: %w",
			id.PipelineName, id.PipelineCounter, id.StageName, id.StageCounter, id.JobName, ErrNotFound)
	}
	if err := s.loadTransitions(jobs[0]); err != nil {
		return nil, err
	}
	return jobs[0], nil
}

func (s *SQLiteStore) SavePlan(jobID int64, plan *models.JobPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan.JobID = jobID
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO job_plans (job_id, data) VALUES (?, ?)
		ON CONFLICT(job_id) DO UPDATE SET data = excluded.data
	`, jobID, string(data))
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPlan(jobID int64) (*models.JobPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow("SELECT data FROM job_plans WHERE job_id = ?", jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan for job %d: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	var plan models.JobPlan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &plan, nil
}

func (s *SQLiteStore) OrderedScheduledBuilds() ([]*models.JobPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT p.data FROM job_plans p
		JOIN job_instances j ON j.id = p.job_id
		WHERE j.state = ? AND j.ignored = 0
		ORDER BY j.scheduled_at, j.id
	`, string(models.JobScheduled))
	if err != nil {
		return nil, fmt.Errorf("list scheduled plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.JobPlan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var plan models.JobPlan
		if err := json.Unmarshal([]byte(data), &plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		plans = append(plans, &plan)
	}
	return plans, rows.Err()
}

// FindOriginalJobIdentifier follows a re-run job back to the instance it was copied from.
func (s *SQLiteStore) FindOriginalJobIdentifier(stage models.StageIdentifier, jobName string) (*models.JobIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs, err := s.queryJobs(`
		WHERE pipeline_name = ? AND pipeline_counter = ? AND stage_name = ? AND stage_counter = ? AND name = ?
		ORDER BY id DESC LIMIT 1
	`, stage.PipelineName, stage.PipelineCounter, stage.StageName, stage.StageCounter, jobName)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s in stage %s/%d: %w", jobName, stage.StageName, stage.StageCounter, ErrNotFound)
	}
	job := jobs[0]
	if job.OriginalJobID != 0 {
		if job, err = s.jobByID(job.OriginalJobID); err != nil {
			return nil, err
		}
	}
	id := job.Identifier
	return &id, nil
}

func (s *SQLiteStore) BuildingJobs() ([]models.JobIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states, args := inProgressStates()
	jobs, err := s.queryJobs("WHERE state IN ("+states+") AND ignored = 0 ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	ids := make([]models.JobIdentifier, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.Identifier)
	}
	return ids, nil
}

func (s *SQLiteStore) CompletedJobsOnAgent(agentUUID string, column HistoryColumn, order SortOrder, offset, limit int) ([]*models.JobInstance, error) {
	col, ok := historyColumns[column]
	if !ok {
		return nil, fmt.Errorf("unknown history column %q", column)
	}
	if order != Ascending && order != Descending {
		return nil, fmt.Errorf("unknown sort order %q", order)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJobs(
		"WHERE agent_uuid = ? AND state = ? ORDER BY "+col+" "+string(order)+", id "+string(order)+" LIMIT ? OFFSET ?",
		agentUUID, string(models.JobCompleted), limit, offset)
}

func (s *SQLiteStore) TotalCompletedJobsOnAgent(agentUUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM job_instances WHERE agent_uuid = ? AND state = ?",
		agentUUID, string(models.JobCompleted)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed jobs: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryJobs(where string, args ...interface{}) ([]*models.JobInstance, error) {
	rows, err := s.db.Query("SELECT "+jobColumns+" FROM job_instances "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query job instances: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobInstance
	for rows.Next() {
		var j models.JobInstance
		var state, result string
		err := rows.Scan(&j.ID, &j.StageID,
			&j.Identifier.PipelineName, &j.Identifier.PipelineCounter,
			&j.Identifier.StageName, &j.Identifier.StageCounter, &j.Identifier.JobName,
			&state, &result, &j.AgentUUID, &j.Ignored, &j.RunOnAllAgents, &j.RunMultiple,
			&j.OriginalJobID, &j.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("scan job instance: %w", err)
		}
		j.State = models.JobState(state)
		j.Result = models.JobResult(result)
		j.Identifier.BuildID = j.ID
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) loadTransitions(job *models.JobInstance) error {
	rows, err := s.db.Query(
		"SELECT state, transitioned_at FROM job_transitions WHERE job_id = ? ORDER BY transitioned_at, id",
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	job.Transitions = nil
	for rows.Next() {
		var t models.Transition
		var state string
		if err := rows.Scan(&state, &t.At); err != nil {
			return fmt.Errorf("scan transition: %w", err)
		}
		t.State = models.JobState(state)
		job.Transitions = append(job.Transitions, t)
	}
	return rows.Err()
}

func inProgressStates() (string, []interface{}) {
	states := []models.JobState{models.JobAssigned, models.JobPreparing, models.JobBuilding, models.JobCompleting}
	args := make([]interface{}, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	return placeholders(len(states)), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Watch support

func (s *SQLiteStore) Watch() <-chan JobEvent {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	ch := make(chan JobEvent, 100)
	s.watchers = append(s.watchers, ch)
	return ch
}

func (s *SQLiteStore) emit(event JobEvent) {
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()

	for _, ch := range s.watchers {
		select {
		case ch <- event:
		default:
			// full channel, drop
		}
	}
}
