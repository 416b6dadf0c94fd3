package jobs

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrJobNotFound is returned when a job ID is unknown to the store.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeMessage represents one inbound Telegram update.
	JobTypeMessage JobType = "message"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// MessageJob carries one Telegram update to a worker. A message job is
// never retried: the user has been answered once already, successfully or
// not.
type MessageJob struct {
	JobID     string    `json:"job_id"`
	UpdateID  int       `json:"update_id"`
	ChatID    int64     `json:"chat_id"`
	MessageID int       `json:"message_id"`
	Status    JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Update is the raw update; it is not exposed over the jobs API.
	Update tgbotapi.Update `json:"-"`
}

// NewMessageJob wraps an update, copying the identifying fields.
func NewMessageJob(update tgbotapi.Update) *MessageJob {
	job := &MessageJob{UpdateID: update.UpdateID, Update: update}
	if msg := update.Message; msg != nil {
		job.MessageID = msg.MessageID
		if msg.Chat != nil {
			job.ChatID = msg.Chat.ID
		}
	}
	return job
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *MessageJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *MessageJob) GetType() JobType {
	return JobTypeMessage
}

// GetStatus implements the Job interface.
func (j *MessageJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues message jobs.
type Publisher interface {
	PublishMessage(ctx context.Context, job *MessageJob) error
	Close() error
}

// Consumer runs a handler for every queued job.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. An error marks the job failed.
type JobHandler func(ctx context.Context, job *MessageJob) error

// JobStore records job status so it can be inspected over the API.
type JobStore interface {
	SaveJob(ctx context.Context, job *MessageJob) error
	GetJob(ctx context.Context, jobID string) (*MessageJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*MessageJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	ChatID int64
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
