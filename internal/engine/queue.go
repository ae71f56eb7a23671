package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Status is an UploadTask's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Enqueue rejection sentinels.
var (
	ErrTypeNotAllowed = errors.New("engine: file type not allowed")
	ErrTooLarge       = errors.New("engine: file exceeds size limit")
	ErrDuplicate      = errors.New("engine: file already queued")
	ErrUploading      = errors.New("engine: cannot remove a file while it is uploading")
)

// Task is one queued upload. Mutated only by the queue's run loop,
// under the queue's lock; retained after a terminal state so callers
// can display the outcome.
type Task struct {
	Name             string
	MimeType         string
	Size             int64
	Source           string
	Status           Status
	BytesTransferred int64
	Err              error
}

// QueueConfig bounds what may be enqueued.
type QueueConfig struct {
	// AllowedTypes are MIME patterns: exact ("image/png") or category
	// wildcards ("image/*"). Empty allows everything.
	AllowedTypes []string
	// MaxSize rejects larger files at enqueue time. Zero disables.
	MaxSize int64
}

// TaskUploadFunc performs the upload for one task, reporting
// acknowledged bytes through progress.
type TaskUploadFunc func(ctx context.Context, task *Task, progress ProgressFunc) error

// Queue is a session-scoped batch of upload tasks. It owns all batch
// state explicitly — there are no package-level caches — and processes
// items strictly one at a time so progress stays monotonic and at most
// one buffered payload is in flight.
type Queue struct {
	cfg    QueueConfig
	logger *slog.Logger

	mu         sync.Mutex
	tasks      []*Task
	running    bool
	totalBytes int64
	doneBytes  int64
}

// NewQueue creates an empty batch queue.
func NewQueue(cfg QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{cfg: cfg, logger: logger}
}

// Add validates and enqueues a file. Duplicates are detected by
// (name, size) pairs, matching how the queue identifies files to users.
func (q *Queue) Add(name, mimeType string, size int64, source string) (*Task, error) {
	if !q.typeAllowed(mimeType) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrTypeNotAllowed, name, mimeType)
	}

	if q.cfg.MaxSize > 0 && size > q.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, name, size)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.Name == name && t.Size == size {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
	}

	task := &Task{
		Name:     name,
		MimeType: mimeType,
		Size:     size,
		Source:   source,
		Status:   StatusPending,
	}
	q.tasks = append(q.tasks, task)

	// A file appended mid-batch is uploaded by the active run, so its
	// bytes join the batch denominator immediately.
	if q.running {
		q.totalBytes += size
	}

	q.logger.Debug("file queued",
		slog.String("name", name),
		slog.Int64("size", size),
	)

	return task, nil
}

// Remove drops the task at index i. A task mid-upload cannot be removed.
func (q *Queue) Remove(i int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i < 0 || i >= len(q.tasks) {
		return fmt.Errorf("engine: no queued file at index %d", i)
	}

	if q.tasks[i].Status == StatusUploading {
		return ErrUploading
	}

	// A pending task removed mid-batch leaves the denominator too.
	if q.running && q.tasks[i].Status == StatusPending {
		q.totalBytes -= q.tasks[i].Size
	}

	q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)

	return nil
}

// Tasks returns a snapshot of the queue's current task list. The run
// loop mutates task fields under the queue lock, so read them only
// after Run has returned or from within the run's own upload callback.
func (q *Queue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Task, len(q.tasks))
	copy(out, q.tasks)

	return out
}

// Progress returns the whole-batch fraction of acknowledged bytes,
// monotonically non-decreasing across one Run.
func (q *Queue) Progress() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.totalBytes == 0 {
		return 0
	}

	return float64(q.doneBytes) / float64(q.totalBytes)
}

// Run uploads every pending task in enqueue order, one at a time.
// Each iteration re-scans the live queue for its first pending task,
// so a file appended mid-batch is still picked up and a removal never
// shifts a still-pending task out of the walk. Per-item failures are
// recorded on the task and the batch continues; Run only returns
// early when ctx is canceled.
func (q *Queue) Run(ctx context.Context, upload TaskUploadFunc) error {
	q.mu.Lock()

	if q.running {
		q.mu.Unlock()
		return errors.New("engine: batch already in progress")
	}

	q.running = true
	q.doneBytes = 0
	q.totalBytes = 0

	for _, t := range q.tasks {
		if t.Status == StatusPending {
			q.totalBytes += t.Size
		}
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	for {
		task, ok := q.nextPending()
		if !ok {
			break
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("engine: batch canceled: %w", err)
		}

		q.runOne(ctx, task, upload)
	}

	return nil
}

// runOne drives a single task through its only legal transitions:
// uploading, then exactly one of success or error.
func (q *Queue) runOne(ctx context.Context, task *Task, upload TaskUploadFunc) {
	q.setStatus(task, StatusUploading, nil)

	progress := func(delta int64) {
		q.mu.Lock()
		task.BytesTransferred += delta
		q.doneBytes += delta
		q.mu.Unlock()
	}

	if err := upload(ctx, task, progress); err != nil {
		q.setStatus(task, StatusError, err)

		q.logger.Error("upload failed",
			slog.String("name", task.Name),
			slog.String("error", err.Error()),
		)

		return
	}

	q.setStatus(task, StatusSuccess, nil)

	q.logger.Info("upload succeeded",
		slog.String("name", task.Name),
		slog.Int64("size", task.Size),
	)
}

// nextPending returns the first pending task in the queue's current
// order. The run loop makes progress because runOne always moves the
// returned task out of StatusPending.
func (q *Queue) nextPending() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.Status == StatusPending {
			return t, true
		}
	}

	return nil, false
}

func (q *Queue) setStatus(task *Task, status Status, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.Status = status
	task.Err = err
}

func (q *Queue) typeAllowed(mimeType string) bool {
	if len(q.cfg.AllowedTypes) == 0 {
		return true
	}

	for _, pattern := range q.cfg.AllowedTypes {
		if category, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(mimeType, category+"/") {
				return true
			}

			continue
		}

		if mimeType == pattern {
			return true
		}
	}

	return false
}
