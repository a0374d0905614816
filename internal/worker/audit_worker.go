package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roomdesk/internal/database"
	"roomdesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskJournalRequested = "journal_requested"
	TaskJournalApproved  = "journal_approved"
	TaskJournalRejected  = "journal_rejected"
	TaskJournalCancelled = "journal_cancelled"
)

// JournalSink receives finished reservation records.
type JournalSink interface {
	AppendReservation(ctx context.Context, r *models.Reservation, action string, actor models.Actor) error
}

// auditTaskPayload is persisted in AuditTask.Payload as JSON.
type auditTaskPayload struct {
	Reservation *models.Reservation `json:"reservation"`
	Action      string              `json:"action"`
	Actor       models.Actor        `json:"actor"`
}

// AuditWorker drains the audit_queue table and writes entries to the journal.
type AuditWorker struct {
	db            *database.DB
	journal       JournalSink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.AuditTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewAuditWorker builds a worker with sane defaults.
func NewAuditWorker(db *database.DB, journal JournalSink, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *AuditWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &AuditWorker{
		db:            db,
		journal:       journal,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.AuditTask, 128),
		redisQueueKey: "audit:queue",
		deadLetterKey: "audit:dead_letter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// SetPollInterval overrides the idle poll interval.
func (w *AuditWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// SetBatchSize overrides how many queued tasks one poll picks up.
func (w *AuditWorker) SetBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}

// EnqueueTask persists the task to DB and schedules it via redis or the
// in-memory queue.
func (w *AuditWorker) EnqueueTask(ctx context.Context, taskType string, r *models.Reservation, actor models.Actor) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if r == nil || r.ID == 0 {
		return errors.New("reservation id is required")
	}

	payload := auditTaskPayload{
		Reservation: r,
		Action:      actionForTask(taskType),
		Actor:       actor,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.AuditTask{
		TaskType:      taskType,
		ReservationID: r.ID,
		Payload:       string(payloadBytes),
		Status:        "pending",
		CreatedAt:     time.Now(),
	}

	if err := w.db.CreateAuditTask(ctx, &task); err != nil {
		return fmt.Errorf("persist audit task: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("audit_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	// Fallback to in-memory queue if redis missing or failed.
	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("audit_worker: in-memory queue full, task dropped to polling")
	}

	return nil
}

func actionForTask(taskType string) string {
	switch taskType {
	case TaskJournalRequested:
		return "requested"
	case TaskJournalApproved:
		return models.ActionApprove
	case TaskJournalRejected:
		return models.ActionReject
	case TaskJournalCancelled:
		return models.ActionCancel
	default:
		return taskType
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *AuditWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("audit_worker: started")
	defer w.logger.Info().Msg("audit_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingAuditTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("audit_worker: fetch pending")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *AuditWorker) tryLocalQueue() (models.AuditTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.AuditTask{}, false
	}
}

func (w *AuditWorker) tryRedis(ctx context.Context) (models.AuditTask, bool) {
	if w.redis == nil {
		return models.AuditTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.AuditTask{}, false
		}
		w.logger.Error().Err(err).Msg("audit_worker: redis BRPOP error")
		return models.AuditTask{}, false
	}
	if len(res) != 2 {
		return models.AuditTask{}, false
	}
	var task models.AuditTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("audit_worker: decode redis task")
		return models.AuditTask{}, false
	}
	return task, true
}

func (w *AuditWorker) processTask(ctx context.Context, task *models.AuditTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}
	if payload.Reservation == nil {
		w.failTask(ctx, task, errors.New("reservation payload missing"))
		return
	}

	if err := w.journal.AppendReservation(ctx, payload.Reservation, payload.Action, payload.Actor); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateAuditTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("audit_worker: mark completed")
	}
}

func (w *AuditWorker) retryOrFail(ctx context.Context, task *models.AuditTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateAuditTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("audit_worker: mark failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := time.Now().Add(nextDelay)
	if err := w.db.UpdateAuditTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("audit_worker: mark retry")
	}
}

func (w *AuditWorker) failTask(ctx context.Context, task *models.AuditTask, cause error) {
	if err := w.db.UpdateAuditTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("audit_worker: mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *AuditWorker) decodePayload(raw string) (auditTaskPayload, error) {
	var payload auditTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *AuditWorker) pushRedis(ctx context.Context, task models.AuditTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *AuditWorker) pushDeadLetter(ctx context.Context, task *models.AuditTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("audit_worker: encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("audit_worker: dead letter push")
	}
}
