package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	redisc "github.com/tanzawa/core/internal/pkg/redis"
	"go.uber.org/zap"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is a unit of background work stored in Redis. Webmention delivery is
// the main producer: payloads carry the (entry, target) pair and the dedup
// key collapses repeated publishes of the same pair into one queued send.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	keyPrefix   = "tz:task:"
	keyQueue    = "tz:tasks:queue"  // list: pending task ids in FIFO order
	keyDedupSet = "tz:tasks:dedup:" // hash: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour
)

// Handler processes one task payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Service manages the Redis-backed task queue.
type Service struct {
	rc       *redisc.Client
	logger   *zap.Logger
	handlers map[string]Handler
}

func NewService(rc *redisc.Client, logger *zap.Logger) *Service {
	return &Service{rc: rc, logger: logger, handlers: map[string]Handler{}}
}

// RegisterHandler binds a task type to its processing function. Call before
// Run; the handler map is not mutated afterwards.
func (s *Service) RegisterHandler(taskType string, h Handler) {
	s.handlers[taskType] = h
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue creates a new task, respecting deduplication: an identical pending
// task absorbs the new enqueue.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*Task, error) {
	if dedupKey != "" {
		existing, err := s.rc.Raw().HGet(ctx, keyDedupSet+taskType, dedupKey).Result()
		if err == nil && existing != "" {
			if task, err := s.GetByID(ctx, existing); err == nil && task != nil && task.Status == TaskPending {
				return task, nil
			}
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		DedupKey:  dedupKey,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.RPush(ctx, keyQueue, task.ID)
	if dedupKey != "" {
		pipe.HSet(ctx, keyDedupSet+taskType, dedupKey, task.ID)
		pipe.Expire(ctx, keyDedupSet+taskType, taskTTL)
	}
	_, err = pipe.Exec(ctx)
	return task, err
}

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task Task
	return &task, json.Unmarshal(data, &task)
}

// Run blocks, popping tasks and dispatching them to registered handlers
// until ctx is cancelled. Intended to run in its own goroutine.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := s.rc.Raw().BLPop(ctx, 5*time.Second, keyQueue).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			s.logger.Warn("task queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		s.process(ctx, res[1])
	}
}

func (s *Service) process(ctx context.Context, id string) {
	task, err := s.GetByID(ctx, id)
	if err != nil || task == nil {
		return
	}

	handler, ok := s.handlers[task.Type]
	if !ok {
		s.setStatus(ctx, task, TaskFailed, "no handler for task type")
		return
	}

	s.setStatus(ctx, task, TaskRunning, "")
	if err := handler(ctx, task.Payload); err != nil {
		s.logger.Warn("task failed", zap.String("type", task.Type), zap.String("id", task.ID), zap.Error(err))
		s.setStatus(ctx, task, TaskFailed, err.Error())
		return
	}
	s.setStatus(ctx, task, TaskCompleted, "")
}

func (s *Service) setStatus(ctx context.Context, task *Task, status TaskStatus, errMsg string) {
	task.Status = status
	task.UpdatedAt = time.Now()
	task.Error = errMsg

	if (status == TaskCompleted || status == TaskFailed) && task.DedupKey != "" {
		s.rc.Raw().HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	s.rc.Raw().Set(ctx, s.taskKey(task.ID), data, taskTTL)
}
