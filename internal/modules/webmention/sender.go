package webmention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tanzawa/core/internal/config"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Sender struct {
	db     *gorm.DB
	cfg    *config.AppConfig
	logger *zap.Logger
	client *http.Client
	queue  *taskqueue.Service
}

func NewSender(db *gorm.DB, cfg *config.AppConfig, logger *zap.Logger, queue *taskqueue.Service) *Sender {
	return &Sender{
		db:     db,
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.FetchTimeout()},
		queue:  queue,
	}
}

// RegisterHandlers binds the sender's task types to the queue worker.
func (s *Sender) RegisterHandlers() {
	if s.queue != nil {
		s.queue.RegisterHandler(TaskTypeSend, s.HandleTask)
	}
}

// SendForEntry notifies every external page a just-published entry links
// to. Targets come from content links plus the reply or bookmark URL; local
// URLs are skipped. Delivery is queued when async mode is on, otherwise it
// happens inline with a bounded timeout.
func (s *Sender) SendForEntry(ctx context.Context, entry *models.EntryModel) {
	if !entry.IsPublished() {
		return
	}
	source := s.cfg.EntryURL(entry.ID)

	for _, target := range s.collectTargets(entry) {
		if s.cfg.Webmention.Async && s.queue != nil {
			dedup := entry.ID + ":" + target
			if _, err := s.queue.Enqueue(ctx, TaskTypeSend, sendTask{
				EntryID: entry.ID,
				Source:  source,
				Target:  target,
			}, dedup); err != nil {
				s.logger.Warn("webmention enqueue failed",
					zap.String("entry_id", entry.ID), zap.String("target", target), zap.Error(err))
			}
			continue
		}
		s.Deliver(ctx, entry.ID, source, target)
	}
}

// collectTargets gathers the deduplicated external URLs an entry points at.
func (s *Sender) collectTargets(entry *models.EntryModel) []string {
	candidates := DiscoverLinks(entry.Content)
	if entry.Reply != nil {
		candidates = append(candidates, entry.Reply.URL)
	}
	if entry.Bookmark != nil {
		candidates = append(candidates, entry.Bookmark.URL)
	}

	var targets []string
	seen := map[string]struct{}{}
	for _, candidate := range candidates {
		u, err := url.Parse(candidate)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if s.cfg.IsLocalHost(u.Host) {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		targets = append(targets, candidate)
	}
	return targets
}

// HandleTask is the queue worker entry point for asynchronous delivery.
func (s *Sender) HandleTask(ctx context.Context, payload json.RawMessage) error {
	var task sendTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode send task: %w", err)
	}
	s.Deliver(ctx, task.EntryID, task.Source, task.Target)
	return nil
}

// Deliver discovers the target's endpoint, posts the mention, and records
// the outcome. The record is unique per (entry, target); repeated publishes
// update it in place.
func (s *Sender) Deliver(ctx context.Context, entryID, source, target string) {
	success, body := s.attempt(ctx, source, target)
	s.recordResult(entryID, target, success, body)

	if success {
		s.logger.Info("webmention sent", zap.String("entry_id", entryID), zap.String("target", target))
	} else {
		s.logger.Warn("webmention failed",
			zap.String("entry_id", entryID), zap.String("target", target), zap.String("detail", body))
	}
}

func (s *Sender) attempt(ctx context.Context, source, target string) (bool, string) {
	endpoint, err := DiscoverEndpoint(ctx, s.client, target)
	if err != nil {
		return false, err.Error()
	}

	form := url.Values{"source": {source}, "target": {target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	return ok, fmt.Sprintf("%d %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// recordResult upserts the send record for (entry, target). A concurrent
// create losing the unique-index race falls back to an update.
func (s *Sender) recordResult(entryID, target string, success bool, body string) {
	updates := map[string]interface{}{
		"sent_at":       time.Now(),
		"success":       success,
		"response_body": body,
	}

	res := s.db.Model(&models.WebmentionSendModel{}).
		Where("entry_id = ? AND target = ?", entryID, target).
		Updates(updates)
	if res.Error == nil && res.RowsAffected > 0 {
		return
	}

	record := &models.WebmentionSendModel{
		EntryID:      entryID,
		Target:       target,
		SentAt:       time.Now(),
		Success:      success,
		ResponseBody: body,
	}
	if err := s.db.Create(record).Error; err != nil {
		// Unique index collision: another delivery created the row first.
		if uerr := s.db.Model(&models.WebmentionSendModel{}).
			Where("entry_id = ? AND target = ?", entryID, target).
			Updates(updates).Error; uerr != nil {
			s.logger.Warn("webmention record upsert failed",
				zap.String("entry_id", entryID), zap.String("target", target), zap.Error(uerr))
		}
	}
}

// SendSyndication notifies a syndication endpoint (e.g. a POSSE bridge)
// about an entry exactly once. A prior successful send for the same target
// returns ErrAlreadySentWebmention.
func (s *Sender) SendSyndication(ctx context.Context, entry *models.EntryModel, mentionTarget string) error {
	var existing models.WebmentionSendModel
	err := s.db.Where("entry_id = ? AND target = ? AND success = ?", entry.ID, mentionTarget, true).
		First(&existing).Error
	if err == nil {
		return ErrAlreadySentWebmention
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	s.Deliver(ctx, entry.ID, s.cfg.EntryURL(entry.ID), mentionTarget)
	return nil
}
