package webmention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/tanzawa/core/internal/config"
	"github.com/tanzawa/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxSourceBody caps how much of a source page is stored. Mentions live in
// the markup, not in megabytes of trailing payload.
const maxSourceBody = 1 << 20

var entryIDPattern = regexp.MustCompile(`/entries/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)

type Receiver struct {
	db     *gorm.DB
	cfg    *config.AppConfig
	logger *zap.Logger
	client *http.Client
}

func NewReceiver(db *gorm.DB, cfg *config.AppConfig, logger *zap.Logger) *Receiver {
	return &Receiver{
		db:     db,
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.FetchTimeout()},
	}
}

// Receive handles an inbound webmention: it validates the pair, snapshots
// the source page, and runs ingestion. The response row keeps the raw body
// so moderation can re-parse without refetching.
func (r *Receiver) Receive(ctx context.Context, source, target string) error {
	srcURL, err := url.Parse(source)
	if err != nil || (srcURL.Scheme != "http" && srcURL.Scheme != "https") {
		return fmt.Errorf("invalid source url")
	}
	tgtURL, err := url.Parse(target)
	if err != nil || (tgtURL.Scheme != "http" && tgtURL.Scheme != "https") {
		return fmt.Errorf("invalid target url")
	}
	if source == target {
		return fmt.Errorf("source and target are identical")
	}
	if !r.cfg.IsLocalHost(tgtURL.Host) {
		return ErrTargetNotLocal
	}

	body, err := r.fetchSource(ctx, source)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}

	resp, err := r.upsertResponse(source, target, body)
	if err != nil {
		return err
	}
	return r.Ingest(resp.ID)
}

// upsertResponse stores the fetched source snapshot. A re-delivery of the
// same (source, target) pair replaces the body on the existing row instead
// of minting a new response, so its moderation row survives and gets reset.
func (r *Receiver) upsertResponse(source, target, body string) (*models.WebmentionResponseModel, error) {
	var resp models.WebmentionResponseModel
	err := r.db.Where("source = ? AND target = ?", source, target).First(&resp).Error
	switch {
	case err == nil:
		resp.Body = body
		resp.Reviewed = false
		if err := r.db.Save(&resp).Error; err != nil {
			return nil, err
		}
		return &resp, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		resp = models.WebmentionResponseModel{Source: source, Target: target, Body: body}
		if err := r.db.Create(&resp).Error; err != nil {
			return nil, err
		}
		return &resp, nil
	default:
		return nil, err
	}
}

func (r *Receiver) fetchSource(ctx context.Context, source string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("source returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	return string(body), err
}

// Ingest parses a stored response into the moderation queue. Responses that
// resolve to no entry, or whose source no longer mentions the target, are
// discarded. A re-delivery for a known (response, entry) pair resets the
// moderation decision and replaces the cached comment.
func (r *Receiver) Ingest(responseID string) error {
	var resp models.WebmentionResponseModel
	if err := r.db.First(&resp, "id = ?", responseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	entryID, ok := r.resolveEntry(resp.Target)
	if !ok {
		r.logger.Info("webmention target resolves to no entry",
			zap.String("target", resp.Target), zap.String("response_id", resp.ID))
		return r.db.Delete(&resp).Error
	}

	comment, mtype := ExtractComment(resp.Body, resp.Source, resp.Target)
	if comment == nil {
		r.logger.Info("source no longer mentions target",
			zap.String("source", resp.Source), zap.String("target", resp.Target))
		return r.db.Delete(&resp).Error
	}

	return r.upsertModeration(resp.ID, entryID, mtype, comment)
}

// resolveEntry maps a local target URL to an entry id: the canonical
// /entries/<uuid> path first, then the legacy path alias table.
func (r *Receiver) resolveEntry(target string) (string, bool) {
	if m := entryIDPattern.FindStringSubmatch(target); m != nil {
		var entry models.EntryModel
		if err := r.db.Select("id").First(&entry, "id = ?", m[1]).Error; err == nil {
			return entry.ID, true
		}
		return "", false
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	var alias models.PathAliasModel
	if err := r.db.First(&alias, "path = ?", u.Path).Error; err != nil {
		return "", false
	}
	var entry models.EntryModel
	if err := r.db.Select("id").First(&entry, "id = ?", alias.EntryID).Error; err != nil {
		return "", false
	}
	return entry.ID, true
}

func (r *Receiver) upsertModeration(responseID, entryID string, mtype models.MentionType, comment map[string]interface{}) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	var moderation models.WebmentionModerationModel
	err := tx.Where("response_id = ? AND entry_id = ?", responseID, entryID).First(&moderation).Error
	switch {
	case err == nil:
		// Re-delivery: the earlier approve/disapprove decision no longer
		// applies to the new content. Save goes through the struct so the
		// json serializer on CommentData applies.
		moderation.Approved = nil
		moderation.MentionType = mtype
		moderation.CommentData = comment
		if err := tx.Save(&moderation).Error; err != nil {
			tx.Rollback()
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		moderation = models.WebmentionModerationModel{
			ResponseID:  responseID,
			EntryID:     entryID,
			MentionType: mtype,
			CommentData: comment,
		}
		if err := tx.Create(&moderation).Error; err != nil {
			tx.Rollback()
			return err
		}
	default:
		tx.Rollback()
		return err
	}

	if err := tx.Model(&models.WebmentionResponseModel{}).
		Where("id = ?", responseID).Update("reviewed", false).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// Approve accepts a pending mention for display.
func (r *Receiver) Approve(moderationID string) error {
	return r.moderate(moderationID, true)
}

// Disapprove hides a mention without deleting the underlying response.
func (r *Receiver) Disapprove(moderationID string) error {
	return r.moderate(moderationID, false)
}

func (r *Receiver) moderate(moderationID string, approved bool) error {
	var moderation models.WebmentionModerationModel
	if err := r.db.First(&moderation, "id = ?", moderationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gorm.ErrRecordNotFound
		}
		return err
	}

	tx := r.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			panic(rec)
		}
	}()

	if err := tx.Model(&moderation).Update("approved", approved).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Model(&models.WebmentionResponseModel{}).
		Where("id = ?", moderation.ResponseID).Update("reviewed", true).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// Query builds the moderation listing, newest first. approvedFilter narrows
// by decision; "pending" selects undecided rows.
func (r *Receiver) Query(approvedFilter string) *gorm.DB {
	q := r.db.Model(&models.WebmentionModerationModel{}).
		Preload("Response").Order("created_at DESC")
	switch approvedFilter {
	case "pending":
		q = q.Where("approved IS NULL")
	case "approved":
		q = q.Where("approved = ?", true)
	case "rejected":
		q = q.Where("approved = ?", false)
	}
	return q
}
