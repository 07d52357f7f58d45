package entry

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/modules/location"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// mediaRefPattern matches stored filenames referenced by /media/ links in
// rendered content, used to associate uploads with the entry that embeds
// them.
var mediaRefPattern = regexp.MustCompile(`/media/([A-Za-z0-9][A-Za-z0-9._-]*)`)

// Create builds an entry and all its kind-specific rows in one transaction.
// A published entry gets its PublishedAt stamped now unless the input
// supplies one explicitly.
func (s *Service) Create(input *Input) (*models.EntryModel, error) {
	if err := validateKind(input); err != nil {
		return nil, err
	}

	entry := &models.EntryModel{
		Title:      input.Title,
		Content:    input.Content,
		Summary:    Summarize(input.Content),
		Kind:       input.Kind,
		Status:     input.Status,
		Visibility: input.Visibility,
		UserID:     input.UserID,
	}
	if entry.Status == "" {
		entry.Status = models.StatusDraft
	}
	if entry.Visibility == "" {
		entry.Visibility = models.VisibilityPublic
	}
	if entry.Status == models.StatusPublished {
		published := time.Now()
		if input.PublishedAt != nil {
			published = *input.PublishedAt
		}
		entry.PublishedAt = &published
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Create(entry).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.applyExtensions(tx, entry, input); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.logger.Info("entry created",
		zap.String("entry_id", entry.ID),
		zap.String("kind", string(entry.Kind)),
		zap.String("status", string(entry.Status)))
	return s.Get(entry.ID)
}

// Update rewrites an entry's content and sub-entities. The kind is fixed at
// creation: an input naming a different kind is rejected.
func (s *Service) Update(id string, input *Input) (*models.EntryModel, error) {
	entry, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if input.Kind != "" && input.Kind != entry.Kind {
		return nil, fmt.Errorf("%w: entry is %s, input is %s", ErrPostKindMismatch, entry.Kind, input.Kind)
	}
	input.Kind = entry.Kind
	if err := validateKind(input); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"title":   input.Title,
		"content": input.Content,
		"summary": Summarize(input.Content),
	}
	if input.Status != "" {
		updates["status"] = input.Status
		// PublishedAt is stamped exactly once, on the first transition to
		// published. Later edits keep the original timestamp.
		if input.Status == models.StatusPublished && entry.PublishedAt == nil {
			updates["published_at"] = time.Now()
		}
	}
	if input.Visibility != "" {
		updates["visibility"] = input.Visibility
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Model(&models.EntryModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	entry.Content = input.Content
	if err := s.applyExtensions(tx, entry, input); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Publish flips a draft to published, stamping PublishedAt on the first
// transition only.
func (s *Service) Publish(id string) (*models.EntryModel, error) {
	entry, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"status": models.StatusPublished}
	if entry.PublishedAt == nil {
		updates["published_at"] = time.Now()
	}
	if err := s.db.Model(&models.EntryModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Get loads an entry with all its extension rows.
func (s *Service) Get(id string) (*models.EntryModel, error) {
	var entry models.EntryModel
	err := s.db.
		Preload("Reply").Preload("Bookmark").Preload("Location").
		Preload("Checkin").Preload("Syndication").Preload("Streams").Preload("Files").
		First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Kind   models.EntryKind
	Status models.EntryStatus
	Stream string // stream slug
}

// Query builds the filtered, ordered entry query for pagination.
func (s *Service) Query(filter ListFilter) *gorm.DB {
	q := s.db.Model(&models.EntryModel{}).Order("created_at DESC")
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Stream != "" {
		q = q.Joins("JOIN entry_streams ON entry_streams.entry_model_id = entries.id").
			Joins("JOIN streams ON streams.id = entry_streams.stream_model_id").
			Where("streams.slug = ?", filter.Stream)
	}
	return q
}

// Delete removes an entry. Extension rows cascade at the database level;
// the stream and file join rows are cleared explicitly.
func (s *Service) Delete(id string) error {
	entry, err := s.Get(id)
	if err != nil {
		return err
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Model(entry).Association("Streams").Clear(); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Model(entry).Association("Files").Clear(); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(entry).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// validateKind rejects sub-entity payloads that contradict the entry kind.
func validateKind(input *Input) error {
	switch {
	case input.Reply != nil && input.Kind != models.KindReply:
		return fmt.Errorf("%w: reply data on %s entry", ErrPostKindMismatch, input.Kind)
	case input.Bookmark != nil && input.Kind != models.KindBookmark:
		return fmt.Errorf("%w: bookmark data on %s entry", ErrPostKindMismatch, input.Kind)
	case input.Checkin != nil && input.Kind != models.KindCheckin:
		return fmt.Errorf("%w: checkin data on %s entry", ErrPostKindMismatch, input.Kind)
	case input.Kind == models.KindReply && input.Reply == nil:
		return fmt.Errorf("%w: reply entry without reply data", ErrPostKindMismatch)
	case input.Kind == models.KindBookmark && input.Bookmark == nil:
		return fmt.Errorf("%w: bookmark entry without bookmark data", ErrPostKindMismatch)
	case input.Kind == models.KindCheckin && input.Checkin == nil:
		return fmt.Errorf("%w: checkin entry without checkin data", ErrPostKindMismatch)
	}
	return nil
}

// applyExtensions writes all kind-specific and auxiliary rows inside the
// caller's transaction. Single-row extensions are replaced wholesale,
// syndication URLs are deleted and recreated, streams and files are
// re-resolved from the input and content.
func (s *Service) applyExtensions(tx *gorm.DB, entry *models.EntryModel, input *Input) error {
	if err := s.applyLocation(tx, entry.ID, input.Location); err != nil {
		return err
	}

	if input.Reply != nil {
		if err := replaceOne(tx, entry.ID, &models.ReplyModel{
			EntryID:     entry.ID,
			URL:         input.Reply.URL,
			Title:       input.Reply.Title,
			Quote:       input.Reply.Quote,
			AuthorName:  input.Reply.AuthorName,
			AuthorURL:   input.Reply.AuthorURL,
			AuthorPhoto: input.Reply.AuthorPhoto,
		}, &models.ReplyModel{}); err != nil {
			return err
		}
	}
	if input.Bookmark != nil {
		if err := replaceOne(tx, entry.ID, &models.BookmarkModel{
			EntryID:     entry.ID,
			URL:         input.Bookmark.URL,
			Title:       input.Bookmark.Title,
			Quote:       input.Bookmark.Quote,
			AuthorName:  input.Bookmark.AuthorName,
			AuthorURL:   input.Bookmark.AuthorURL,
			AuthorPhoto: input.Bookmark.AuthorPhoto,
		}, &models.BookmarkModel{}); err != nil {
			return err
		}
	}
	if input.Checkin != nil {
		if err := replaceOne(tx, entry.ID, &models.CheckinModel{
			EntryID: entry.ID,
			Name:    input.Checkin.Name,
			URL:     input.Checkin.URL,
		}, &models.CheckinModel{}); err != nil {
			return err
		}
	}

	if err := s.applySyndication(tx, entry.ID, input.SyndicationURLs); err != nil {
		return err
	}
	if err := s.applyStreams(tx, entry, input.Streams); err != nil {
		return err
	}
	return s.associateFiles(tx, entry)
}

// applyLocation replaces the location row, or deletes it when the input has
// no usable point. A location without coordinates is never stored.
func (s *Service) applyLocation(tx *gorm.DB, entryID string, loc *location.Record) error {
	if err := tx.Unscoped().Where("entry_id = ?", entryID).Delete(&models.LocationModel{}).Error; err != nil {
		return err
	}
	if loc == nil || !loc.HasPoint() {
		return nil
	}
	return tx.Create(&models.LocationModel{
		EntryID:       entryID,
		StreetAddress: loc.StreetAddress,
		Locality:      loc.Locality,
		Region:        loc.Region,
		CountryName:   loc.CountryName,
		PostalCode:    loc.PostalCode,
		Latitude:      *loc.Latitude,
		Longitude:     *loc.Longitude,
	}).Error
}

// applySyndication clears and recreates the syndication URL set.
func (s *Service) applySyndication(tx *gorm.DB, entryID string, urls []string) error {
	if err := tx.Unscoped().Where("entry_id = ?", entryID).Delete(&models.SyndicationURLModel{}).Error; err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if err := tx.Create(&models.SyndicationURLModel{EntryID: entryID, URL: u}).Error; err != nil {
			return err
		}
	}
	return nil
}

// applyStreams resolves stream slugs, creating missing streams, and
// replaces the entry's stream set.
func (s *Service) applyStreams(tx *gorm.DB, entry *models.EntryModel, slugs []string) error {
	streams := make([]models.StreamModel, 0, len(slugs))
	for _, slug := range slugs {
		if slug == "" {
			continue
		}
		var stream models.StreamModel
		if err := tx.Where("slug = ?", slug).
			FirstOrCreate(&stream, models.StreamModel{Name: slug, Slug: slug}).Error; err != nil {
			return err
		}
		streams = append(streams, stream)
	}
	return tx.Model(entry).Association("Streams").Replace(streams)
}

// associateFiles links every upload referenced from the content to the
// entry, so deleting the entry can account for its media.
func (s *Service) associateFiles(tx *gorm.DB, entry *models.EntryModel) error {
	matches := mediaRefPattern.FindAllStringSubmatch(entry.Content, -1)
	if len(matches) == 0 {
		return tx.Model(entry).Association("Files").Clear()
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	var files []models.FileModel
	if err := tx.Where("name IN ?", names).Find(&files).Error; err != nil {
		return err
	}
	return tx.Model(entry).Association("Files").Replace(files)
}

// replaceOne deletes the existing 1:1 extension row for the entry and
// inserts the new one. Extension rows are owned wholesale by the entry, so
// the delete is unscoped: a soft-deleted row would still hold the unique
// entry_id slot and block the insert.
func replaceOne[T any](tx *gorm.DB, entryID string, row *T, model *T) error {
	if err := tx.Unscoped().Where("entry_id = ?", entryID).Delete(model).Error; err != nil {
		return err
	}
	return tx.Create(row).Error
}
