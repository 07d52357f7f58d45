package micropub

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	"github.com/tanzawa/core/internal/config"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/modules/entry"
	"github.com/tanzawa/core/internal/modules/indieauth"
	"github.com/tanzawa/core/internal/modules/location"
	"github.com/tanzawa/core/internal/modules/webmention"
	"go.uber.org/zap"
)

var entryURLPattern = regexp.MustCompile(`/entries/([0-9a-fA-F-]{36})`)

// Service is the Micropub dispatcher: it authorizes the request, normalizes
// the body, and routes it to the entry builder, then triggers webmention
// delivery for published entries.
type Service struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	tokens  *indieauth.Service
	entries *entry.Service
	sender  *webmention.Sender
	media   *MediaService
	client  *http.Client
}

func NewService(cfg *config.AppConfig, logger *zap.Logger, tokens *indieauth.Service,
	entries *entry.Service, sender *webmention.Sender, media *MediaService) *Service {
	return &Service{
		cfg:     cfg,
		logger:  logger,
		tokens:  tokens,
		entries: entries,
		sender:  sender,
		media:   media,
		client:  &http.Client{Timeout: cfg.FetchTimeout()},
	}
}

// Authorize resolves the bearer token and checks the scope for the action.
func (s *Service) Authorize(key, scope string) (*models.IndieAuthTokenModel, error) {
	if key == "" {
		return nil, errMissingToken
	}
	return s.tokens.VerifyAccess(key, scope)
}

// Create builds an entry from a normalized Micropub object. Photo uploads
// arrive separately from multipart requests and are appended to the content
// when not already referenced inline.
func (s *Service) Create(ctx context.Context, token *models.IndieAuthTokenModel, obj Object, photos []*multipart.FileHeader) (*models.EntryModel, ValidationErrors, error) {
	if errs := validate(obj); len(errs) > 0 {
		return nil, errs, nil
	}

	content := entry.RenderContent(contentValue(obj))
	content, _, err := s.media.ExtractInlineImages(ctx, content)
	if err != nil {
		return nil, nil, err
	}
	content, err = s.appendPhotos(ctx, content, obj, photos)
	if err != nil {
		return nil, nil, err
	}

	input := &entry.Input{
		Kind:            entry.Classify(obj.Properties),
		Status:          statusValue(obj),
		Visibility:      visibilityValue(obj),
		UserID:          token.UserID,
		Title:           obj.First("name"),
		Content:         content,
		PublishedAt:     publishedValue(obj),
		Streams:         obj.Strings("category"),
		Location:        location.Extract(obj.Properties),
		SyndicationURLs: obj.Strings("syndication"),
	}

	switch input.Kind {
	case models.KindReply:
		input.Reply = entry.FetchLinkedPageMeta(ctx, s.client, obj.First("in_reply_to"))
	case models.KindBookmark:
		input.Bookmark = entry.FetchLinkedPageMeta(ctx, s.client, obj.First("bookmark_of"))
	case models.KindCheckin:
		checkin, checkinLoc := parseCheckin(obj)
		input.Checkin = checkin
		if input.Location == nil {
			input.Location = checkinLoc
		}
	}

	created, err := s.entries.Create(input)
	if err != nil {
		return nil, nil, err
	}

	if created.IsPublished() {
		s.sender.SendForEntry(ctx, created)
		s.syndicate(ctx, created, obj.Strings("mp_syndicate_to"))
	}
	return created, nil, nil
}

// Update applies a Micropub update action. Supported operations are
// property replacement (name, content, post-status) and adding syndication
// URLs; structural rewrites go through delete-and-recreate.
func (s *Service) Update(ctx context.Context, entryURL string, replace, add map[string][]interface{}) (*models.EntryModel, error) {
	id, err := s.resolveEntryURL(entryURL)
	if err != nil {
		return nil, err
	}
	current, err := s.entries.Get(id)
	if err != nil {
		return nil, err
	}

	input := &entry.Input{
		Kind:       current.Kind,
		UserID:     current.UserID,
		Title:      current.Title,
		Content:    current.Content,
		Visibility: current.Visibility,
	}
	if current.Location != nil {
		input.Location = &location.Record{
			StreetAddress: current.Location.StreetAddress,
			Locality:      current.Location.Locality,
			Region:        current.Location.Region,
			CountryName:   current.Location.CountryName,
			PostalCode:    current.Location.PostalCode,
			Latitude:      &current.Location.Latitude,
			Longitude:     &current.Location.Longitude,
		}
	}
	if current.Reply != nil {
		input.Reply = linkedFromModel(current.Reply.URL, current.Reply.Title, current.Reply.Quote,
			current.Reply.AuthorName, current.Reply.AuthorURL, current.Reply.AuthorPhoto)
	}
	if current.Bookmark != nil {
		input.Bookmark = linkedFromModel(current.Bookmark.URL, current.Bookmark.Title, current.Bookmark.Quote,
			current.Bookmark.AuthorName, current.Bookmark.AuthorURL, current.Bookmark.AuthorPhoto)
	}
	if current.Checkin != nil {
		input.Checkin = &entry.CheckinInput{Name: current.Checkin.Name, URL: current.Checkin.URL}
	}
	for _, syn := range current.Syndication {
		input.SyndicationURLs = append(input.SyndicationURLs, syn.URL)
	}
	for _, stream := range current.Streams {
		input.Streams = append(input.Streams, stream.Slug)
	}

	if values, ok := replace["name"]; ok {
		input.Title = firstString(values)
	}
	if values, ok := replace["content"]; ok {
		content := entry.RenderContent(firstString(values))
		content, _, err := s.media.ExtractInlineImages(ctx, content)
		if err != nil {
			return nil, err
		}
		input.Content = content
	}
	if values, ok := replace["post_status"]; ok {
		if firstString(values) == "draft" {
			input.Status = models.StatusDraft
		} else {
			input.Status = models.StatusPublished
		}
	}
	for _, v := range add["syndication"] {
		if u, ok := v.(string); ok {
			input.SyndicationURLs = append(input.SyndicationURLs, u)
		}
	}

	updated, err := s.entries.Update(id, input)
	if err != nil {
		return nil, err
	}
	if updated.IsPublished() {
		s.sender.SendForEntry(ctx, updated)
	}
	return updated, nil
}

// Delete removes the entry behind a permalink.
func (s *Service) Delete(url string) error {
	id, err := s.resolveEntryURL(url)
	if err != nil {
		return err
	}
	return s.entries.Delete(id)
}

// Config is the q=config response payload.
func (s *Service) Config() map[string]interface{} {
	return map[string]interface{}{
		"media-endpoint": s.cfg.SiteURL + "/micropub/media",
		"syndicate-to":   s.SyndicateTo(),
	}
}

// SyndicateTo lists the configured syndication targets.
func (s *Service) SyndicateTo() []config.SyndicationTarget {
	targets := s.cfg.Micropub.SyndicationTargets
	if targets == nil {
		targets = []config.SyndicationTarget{}
	}
	return targets
}

// syndicate pushes the entry to each requested syndication target via a
// webmention to the target's bridge endpoint. Repeat requests are absorbed
// by the sender's already-sent guard.
func (s *Service) syndicate(ctx context.Context, e *models.EntryModel, uids []string) {
	for _, uid := range uids {
		target, ok := s.findTarget(uid)
		if !ok {
			s.logger.Warn("unknown syndication target", zap.String("uid", uid), zap.String("entry_id", e.ID))
			continue
		}
		if err := s.sender.SendSyndication(ctx, e, target.Mention); err != nil &&
			!errors.Is(err, webmention.ErrAlreadySentWebmention) {
			s.logger.Warn("syndication failed", zap.String("uid", uid), zap.Error(err))
		}
	}
}

func (s *Service) findTarget(uid string) (config.SyndicationTarget, bool) {
	for _, t := range s.cfg.Micropub.SyndicationTargets {
		if t.UID == uid {
			return t, true
		}
	}
	return config.SyndicationTarget{}, false
}

func (s *Service) resolveEntryURL(entryURL string) (string, error) {
	m := entryURLPattern.FindStringSubmatch(entryURL)
	if m == nil {
		return "", fmt.Errorf("url does not identify an entry: %s", entryURL)
	}
	return m[1], nil
}

// appendPhotos stores multipart photo uploads and photo-property URLs,
// appending figure markup for any image the content does not already embed.
func (s *Service) appendPhotos(ctx context.Context, content string, obj Object, photos []*multipart.FileHeader) (string, error) {
	for _, fh := range photos {
		file, err := s.media.SaveUpload(ctx, fh)
		if err != nil {
			return "", err
		}
		content += fmt.Sprintf("\n<p><img src=%q alt=%q></p>", s.media.URLFor(file), file.OriginalName)
	}
	for _, photoURL := range obj.Strings("photo") {
		content += fmt.Sprintf("\n<p><img src=%q alt=\"\"></p>", photoURL)
	}
	return content, nil
}

// validate enforces the minimum creatable entry: some content, a title, a
// photo, or a typed link target.
func validate(obj Object) ValidationErrors {
	errs := ValidationErrors{}
	if contentValue(obj) == "" && obj.First("name") == "" && !obj.Has("photo") &&
		!obj.Has("in_reply_to") && !obj.Has("bookmark_of") && !obj.Has("checkin") {
		errs.add("content", "content, name, or photo is required")
	}
	return errs
}

// contentValue reads the content property, unwrapping the mf2
// {"html": "..."} form.
func contentValue(obj Object) string {
	values := obj.Properties["content"]
	if len(values) == 0 {
		return ""
	}
	switch v := values[0].(type) {
	case string:
		return v
	case map[string]interface{}:
		if s, ok := v["html"].(string); ok {
			return s
		}
	}
	return ""
}

func statusValue(obj Object) models.EntryStatus {
	if obj.First("post_status") == "draft" {
		return models.StatusDraft
	}
	return models.StatusPublished
}

func visibilityValue(obj Object) models.EntryVisibility {
	switch obj.First("visibility") {
	case "private":
		return models.VisibilityPrivate
	case "unlisted":
		return models.VisibilityUnlisted
	default:
		return models.VisibilityPublic
	}
}

func publishedValue(obj Object) *time.Time {
	raw := obj.First("published")
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// parseCheckin reads the nested checkin h-card: venue name and URL, plus
// whatever location fields it carries.
func parseCheckin(obj Object) (*entry.CheckinInput, *location.Record) {
	values := obj.Properties["checkin"]
	if len(values) == 0 {
		return nil, nil
	}

	nested := location.Nested(values[0])
	if nested == nil {
		if s, ok := values[0].(string); ok && s != "" {
			return &entry.CheckinInput{Name: s}, nil
		}
		return nil, nil
	}

	checkin := &entry.CheckinInput{
		Name: firstString(nested["name"]),
		URL:  firstString(nested["url"]),
	}
	loc := location.Extract(map[string][]interface{}{"location": {values[0]}})
	return checkin, loc
}

func linkedFromModel(url, title, quote, authorName, authorURL, authorPhoto string) *entry.LinkedPage {
	return &entry.LinkedPage{
		URL:         url,
		Title:       title,
		Quote:       quote,
		AuthorName:  authorName,
		AuthorURL:   authorURL,
		AuthorPhoto: authorPhoto,
	}
}

func firstString(values []interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
