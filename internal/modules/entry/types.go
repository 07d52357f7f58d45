// Package entry implements entry classification and the transactional
// entry builder: given normalized microformat properties it decides the
// entry kind, resolves linked-page metadata for replies and bookmarks, and
// writes the entry plus its kind-specific sub-entities atomically.
package entry

import (
	"errors"
	"time"

	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/modules/location"
)

var (
	// ErrPostKindMismatch flags a sub-entity payload supplied for an entry of
	// the wrong kind. This is a caller bug, never user-recoverable; the
	// surrounding transaction is rolled back.
	ErrPostKindMismatch = errors.New("post kind mismatch")

	// ErrNotFound is returned when an entry id resolves to nothing.
	ErrNotFound = errors.New("entry not found")
)

// LinkedPage carries cached metadata about a remote page an entry replies
// to or bookmarks. Fetched once at build time, never live-fetched on render.
type LinkedPage struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Quote       string `json:"quote"`
	AuthorName  string `json:"author_name"`
	AuthorURL   string `json:"author_url"`
	AuthorPhoto string `json:"author_photo"`
}

// CheckinInput names the venue of a checkin entry.
type CheckinInput struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Input is the build contract shared by Create and Update.
type Input struct {
	Kind            models.EntryKind
	Status          models.EntryStatus
	Visibility      models.EntryVisibility
	UserID          string
	Title           string
	Content         string // HTML (markdown is rendered before building)
	PublishedAt     *time.Time
	Streams         []string // stream slugs
	Location        *location.Record
	Reply           *LinkedPage
	Bookmark        *LinkedPage
	Checkin         *CheckinInput
	SyndicationURLs []string
}
