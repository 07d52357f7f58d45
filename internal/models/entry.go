package models

import (
	"encoding/json"
	"time"

	"github.com/tanzawa/core/internal/modules/location"
)

// EntryKind classifies an entry by which microformat properties it carries.
// The kind is fixed at creation time and never changes afterwards.
type EntryKind string

const (
	KindNote     EntryKind = "note"
	KindArticle  EntryKind = "article"
	KindReply    EntryKind = "reply"
	KindBookmark EntryKind = "bookmark"
	KindCheckin  EntryKind = "checkin"
	KindLike     EntryKind = "like"
)

// EntryStatus is the publication state of an entry.
type EntryStatus string

const (
	StatusDraft     EntryStatus = "draft"
	StatusPublished EntryStatus = "published"
)

// EntryVisibility controls who can see a published entry.
type EntryVisibility string

const (
	VisibilityPublic   EntryVisibility = "public"
	VisibilityPrivate  EntryVisibility = "private"
	VisibilityUnlisted EntryVisibility = "unlisted"
)

// EntryModel is the canonical content unit. Kind-specific data lives in the
// optional 1:1 extension rows below; a published entry always has a non-null
// PublishedAt, a draft never does.
type EntryModel struct {
	Base
	Title       string                `json:"title"`
	Content     string                `json:"content"      gorm:"type:longtext"`
	Summary     string                `json:"summary"      gorm:"type:varchar(255)"`
	Kind        EntryKind             `json:"kind"         gorm:"type:varchar(16);not null;index"`
	Status      EntryStatus           `json:"status"       gorm:"type:varchar(16);not null;default:draft;index"`
	Visibility  EntryVisibility       `json:"visibility"   gorm:"type:varchar(16);not null;default:public"`
	PublishedAt *time.Time            `json:"published_at"`
	UserID      string                `json:"-"            gorm:"index;not null"`
	User        *UserModel            `json:"author,omitempty"      gorm:"foreignKey:UserID"`
	Reply       *ReplyModel           `json:"reply,omitempty"       gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Bookmark    *BookmarkModel        `json:"bookmark,omitempty"    gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Location    *LocationModel        `json:"location,omitempty"    gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Checkin     *CheckinModel         `json:"checkin,omitempty"     gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Syndication []SyndicationURLModel `json:"syndication,omitempty" gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	Streams     []StreamModel         `json:"streams,omitempty"     gorm:"many2many:entry_streams"`
	Files       []FileModel           `json:"files,omitempty"       gorm:"many2many:entry_files"`
}

func (EntryModel) TableName() string { return "entries" }

// IsPublished reports whether the entry is visible to the outside world.
func (e *EntryModel) IsPublished() bool { return e.Status == StatusPublished }

// ReplyModel caches metadata about the page an entry replies to. Present only
// when the entry kind is "reply".
type ReplyModel struct {
	Base
	EntryID     string `json:"-"            gorm:"uniqueIndex;not null"`
	URL         string `json:"url"          gorm:"type:varchar(500);not null"`
	Title       string `json:"title"`
	Quote       string `json:"quote"        gorm:"type:text"`
	AuthorName  string `json:"author_name"`
	AuthorURL   string `json:"author_url"`
	AuthorPhoto string `json:"author_photo"`
}

func (ReplyModel) TableName() string { return "entry_replies" }

// BookmarkModel caches metadata about a bookmarked page. Present only when
// the entry kind is "bookmark".
type BookmarkModel struct {
	Base
	EntryID     string `json:"-"            gorm:"uniqueIndex;not null"`
	URL         string `json:"url"          gorm:"type:varchar(500);not null"`
	Title       string `json:"title"`
	Quote       string `json:"quote"        gorm:"type:text"`
	AuthorName  string `json:"author_name"`
	AuthorURL   string `json:"author_url"`
	AuthorPhoto string `json:"author_photo"`
}

func (BookmarkModel) TableName() string { return "entry_bookmarks" }

// LocationModel is an optional 1:1 extension of an entry. The geo point is
// non-nullable: a location without coordinates is never persisted, and
// clearing the point deletes the row.
type LocationModel struct {
	Base
	EntryID       string  `json:"-"              gorm:"uniqueIndex;not null"`
	StreetAddress string  `json:"street_address"`
	Locality      string  `json:"locality"`
	Region        string  `json:"region"`
	CountryName   string  `json:"country_name"`
	PostalCode    string  `json:"postal_code"`
	Latitude      float64 `json:"latitude"       gorm:"not null"`
	Longitude     float64 `json:"longitude"      gorm:"not null"`
}

func (LocationModel) TableName() string { return "entry_locations" }

// MarshalJSON adds the GeoJSON geometry next to the raw coordinate columns
// so API consumers can feed the point straight to a map library.
func (m LocationModel) MarshalJSON() ([]byte, error) {
	type alias LocationModel
	return json.Marshal(struct {
		alias
		Geometry location.Point `json:"geometry"`
	}{alias(m), location.ToPoint(m.Latitude, m.Longitude)})
}

// CheckinModel records the venue of a checkin entry. A checkin entry also
// carries a LocationModel with the coordinates.
type CheckinModel struct {
	Base
	EntryID string `json:"-"    gorm:"uniqueIndex;not null"`
	Name    string `json:"name" gorm:"not null"`
	URL     string `json:"url"  gorm:"type:varchar(500)"`
}

func (CheckinModel) TableName() string { return "entry_checkins" }

// SyndicationURLModel records a third-party copy of an entry.
// Unique per (entry, url).
type SyndicationURLModel struct {
	Base
	EntryID string `json:"-"   gorm:"not null;uniqueIndex:idx_syndication_entry_url"`
	URL     string `json:"url" gorm:"type:varchar(500);not null;uniqueIndex:idx_syndication_entry_url"`
}

func (SyndicationURLModel) TableName() string { return "entry_syndication_urls" }

// StreamModel is a tag-like collection entries can belong to.
type StreamModel struct {
	Base
	Name string `json:"name" gorm:"not null"`
	Slug string `json:"slug" gorm:"uniqueIndex;not null"`
}

func (StreamModel) TableName() string { return "streams" }

// PathAliasModel maps legacy permalink paths to entries, used as a fallback
// when an inbound webmention targets a pre-migration URL.
type PathAliasModel struct {
	Base
	Path    string `json:"path"     gorm:"uniqueIndex;not null"`
	EntryID string `json:"entry_id" gorm:"index;not null"`
}

func (PathAliasModel) TableName() string { return "path_aliases" }
