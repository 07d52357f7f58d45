package models

import "time"

// WebmentionSendModel records an outbound webmention attempt.
// Unique per (entry, target): retries update the row in place, so at most
// one record exists per target per entry no matter how often it republishes.
type WebmentionSendModel struct {
	Base
	EntryID      string    `json:"-"       gorm:"not null;uniqueIndex:idx_wm_send_entry_target"`
	Target       string    `json:"target"  gorm:"type:varchar(500);not null;uniqueIndex:idx_wm_send_entry_target"`
	SentAt       time.Time `json:"sent_at"`
	Success      bool      `json:"success"`
	ResponseBody string    `json:"-"       gorm:"type:text"`
}

func (WebmentionSendModel) TableName() string { return "webmention_sends" }

// WebmentionResponseModel stores a raw inbound webmention: the source page
// body as fetched at receipt time, plus the source/target pair.
type WebmentionResponseModel struct {
	Base
	Source   string `json:"source"   gorm:"type:varchar(500);not null"`
	Target   string `json:"target"   gorm:"type:varchar(500);not null;index"`
	Body     string `json:"-"        gorm:"type:longtext"`
	Reviewed bool   `json:"reviewed" gorm:"default:false;index"`
}

func (WebmentionResponseModel) TableName() string { return "webmention_responses" }

// MentionType classifies what an inbound webmention expresses about a post.
type MentionType string

const (
	MentionLike    MentionType = "like"
	MentionReply   MentionType = "reply"
	MentionRepost  MentionType = "repost"
	MentionGeneric MentionType = "mention"
)

// WebmentionModerationModel holds the moderation state of an inbound
// webmention. Approved is nil while pending. Unique per (response, entry);
// a re-delivery resets Approved to nil and replaces the cached comment data.
type WebmentionModerationModel struct {
	Base
	ResponseID  string                   `json:"-"            gorm:"not null;uniqueIndex:idx_wm_mod_response_entry"`
	Response    *WebmentionResponseModel `json:"response,omitempty" gorm:"foreignKey:ResponseID"`
	EntryID     string                   `json:"-"            gorm:"not null;uniqueIndex:idx_wm_mod_response_entry"`
	Approved    *bool                    `json:"approved"`
	MentionType MentionType              `json:"mention_type" gorm:"type:varchar(16)"`
	CommentData map[string]interface{}   `json:"comment_data" gorm:"serializer:json"`
}

func (WebmentionModerationModel) TableName() string { return "webmention_moderations" }
