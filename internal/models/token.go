package models

import "time"

// ScopeModel is a Micropub permission key (create/update/delete/draft/media).
type ScopeModel struct {
	Base
	Key string `json:"key" gorm:"uniqueIndex;not null"`
}

func (ScopeModel) TableName() string { return "scopes" }

// IndieAuthTokenModel is a Micropub/IndieAuth bearer credential.
//
// Lifecycle: created with an authorization code and no key, exchanged exactly
// once (code cleared, key set, ExchangedAt stamped), then usable until
// revoked (deleted).
type IndieAuthTokenModel struct {
	Base
	UserID      string       `json:"-"           gorm:"index;not null"`
	AuthCode    *string      `json:"-"           gorm:"type:varchar(64);uniqueIndex"`
	Key         *string      `json:"-"           gorm:"type:varchar(64);uniqueIndex"`
	ClientID    string       `json:"client_id"   gorm:"type:varchar(500);not null"`
	Me          string       `json:"me"          gorm:"type:varchar(500)"`
	RedirectURI string       `json:"-"           gorm:"type:varchar(500)"`
	ExchangedAt *time.Time   `json:"exchanged_at"`
	Scopes      []ScopeModel `json:"scopes"      gorm:"many2many:token_scopes"`
}

func (IndieAuthTokenModel) TableName() string { return "indieauth_tokens" }

// ScopeKeys returns the granted scope keys in storage order.
func (t *IndieAuthTokenModel) ScopeKeys() []string {
	keys := make([]string, 0, len(t.Scopes))
	for _, s := range t.Scopes {
		keys = append(keys, s.Key)
	}
	return keys
}
