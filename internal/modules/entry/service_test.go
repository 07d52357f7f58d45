package entry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanzawa/core/internal/database"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/modules/location"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := newTestDB(t)
	return NewService(db, zap.NewNop()), db
}

func floatPtr(f float64) *float64 { return &f }

func TestCreateNoteStampsPublishedAt(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind:    models.KindNote,
		Status:  models.StatusPublished,
		UserID:  "owner",
		Content: "<p>hello</p>",
	})
	require.NoError(t, err)
	require.NotNil(t, created.PublishedAt)
	assert.Equal(t, models.StatusPublished, created.Status)
	assert.Equal(t, "hello", created.Summary)
}

func TestCreateDraftHasNoPublishedAt(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind:    models.KindNote,
		Status:  models.StatusDraft,
		UserID:  "owner",
		Content: "<p>draft</p>",
	})
	require.NoError(t, err)
	assert.Nil(t, created.PublishedAt)
}

func TestPublishStampsOnce(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusDraft, UserID: "owner", Content: "x",
	})
	require.NoError(t, err)

	published, err := svc.Publish(created.ID)
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
	first := *published.PublishedAt

	time.Sleep(10 * time.Millisecond)
	again, err := svc.Publish(created.ID)
	require.NoError(t, err)
	assert.True(t, again.PublishedAt.Equal(first), "republishing must not move the timestamp")
}

func TestCreateKindMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(&Input{
		Kind:   models.KindNote,
		UserID: "owner",
		Reply:  &LinkedPage{URL: "https://example.com/1"},
	})
	assert.ErrorIs(t, err, ErrPostKindMismatch)

	_, err = svc.Create(&Input{Kind: models.KindReply, UserID: "owner"})
	assert.ErrorIs(t, err, ErrPostKindMismatch)
}

func TestUpdateKindImmutable(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusDraft, UserID: "owner", Content: "x",
	})
	require.NoError(t, err)

	_, err = svc.Update(created.ID, &Input{
		Kind:     models.KindBookmark,
		UserID:   "owner",
		Content:  "y",
		Bookmark: &LinkedPage{URL: "https://example.com/b"},
	})
	assert.ErrorIs(t, err, ErrPostKindMismatch)
}

func TestUpdateReplacesLocation(t *testing.T) {
	svc, db := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusPublished, UserID: "owner", Content: "here",
		Location: &location.Record{
			Locality: "Tokyo",
			Latitude: floatPtr(35.68), Longitude: floatPtr(139.69),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Location)
	assert.Equal(t, "Tokyo", created.Location.Locality)

	// Update with new coordinates replaces the row wholesale.
	updated, err := svc.Update(created.ID, &Input{
		UserID: "owner", Content: "moved",
		Location: &location.Record{
			Locality: "Osaka",
			Latitude: floatPtr(34.69), Longitude: floatPtr(135.50),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Location)
	assert.Equal(t, "Osaka", updated.Location.Locality)

	var count int64
	db.Model(&models.LocationModel{}).Where("entry_id = ?", created.ID).Count(&count)
	assert.EqualValues(t, 1, count)

	// A pointless location deletes the row.
	updated, err = svc.Update(created.ID, &Input{
		UserID: "owner", Content: "nowhere",
		Location: &location.Record{Locality: "Unknown"},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Location)
}

func TestLocationSerializesGeoJSONGeometry(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusPublished, UserID: "owner", Content: "here",
		Location: &location.Record{
			Latitude: floatPtr(35.6595), Longitude: floatPtr(139.7005),
		},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Location)

	raw, err := json.Marshal(created.Location)
	require.NoError(t, err)

	var out struct {
		Latitude float64        `json:"latitude"`
		Geometry location.Point `json:"geometry"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "Point", out.Geometry.Type)
	assert.InDelta(t, 139.7005, out.Geometry.Coordinates[0], 1e-9)
	assert.InDelta(t, 35.6595, out.Geometry.Coordinates[1], 1e-9)
	assert.InDelta(t, 35.6595, out.Latitude, 1e-9)
}

func TestUpdateReplacesReplyAndSyndication(t *testing.T) {
	svc, db := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindReply, Status: models.StatusPublished, UserID: "owner", Content: "agreed",
		Reply:           &LinkedPage{URL: "https://a.example/1", Title: "First post"},
		SyndicationURLs: []string{"https://social.example/@me/1"},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Reply)

	updated, err := svc.Update(created.ID, &Input{
		UserID: "owner", Content: "still agreed",
		Reply:           &LinkedPage{URL: "https://a.example/1", Title: "First post (revised)"},
		SyndicationURLs: []string{"https://social.example/@me/2"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Reply)
	assert.Equal(t, "First post (revised)", updated.Reply.Title)

	var replies, syndications int64
	db.Model(&models.ReplyModel{}).Where("entry_id = ?", created.ID).Count(&replies)
	db.Model(&models.SyndicationURLModel{}).Where("entry_id = ?", created.ID).Count(&syndications)
	assert.EqualValues(t, 1, replies)
	assert.EqualValues(t, 1, syndications)
	require.Len(t, updated.Syndication, 1)
	assert.Equal(t, "https://social.example/@me/2", updated.Syndication[0].URL)
}

func TestSyndicationURLsDeduplicated(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusPublished, UserID: "owner", Content: "x",
		SyndicationURLs: []string{
			"https://social.example/@me/1",
			"https://social.example/@me/1",
			"https://other.example/2",
		},
	})
	require.NoError(t, err)
	assert.Len(t, created.Syndication, 2)
}

func TestCreateAssociatesReferencedMedia(t *testing.T) {
	svc, db := newTestService(t)

	file := &models.FileModel{Name: "abc123.jpg", Path: "/tmp/abc123.jpg"}
	require.NoError(t, db.Create(file).Error)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusPublished, UserID: "owner",
		Content: `<p>pic: <img src="https://example.com/media/abc123.jpg"></p>`,
	})
	require.NoError(t, err)
	require.Len(t, created.Files, 1)
	assert.Equal(t, "abc123.jpg", created.Files[0].Name)
}

func TestDeleteRemovesEntry(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(&Input{
		Kind: models.KindNote, Status: models.StatusPublished, UserID: "owner", Content: "bye",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(created.ID))
	_, err = svc.Get(created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
