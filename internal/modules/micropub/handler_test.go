package micropub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanzawa/core/internal/config"
	"github.com/tanzawa/core/internal/database"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/modules/entry"
	"github.com/tanzawa/core/internal/modules/indieauth"
	"github.com/tanzawa/core/internal/modules/webmention"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *indieauth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.AppConfig{
		SiteURL:    "https://me.example",
		MediaDir:   t.TempDir(),
		Webmention: config.WebmentionConfig{TimeoutSeconds: 1},
	}

	logger := zap.NewNop()
	tokens := indieauth.NewService(db, nil)
	entries := entry.NewService(db, logger)
	sender := webmention.NewSender(db, cfg, logger, nil)
	media := NewMediaService(db, cfg, logger, nil)
	svc := NewService(cfg, logger, tokens, entries, sender, media)

	router := gin.New()
	NewHandler(svc, logger).RegisterRoutes(router.Group(""))

	return &testEnv{router: router, db: db, tokens: tokens}
}

func (e *testEnv) issueToken(t *testing.T, scopes ...string) string {
	t.Helper()
	auth, err := e.tokens.CreateAuthorization(context.Background(),
		"owner", "https://app.example", "https://app.example/cb", "https://me.example/", scopes)
	require.NoError(t, err)
	token, err := e.tokens.ExchangeCode(*auth.AuthCode, "https://app.example")
	require.NoError(t, err)
	return *token.Key
}

func (e *testEnv) postForm(token string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/micropub", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCreateNoteReturns201WithLocation(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	w := env.postForm(token, url.Values{"content": {"hello from a client"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	location := w.Header().Get("Location")
	assert.Contains(t, location, "https://me.example/entries/")

	var created models.EntryModel
	require.NoError(t, env.db.First(&created, "kind = ?", models.KindNote).Error)
	assert.Equal(t, models.StatusPublished, created.Status)
	assert.Contains(t, location, created.ID)
}

func TestCreateWithoutTokenIs401(t *testing.T) {
	env := newTestEnv(t)
	w := env.postForm("", url.Values{"content": {"anonymous"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateWithUnknownTokenIs401(t *testing.T) {
	env := newTestEnv(t)
	w := env.postForm("garbage-token", url.Values{"content": {"spoofed"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateWithoutScopeIs403(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeMedia)
	w := env.postForm(token, url.Values{"content": {"nope"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateEmptyBodyIs400WithFieldErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	w := env.postForm(token, url.Values{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// The field-error map is the response body, not wrapped in an envelope.
	var body map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["content"])
}

func TestCreateReplyWithUnreachableTargetStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	w := env.postForm(token, url.Values{
		"content":     {"I disagree"},
		"in-reply-to": {"http://127.0.0.1:1/dead-post"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var reply models.ReplyModel
	require.NoError(t, env.db.First(&reply).Error)
	assert.Equal(t, "http://127.0.0.1:1/dead-post", reply.URL)
	assert.Equal(t, "http://127.0.0.1:1/dead-post", reply.Title, "unreachable pages fall back to the URL")
}

func TestCreateDraftViaPostStatus(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	w := env.postForm(token, url.Values{
		"content":     {"work in progress"},
		"post-status": {"draft"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.EntryModel
	require.NoError(t, env.db.First(&created).Error)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Nil(t, created.PublishedAt)
}

func TestCreateCheckinJSON(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	payload := `{
		"type": ["h-entry"],
		"properties": {
			"content": ["coffee time"],
			"checkin": [{
				"type": ["h-card"],
				"properties": {
					"name": ["Blue Bottle"],
					"url": ["https://bluebottle.example"],
					"latitude": ["35.6595"],
					"longitude": ["139.7005"]
				}
			}]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/micropub", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var checkin models.CheckinModel
	require.NoError(t, env.db.First(&checkin).Error)
	assert.Equal(t, "Blue Bottle", checkin.Name)

	var loc models.LocationModel
	require.NoError(t, env.db.First(&loc).Error)
	assert.InDelta(t, 35.6595, loc.Latitude, 1e-9)
	assert.InDelta(t, 139.7005, loc.Longitude, 1e-9)
}

func TestDeleteAction(t *testing.T) {
	env := newTestEnv(t)
	createToken := env.issueToken(t, indieauth.ScopeCreate, indieauth.ScopeDelete)

	w := env.postForm(createToken, url.Values{"content": {"to be removed"}})
	require.Equal(t, http.StatusCreated, w.Code)
	entryURL := w.Header().Get("Location")

	w = env.postForm(createToken, url.Values{"action": {"delete"}, "url": {entryURL}})
	assert.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	env.db.Model(&models.EntryModel{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestDeleteRequiresScope(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	w := env.postForm(token, url.Values{"content": {"keep me"}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.postForm(token, url.Values{"action": {"delete"}, "url": {w.Header().Get("Location")}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQueryConfig(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/micropub?q=config", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "https://me.example/micropub/media", body["media-endpoint"])
	assert.Contains(t, body, "syndicate-to")
}

func TestUpdateReplaceContent(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate, indieauth.ScopeUpdate)

	w := env.postForm(token, url.Values{"content": {"first version"}})
	require.Equal(t, http.StatusCreated, w.Code)
	entryURL := w.Header().Get("Location")

	payload := `{"action": "update", "url": "` + entryURL + `", "replace": {"content": ["second version"]}}`
	req := httptest.NewRequest(http.MethodPost, "/micropub", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w2 := httptest.NewRecorder()
	env.router.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())

	var updated models.EntryModel
	require.NoError(t, env.db.First(&updated).Error)
	assert.Contains(t, updated.Content, "second version")
}
