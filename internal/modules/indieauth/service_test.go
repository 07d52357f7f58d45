package indieauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanzawa/core/internal/database"
	"github.com/tanzawa/core/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return NewService(db, nil)
}

func createAuth(t *testing.T, svc *Service, clientID string, scopes []string) *models.IndieAuthTokenModel {
	t.Helper()
	token, err := svc.CreateAuthorization(context.Background(),
		"owner", clientID, clientID+"/callback", "https://me.example/", scopes)
	require.NoError(t, err)
	require.NotNil(t, token.AuthCode)
	return token
}

func TestExchangeCodeIsOneShot(t *testing.T) {
	svc := newTestService(t)
	auth := createAuth(t, svc, "https://app.example", []string{ScopeCreate, ScopeMedia})

	token, err := svc.ExchangeCode(*auth.AuthCode, "https://app.example")
	require.NoError(t, err)
	require.NotNil(t, token.Key)
	assert.Nil(t, token.AuthCode)
	assert.NotNil(t, token.ExchangedAt)
	assert.ElementsMatch(t, []string{ScopeCreate, ScopeMedia}, token.ScopeKeys())

	// The code was consumed inside the same transaction that set the key.
	_, err = svc.ExchangeCode(*auth.AuthCode, "https://app.example")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestExchangeCodeWrongClient(t *testing.T) {
	svc := newTestService(t)
	auth := createAuth(t, svc, "https://app.example", []string{ScopeCreate})

	_, err := svc.ExchangeCode(*auth.AuthCode, "https://evil.example")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerifyAccess(t *testing.T) {
	svc := newTestService(t)
	auth := createAuth(t, svc, "https://app.example", []string{ScopeCreate})
	token, err := svc.ExchangeCode(*auth.AuthCode, "https://app.example")
	require.NoError(t, err)

	got, err := svc.VerifyAccess(*token.Key, ScopeCreate)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)

	_, err = svc.VerifyAccess(*token.Key, ScopeDelete)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.VerifyAccess("no-such-key", ScopeCreate)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	auth := createAuth(t, svc, "https://app.example", []string{ScopeCreate})
	token, err := svc.ExchangeCode(*auth.AuthCode, "https://app.example")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(*token.Key))
	_, err = svc.GetByKey(*token.Key)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// Unknown and empty keys revoke silently.
	assert.NoError(t, svc.Revoke(*token.Key))
	assert.NoError(t, svc.Revoke(""))
}

func TestFilterScopes(t *testing.T) {
	got := FilterScopes([]string{"create", "bogus", "media", "create", "profile"})
	assert.Equal(t, []string{"create", "media"}, got)
}

func TestValidateRedirectURISameHost(t *testing.T) {
	svc := newTestService(t)
	err := svc.ValidateRedirectURI(context.Background(),
		"https://app.example/", "https://app.example/callback")
	assert.NoError(t, err)
}

func TestValidateRedirectURIDiscovered(t *testing.T) {
	svc := newTestService(t)

	var clientURL string
	client := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><link rel="redirect_uri" href="https://cb.example/done"></head></html>`))
	}))
	defer client.Close()
	clientURL = client.URL

	err := svc.ValidateRedirectURI(context.Background(), clientURL, "https://cb.example/done")
	assert.NoError(t, err)

	err = svc.ValidateRedirectURI(context.Background(), clientURL, "https://attacker.example/steal")
	assert.ErrorIs(t, err, errInvalidRedirectURI)
}

func TestScopeKeysOnToken(t *testing.T) {
	svc := newTestService(t)
	auth := createAuth(t, svc, "https://app.example", []string{ScopeCreate, ScopeDraft})
	assert.ElementsMatch(t, []string{ScopeCreate, ScopeDraft}, auth.ScopeKeys())
}
