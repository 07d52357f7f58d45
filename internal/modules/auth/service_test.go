package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanzawa/core/internal/database"
	"github.com/tanzawa/core/internal/pkg/jwt"
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
	return NewService(db)
}

func TestRegisterIsSingleUse(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Register("owner", "correct horse battery", "Owner", "https://me.example")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", user.Password, "password must be hashed")

	_, err = svc.Register("second", "another password!", "", "")
	assert.ErrorIs(t, err, ErrOwnerExists)
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register("owner", "correct horse battery", "Owner", "https://me.example")
	require.NoError(t, err)

	token, user, err := svc.Login("owner", "correct horse battery", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotNil(t, user.LastLoginTime)

	claims, err := jwt.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	_, _, err = svc.Login("owner", "wrong password", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("nobody", "whatever pass", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
