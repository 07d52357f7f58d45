// Package auth implements the owner account: single-user registration,
// password login issuing the session JWT, and profile access.
package auth

import (
	"errors"
	"time"

	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrOwnerExists        = errors.New("owner account already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const sessionTTL = 7 * 24 * time.Hour

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// Register creates the owner account. The site is single-user: once an
// account exists, registration is closed.
func (s *Service) Register(username, password, name, siteURL string) (*models.UserModel, error) {
	var count int64
	if err := s.db.Model(&models.UserModel{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrOwnerExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.UserModel{
		Username: username,
		Password: string(hashed),
		Name:     name,
		URL:      siteURL,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the password and returns a signed session token.
func (s *Service) Login(username, password, ip string) (string, *models.UserModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	s.db.Model(&user).Updates(map[string]interface{}{
		"last_login_time": now,
		"last_login_ip":   ip,
	})

	token, err := jwt.Sign(user.ID, sessionTTL)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// Get loads a user by id.
func (s *Service) Get(id string) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
