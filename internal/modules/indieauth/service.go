package indieauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tanzawa/core/internal/models"
	"golang.org/x/net/html"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	client *http.Client
}

func NewService(db *gorm.DB, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{db: db, client: client}
}

// CreateAuthorization starts the token lifecycle: a token row with an
// authorization code, granted scopes, and no bearer key yet.
func (s *Service) CreateAuthorization(ctx context.Context, userID, clientID, redirectURI, me string, scopes []string) (*models.IndieAuthTokenModel, error) {
	if err := s.ValidateRedirectURI(ctx, clientID, redirectURI); err != nil {
		return nil, err
	}

	code, err := randomKey()
	if err != nil {
		return nil, err
	}

	granted := FilterScopes(scopes)
	token := &models.IndieAuthTokenModel{
		UserID:      userID,
		AuthCode:    &code,
		ClientID:    clientID,
		Me:          me,
		RedirectURI: redirectURI,
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	for _, key := range granted {
		var scope models.ScopeModel
		if err := tx.Where("`key` = ?", key).FirstOrCreate(&scope, models.ScopeModel{Key: key}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		token.Scopes = append(token.Scopes, scope)
	}
	if err := tx.Create(token).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	return token, tx.Commit().Error
}

// ExchangeCode swaps an authorization code for a bearer key. The exchange is
// one-shot: the code is cleared inside the same transaction that sets the
// key, so a second attempt no longer finds the token.
func (s *Service) ExchangeCode(code, clientID string) (*models.IndieAuthTokenModel, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var token models.IndieAuthTokenModel
	err := tx.Preload("Scopes").
		Where("auth_code = ? AND client_id = ? AND exchanged_at IS NULL", code, clientID).
		First(&token).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	key, err := randomKey()
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	now := time.Now()
	updates := map[string]interface{}{
		"auth_code":    nil,
		"key":          key,
		"exchanged_at": now,
	}
	if err := tx.Model(&token).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	token.AuthCode = nil
	token.Key = &key
	token.ExchangedAt = &now
	return &token, nil
}

// VerifyAccess resolves a bearer key and checks the requested scope.
func (s *Service) VerifyAccess(key, scope string) (*models.IndieAuthTokenModel, error) {
	token, err := s.GetByKey(key)
	if err != nil {
		return nil, err
	}
	for _, granted := range token.Scopes {
		if granted.Key == scope {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w: scope %q not granted", ErrPermissionDenied, scope)
}

// GetByKey resolves an exchanged bearer key to its token.
func (s *Service) GetByKey(key string) (*models.IndieAuthTokenModel, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrTokenNotFound
	}
	var token models.IndieAuthTokenModel
	err := s.db.Preload("Scopes").Where("`key` = ?", key).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// Revoke deletes a token by bearer key. Revoking an unknown key is a no-op.
func (s *Service) Revoke(key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return s.db.Where("`key` = ?", key).Delete(&models.IndieAuthTokenModel{}).Error
}

// ValidateRedirectURI accepts a redirect URI whose host matches the
// client_id host. Any other URI must appear among the rel="redirect_uri"
// links declared on the client's page.
func (s *Service) ValidateRedirectURI(ctx context.Context, clientID, redirectURI string) error {
	client, err := url.Parse(clientID)
	if err != nil {
		return fmt.Errorf("invalid client_id: %w", err)
	}
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri: %w", err)
	}
	if strings.EqualFold(client.Host, redirect.Host) {
		return nil
	}

	declared, err := s.discoverRedirectURIs(ctx, clientID)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidRedirectURI, err)
	}
	for _, u := range declared {
		if u == redirectURI {
			return nil
		}
	}
	return errInvalidRedirectURI
}

// discoverRedirectURIs fetches the client_id page and collects
// rel="redirect_uri" declarations from Link headers and <link> tags.
func (s *Service) discoverRedirectURIs(ctx context.Context, clientID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clientID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var uris []string
	for _, header := range resp.Header.Values("Link") {
		for _, link := range strings.Split(header, ",") {
			if target, ok := parseLinkHeader(link, "redirect_uri"); ok {
				uris = append(uris, target)
			}
		}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return uris, nil
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, href string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "rel":
					rel = attr.Val
				case "href":
					href = attr.Val
				}
			}
			if href != "" && hasRelValue(rel, "redirect_uri") {
				uris = append(uris, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return uris, nil
}

// parseLinkHeader extracts the target of a single `<url>; rel="value"`
// Link header entry when it carries the wanted rel.
func parseLinkHeader(link, wantRel string) (string, bool) {
	parts := strings.Split(link, ";")
	if len(parts) < 2 {
		return "", false
	}
	target := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
		return "", false
	}
	target = strings.Trim(target, "<>")

	for _, param := range parts[1:] {
		param = strings.TrimSpace(param)
		if !strings.HasPrefix(param, "rel=") {
			continue
		}
		rel := strings.Trim(strings.TrimPrefix(param, "rel="), `"`)
		if hasRelValue(rel, wantRel) {
			return target, true
		}
	}
	return "", false
}

func hasRelValue(rel, want string) bool {
	for _, v := range strings.Fields(rel) {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func randomKey() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
