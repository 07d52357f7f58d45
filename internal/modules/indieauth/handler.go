package indieauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tanzawa/core/internal/middleware"
	"github.com/tanzawa/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/indieauth")
	g.POST("/token", h.token)
	g.GET("/token", h.verify)

	// The authorize endpoints are the owner-facing consent flow; only the
	// logged-in owner can grant an authorization code.
	g.GET("/authorize", authMW, h.authorizeInfo)
	g.POST("/authorize", authMW, h.authorize)
}

// token handles both the code-for-token exchange and action=revoke.
func (h *Handler) token(c *gin.Context) {
	if c.PostForm("action") == "revoke" {
		// Idempotent: revoking an unknown key succeeds silently.
		if err := h.svc.Revoke(middleware.NormalizeToken(c.PostForm("token"))); err != nil {
			response.InternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	code := strings.TrimSpace(c.PostForm("code"))
	clientID := strings.TrimSpace(c.PostForm("client_id"))
	if code == "" || clientID == "" {
		response.BadRequest(c, "code and client_id are required")
		return
	}

	token, err := h.svc.ExchangeCode(code, clientID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			response.BadRequest(c, "invalid or already used authorization code")
			return
		}
		response.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": *token.Key,
		"token_type":   "Bearer",
		"scope":        strings.Join(token.ScopeKeys(), " "),
		"me":           token.Me,
	})
}

// verify resolves a bearer token and reports its identity and scopes.
func (h *Handler) verify(c *gin.Context) {
	key := middleware.NormalizeToken(c.GetHeader("Authorization"))
	token, err := h.svc.GetByKey(key)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"me":        token.Me,
		"client_id": token.ClientID,
		"scope":     strings.Join(token.ScopeKeys(), " "),
	})
}

// authorizeInfo echoes the consent request back to the owner's client.
func (h *Handler) authorizeInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"client_id":    c.Query("client_id"),
		"redirect_uri": c.Query("redirect_uri"),
		"state":        c.Query("state"),
		"scope":        c.Query("scope"),
		"me":           c.Query("me"),
	})
}

type authorizeDTO struct {
	ClientID    string `form:"client_id"    json:"client_id"    binding:"required"`
	RedirectURI string `form:"redirect_uri" json:"redirect_uri" binding:"required"`
	State       string `form:"state"        json:"state"`
	Scope       string `form:"scope"        json:"scope"`
	Me          string `form:"me"           json:"me"`
}

// authorize issues an authorization code and redirects back to the client.
func (h *Handler) authorize(c *gin.Context) {
	var dto authorizeDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	scopes := strings.Fields(dto.Scope)
	if len(scopes) == 0 {
		scopes = []string{ScopeCreate}
	}

	token, err := h.svc.CreateAuthorization(c.Request.Context(),
		middleware.CurrentUserID(c), dto.ClientID, dto.RedirectURI, dto.Me, scopes)
	if err != nil {
		if errors.Is(err, errInvalidRedirectURI) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}

	redirect, err := url.Parse(dto.RedirectURI)
	if err != nil {
		response.BadRequest(c, "invalid redirect_uri")
		return
	}
	q := redirect.Query()
	q.Set("code", *token.AuthCode)
	if dto.State != "" {
		q.Set("state", dto.State)
	}
	redirect.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, redirect.String())
}
