package micropub

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tanzawa/core/internal/middleware"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/modules/entry"
	"github.com/tanzawa/core/internal/modules/indieauth"
	"github.com/tanzawa/core/internal/pkg/response"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the Micropub endpoint, the media endpoint, and the
// public media file server. Authorization is IndieAuth bearer tokens, not
// the owner session, so no middleware guards these routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/micropub", h.post)
	rg.GET("/micropub", h.query)
	rg.POST("/micropub/media", h.uploadMedia)
	rg.GET("/media/:name", h.serveMedia)
}

// jsonAction is the probe shape for JSON bodies carrying an action verb.
type jsonAction struct {
	Action  string                   `json:"action"`
	URL     string                   `json:"url"`
	Replace map[string][]interface{} `json:"replace"`
	Add     map[string][]interface{} `json:"add"`
}

func (h *Handler) post(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch mediaType {
	case ContentTypeJSON:
		h.postJSON(c, contentType)
	case ContentTypeForm, ContentTypeMultipart:
		h.postForm(c, contentType, mediaType)
	default:
		response.BadRequest(c, "unsupported content type: "+contentType)
	}
}

func (h *Handler) postJSON(c *gin.Context, contentType string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	var action jsonAction
	_ = json.Unmarshal(body, &action)

	switch action.Action {
	case "update":
		if _, ok := h.authorize(c, "", indieauth.ScopeUpdate); !ok {
			return
		}
		updated, err := h.svc.Update(c.Request.Context(), action.URL, normalizeOps(action.Replace), normalizeOps(action.Add))
		if err != nil {
			h.entryError(c, err)
			return
		}
		c.Header("Location", h.svc.cfg.EntryURL(updated.ID))
		c.JSON(http.StatusOK, gin.H{})
	case "delete":
		if _, ok := h.authorize(c, "", indieauth.ScopeDelete); !ok {
			return
		}
		if err := h.svc.Delete(action.URL); err != nil {
			h.entryError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	case "":
		token, ok := h.authorize(c, "", indieauth.ScopeCreate)
		if !ok {
			return
		}
		obj, err := Normalize(contentType, body, nil)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		h.create(c, token, obj, nil)
	default:
		response.BadRequest(c, "unsupported action: "+action.Action)
	}
}

func (h *Handler) postForm(c *gin.Context, contentType, mediaType string) {
	var photos []*multipart.FileHeader
	if mediaType == ContentTypeMultipart {
		form, err := c.MultipartForm()
		if err != nil {
			response.BadRequest(c, "invalid multipart body")
			return
		}
		photos = append(form.File["photo"], form.File["photo[]"]...)
	} else if err := c.Request.ParseForm(); err != nil {
		response.BadRequest(c, "invalid form body")
		return
	}

	formToken := c.PostForm("access_token")

	switch c.PostForm("action") {
	case "delete":
		if _, ok := h.authorize(c, formToken, indieauth.ScopeDelete); !ok {
			return
		}
		if err := h.svc.Delete(c.PostForm("url")); err != nil {
			h.entryError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	case "":
		token, ok := h.authorize(c, formToken, indieauth.ScopeCreate)
		if !ok {
			return
		}
		obj, err := Normalize(contentType, nil, c.Request.PostForm)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		h.create(c, token, obj, photos)
	default:
		response.BadRequest(c, "unsupported action: "+c.PostForm("action"))
	}
}

func (h *Handler) create(c *gin.Context, token *models.IndieAuthTokenModel, obj Object, photos []*multipart.FileHeader) {
	created, verrs, err := h.svc.Create(c.Request.Context(), token, obj, photos)
	if err != nil {
		h.entryError(c, err)
		return
	}
	if len(verrs) > 0 {
		// Micropub clients expect the field-error map as the body itself.
		c.AbortWithStatusJSON(http.StatusBadRequest, verrs)
		return
	}
	c.Header("Location", h.svc.cfg.EntryURL(created.ID))
	c.JSON(http.StatusCreated, gin.H{"url": h.svc.cfg.EntryURL(created.ID)})
}

// query serves the Micropub configuration queries.
func (h *Handler) query(c *gin.Context) {
	switch c.Query("q") {
	case "config":
		c.JSON(http.StatusOK, h.svc.Config())
	case "syndicate-to":
		c.JSON(http.StatusOK, gin.H{"syndicate-to": h.svc.SyndicateTo()})
	default:
		response.BadRequest(c, "unsupported query: "+c.Query("q"))
	}
}

func (h *Handler) uploadMedia(c *gin.Context) {
	if _, ok := h.authorize(c, c.PostForm("access_token"), indieauth.ScopeMedia); !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	file, err := h.svc.media.SaveUpload(c.Request.Context(), fh)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	url := h.svc.media.URLFor(file)
	c.Header("Location", url)
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (h *Handler) serveMedia(c *gin.Context) {
	file, err := h.svc.media.Lookup(c.Param("name"))
	if err != nil {
		response.NotFound(c)
		return
	}
	c.Header("Content-Type", file.MimeType)
	c.File(file.Path)
}

// authorize resolves the bearer token from the Authorization header or the
// form body and verifies the scope, writing the error response itself.
func (h *Handler) authorize(c *gin.Context, formToken, scope string) (*models.IndieAuthTokenModel, bool) {
	key := middleware.NormalizeToken(c.GetHeader("Authorization"))
	if key == "" {
		key = strings.TrimSpace(formToken)
	}

	token, err := h.svc.Authorize(key, scope)
	if err != nil {
		switch {
		case errors.Is(err, errMissingToken), errors.Is(err, indieauth.ErrTokenNotFound):
			response.Unauthorized(c)
		case errors.Is(err, indieauth.ErrPermissionDenied):
			response.ForbiddenMsg(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return nil, false
	}
	return token, true
}

func (h *Handler) entryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entry.ErrNotFound):
		response.NotFound(c)
	case errors.Is(err, entry.ErrPostKindMismatch):
		response.UnprocessableEntity(c, err.Error())
	default:
		h.logger.Error("micropub request failed", zap.Error(err))
		response.InternalError(c, err)
	}
}

// normalizeOps rewrites hyphenated property names in update operations to
// the internal underscore style.
func normalizeOps(ops map[string][]interface{}) map[string][]interface{} {
	if ops == nil {
		return nil
	}
	out := make(map[string][]interface{}, len(ops))
	for key, values := range ops {
		out[normalizeKey(key)] = values
	}
	return out
}
