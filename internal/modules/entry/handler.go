package entry

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/pkg/pagination"
	"github.com/tanzawa/core/internal/pkg/response"
)

// PublishHook runs after an entry transitions to published, outside the
// write transaction. Used to kick off webmention delivery.
type PublishHook func(ctx context.Context, entry *models.EntryModel)

type Handler struct {
	svc       *Service
	onPublish PublishHook
}

func NewHandler(svc *Service, onPublish PublishHook) *Handler {
	return &Handler{svc: svc, onPublish: onPublish}
}

// RegisterRoutes mounts the owner-facing entry admin API.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/entries", authMW)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/publish", h.publish)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	filter := ListFilter{
		Kind:   models.EntryKind(c.Query("kind")),
		Status: models.EntryStatus(c.Query("status")),
		Stream: c.Query("stream"),
	}

	var entries []models.EntryModel
	page, err := pagination.Paginate(h.svc.Query(filter), pagination.FromContext(c), &entries)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, entries, page)
}

func (h *Handler) get(c *gin.Context) {
	entry, err := h.svc.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, entry)
}

func (h *Handler) publish(c *gin.Context) {
	entry, err := h.svc.Publish(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	if h.onPublish != nil {
		h.onPublish(c.Request.Context(), entry)
	}
	response.OK(c, entry)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
