package webmention

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/pkg/pagination"
	"github.com/tanzawa/core/internal/pkg/response"
	"gorm.io/gorm"
)

type Handler struct {
	receiver *Receiver
}

func NewHandler(receiver *Receiver) *Handler {
	return &Handler{receiver: receiver}
}

// RegisterRoutes mounts the public receiving endpoint and the owner-facing
// moderation API.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/webmention", h.receive)

	g := rg.Group("/webmentions", authMW)
	g.GET("", h.list)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/disapprove", h.disapprove)
}

// receive accepts an inbound webmention. Processing is synchronous but the
// response is 202: acceptance means "queued for moderation", not
// "displayed".
func (h *Handler) receive(c *gin.Context) {
	source := strings.TrimSpace(c.PostForm("source"))
	target := strings.TrimSpace(c.PostForm("target"))
	if source == "" || target == "" {
		response.BadRequest(c, "source and target are required")
		return
	}

	if err := h.receiver.Receive(c.Request.Context(), source, target); err != nil {
		if errors.Is(err, ErrTargetNotLocal) {
			response.BadRequest(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) list(c *gin.Context) {
	var moderations []models.WebmentionModerationModel
	page, err := pagination.Paginate(h.receiver.Query(c.Query("state")), pagination.FromContext(c), &moderations)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, moderations, page)
}

func (h *Handler) approve(c *gin.Context) {
	if err := h.receiver.Approve(c.Param("id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"approved": true})
}

func (h *Handler) disapprove(c *gin.Context) {
	if err := h.receiver.Disapprove(c.Param("id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"approved": false})
}
