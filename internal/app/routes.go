package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tanzawa/core/internal/middleware"
	"github.com/tanzawa/core/internal/modules/auth"
	"github.com/tanzawa/core/internal/modules/entry"
	"github.com/tanzawa/core/internal/modules/indieauth"
	"github.com/tanzawa/core/internal/modules/micropub"
	"github.com/tanzawa/core/internal/modules/webmention"
	"github.com/tanzawa/core/internal/pkg/objectstore"
	"github.com/tanzawa/core/internal/pkg/response"
)

func (a *App) registerRoutes(store *objectstore.Store) {
	r := a.router
	db := a.db
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "tanzawa-core",
		"version":  "1.0.0",
		"homepage": "https://github.com/tanzawa/core",
	}
	r.GET("/api", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })

	root := r.Group("")

	// Protocol services
	tokenSvc := indieauth.NewService(db, nil)
	entrySvc := entry.NewService(db, a.logger)
	sender := webmention.NewSender(db, a.cfg, a.logger, a.queue)
	sender.RegisterHandlers()
	receiver := webmention.NewReceiver(db, a.cfg, a.logger)
	mediaSvc := micropub.NewMediaService(db, a.cfg, a.logger, store)
	micropubSvc := micropub.NewService(a.cfg, a.logger, tokenSvc, entrySvc, sender, mediaSvc)

	// Public protocol endpoints
	micropub.NewHandler(micropubSvc, a.logger).RegisterRoutes(root)
	webmention.NewHandler(receiver).RegisterRoutes(root, authMW)
	indieauth.NewHandler(tokenSvc).RegisterRoutes(root, authMW)

	// Owner session + admin API
	auth.NewHandler(auth.NewService(db)).RegisterRoutes(root, authMW)
	entry.NewHandler(entrySvc, sender.SendForEntry).RegisterRoutes(root, authMW)
}
