// Package http assembles the gin router: signaling endpoint, meeting
// metadata REST, health, and metrics.
package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/adapters/signal"
	"github.com/meetwave/meetwave/internal/app"
	"github.com/meetwave/meetwave/internal/config"
	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/metrics"
)

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, meetings core.MeetingStore, verifier core.TokenVerifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	ctl := signal.NewController(coord, cfg.SendBuffer, cfg.ReadLimit)
	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	h := &MeetingHandlers{Store: meetings, Coord: coord, PublicBase: cfg.PublicURL}
	m := api.Group("/meetings")
	m.Use(OptionalAuth(verifier))
	m.POST("", h.Create)
	m.GET("/active", h.Active)
	m.GET("/user/my-meetings", h.MyMeetings)
	m.GET("/:id", h.Get)
	m.POST("/:id/join", h.Join)
	m.POST("/:id/end", h.End)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
