package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/store"
)

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, st store.Store, sigCtl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(OriginFilter(cfg.AllowedOrigins))

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rooms := &RoomHandlers{Store: st}
	admin := &AdminHandlers{Store: st, Coord: coord}

	api := r.Group("/api")
	{
		api.POST("/auth/login", Login(cfg.JWTSecret))
		api.POST("/rooms", JWTAuth(cfg.JWTSecret), rooms.CreateRoom)
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:roomId", rooms.GetRoom)
		api.DELETE("/rooms/:roomId", JWTAuth(cfg.JWTSecret), rooms.DeleteRoom)
	}

	adm := r.Group("/admin", JWTAuth(cfg.JWTSecret))
	{
		adm.GET("/rooms", admin.Rooms)
		adm.GET("/rooms/:roomId", admin.RoomDetail)
		adm.GET("/stats", admin.Stats)
	}

	r.GET("/ws/:roomId", func(c *gin.Context) {
		sigCtl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
