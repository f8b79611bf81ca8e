package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/LiveClass/internal/adapters/signal"
	"github.com/dkeye/LiveClass/internal/adapters/store"
	"github.com/dkeye/LiveClass/internal/app/orch"
	"github.com/dkeye/LiveClass/internal/auth"
	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Cfg      *config.Config
	Orch     *orch.Orchestrator
	Issuer   *auth.Issuer
	Bookings core.BookingDirectory
	Limiter  *signal.RoomRateLimiter
	// ICEServers returns the servers advertised to call agents.
	ICEServers func() []config.ICEServer
}

// sessionOptions keeps the auth cookie usable over plain http outside release.
// The cookie lives as long as the token that created it.
func sessionOptions(mode string, ttl time.Duration) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   mode == "release",
		SameSite: http.SameSiteLaxMode,
	}
}

func SetupRouter(ctx context.Context, d Deps) *gin.Engine {
	cfg := d.Cfg
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessionOptions(cfg.Mode, cfg.Auth.TokenTTL))
	r.Use(sessions.Sessions("LiveClassSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(d.Orch, d.Limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.Signaling.SendBuffer,
	})

	api := r.Group("/api")
	api.Use(AuthMiddleware(d.Issuer))

	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, CurrentUser(c))
	})

	api.GET("/bookings/:id", func(c *gin.Context) {
		handleBooking(c, d.Bookings)
	})

	api.GET("/ice", func(c *gin.Context) {
		servers := cfg.ICE.Servers
		if d.ICEServers != nil {
			servers = d.ICEServers()
		}
		c.JSON(http.StatusOK, gin.H{"iceServers": servers})
	})

	api.GET("/sessions", func(c *gin.Context) {
		if CurrentUser(c).Role != domain.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.JSON(http.StatusOK, d.Orch.Rooms.List())
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		user := CurrentUser(c)
		log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c, user)
	})

	return r
}

func handleBooking(c *gin.Context, bookings core.BookingDirectory) {
	if bookings == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no booking directory"})
		return
	}
	b, err := bookings.Booking(c.Request.Context(), domain.BookingID(c.Param("id")))
	if err != nil {
		if errors.Is(err, store.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("booking lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "booking lookup failed"})
		return
	}
	user := CurrentUser(c)
	if user.Role != domain.RoleAdmin && !b.Has(user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, b)
}
