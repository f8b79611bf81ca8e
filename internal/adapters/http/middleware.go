package http

import (
	"net/http"
	"strings"

	"github.com/dkeye/LiveClass/internal/auth"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	userKey        = "user"
	sessionUserID  = "uid"
	sessionName    = "name"
	sessionRoleKey = "role"
)

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// Browsers cannot set headers on a WebSocket handshake.
	return c.Query("token")
}

// AuthMiddleware accepts a bearer token and remembers the verified user in
// the cookie session, so later requests may omit the token.
func AuthMiddleware(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		if raw := bearerToken(c); raw != "" {
			user, err := issuer.Verify(raw)
			if err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("rejected token")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
			sess.Set(sessionUserID, string(user.ID))
			sess.Set(sessionName, user.Username)
			sess.Set(sessionRoleKey, string(user.Role))
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
			c.Set(userKey, user)
			c.Next()
			return
		}

		if user, ok := userFromSession(sess); ok {
			c.Set(userKey, user)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
	}
}

func userFromSession(sess sessions.Session) (*domain.User, bool) {
	uid, _ := sess.Get(sessionUserID).(string)
	if uid == "" {
		return nil, false
	}
	name, _ := sess.Get(sessionName).(string)
	rawRole, _ := sess.Get(sessionRoleKey).(string)
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return nil, false
	}
	return &domain.User{ID: domain.UserID(uid), Username: name, Role: role}, true
}

// CurrentUser must only be called behind AuthMiddleware.
func CurrentUser(c *gin.Context) *domain.User {
	return c.MustGet(userKey).(*domain.User)
}
