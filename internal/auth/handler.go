package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
)

// TokenResponse carries a newly issued token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshHandler reissues the caller's token with a fresh lifetime. It must run after RequireAuth.
//
// @Summary Refresh token
// @Description Exchange a valid bearer token for a new one with a fresh lifetime
// @Tags auth
// @Produce json
// @Success 200 {object} TokenResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/refresh [post]
func RefreshHandler(jwtManager *JWTManager, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Missing or invalid authorization header")
			return
		}

		refreshed, err := jwtManager.RefreshToken(c.Request.Context(), token, ttl)
		if err != nil {
			logger.Warn("token refresh failed", zap.String("user_id", UserID(c)), zap.Error(err))
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid or expired token")
			return
		}

		c.JSON(http.StatusOK, TokenResponse{Token: refreshed, ExpiresAt: time.Now().Add(ttl).UTC()})
	}
}
