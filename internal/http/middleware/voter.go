package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
	"github.com/yungbote/mensa-backend/internal/services"
)

const VoterCookie = "voter"

type VoterMiddleware struct {
	log          *logger.Logger
	tokens       services.VoterTokenService
	secureCookie bool
}

func NewVoterMiddleware(log *logger.Logger, tokens services.VoterTokenService, secureCookie bool) *VoterMiddleware {
	return &VoterMiddleware{
		log:          log.With("middleware", "VoterMiddleware"),
		tokens:       tokens,
		secureCookie: secureCookie,
	}
}

// AttachVoter resolves the anonymous voter from the voter cookie, issuing a
// fresh token when the cookie is missing or does not verify.
func (vm *VoterMiddleware) AttachVoter() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(VoterCookie)
		fingerprint, err := vm.tokens.Verify(raw)
		if err != nil {
			token, fp, issueErr := vm.tokens.Issue()
			if issueErr != nil {
				vm.log.Error("Failed to issue voter token", "error", issueErr)
				c.Next()
				return
			}
			fingerprint = fp
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(VoterCookie, token, int(vm.tokens.TTL().Seconds()), "/", "", vm.secureCookie, true)
		}
		c.Request = c.Request.WithContext(ctxutil.WithVoter(c.Request.Context(), fingerprint))
		c.Next()
	}
}

// RequireToken guards operator endpoints with a shared secret passed as a
// bearer token or X-Ingest-Token. An empty secret disables the endpoint.
func RequireToken(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "endpoint disabled", "code": "forbidden"},
			})
			return
		}
		got := extractToken(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("X-Ingest-Token")); h != "" {
		return h
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
