package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/progression-engine/internal/platform/ctxutil"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const headerLearnerID = "X-Learner-Id"

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens whose subject is the learner id.
	JWTSecret string
	// AllowLearnerHeader accepts X-Learner-Id when no token is presented.
	// Development only.
	AllowLearnerHeader bool
}

type AuthMiddleware struct {
	log *logger.Logger
	cfg AuthConfig
}

func NewAuthMiddleware(log *logger.Logger, cfg AuthConfig) *AuthMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), cfg: cfg}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd, err := am.resolve(c)
		if err != nil {
			am.log.Debug("request rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

func (am *AuthMiddleware) resolve(c *gin.Context) (*ctxutil.RequestData, error) {
	if token := extractToken(c); token != "" {
		if am.cfg.JWTSecret == "" {
			return nil, errors.New("token auth is not configured")
		}
		learnerID, err := ParseToken(am.cfg.JWTSecret, token)
		if err != nil {
			return nil, err
		}
		return &ctxutil.RequestData{LearnerID: learnerID, TokenString: token}, nil
	}
	if am.cfg.AllowLearnerHeader {
		raw := strings.TrimSpace(c.GetHeader(headerLearnerID))
		if raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil || id == uuid.Nil {
				return nil, errors.New("invalid learner id header")
			}
			return &ctxutil.RequestData{LearnerID: id}, nil
		}
	}
	return nil, errors.New("missing or invalid token")
}

// ParseToken verifies an HS256 token and returns its subject as a learner id.
func ParseToken(secret, token string) (uuid.UUID, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("invalid learner id in token")
	}
	return id, nil
}

// IssueToken signs a token for learnerID valid for ttl.
func IssueToken(secret string, learnerID uuid.UUID, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   learnerID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	// EventSource cannot set headers.
	if c.Request.Method == http.MethodGet {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}
