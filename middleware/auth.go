package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"campussnap/apperr"
	"campussnap/models"
	"campussnap/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CookieName = "token"
	TokenTTL   = 90 * 24 * time.Hour

	ctxUserID = "userId"
	ctxRole   = "role"
	ctxUser   = "user"
)

type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies session tokens with a shared HMAC secret.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

func (t *Tokens) Issue(userID primitive.ObjectID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.Hex(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// tokenFrom reads the session cookie, falling back to a Bearer header.
func tokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Authenticate loads the caller's user record once and stores it, with its
// id and role, on the context. Blocked and deleted users are rejected here.
func Authenticate(tokens *Tokens, users store.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip middleware for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw := tokenFrom(c)
		if raw == "" {
			AbortWithError(c, apperr.Auth("Not authenticated"))
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			log.Printf("[Auth] token rejected: %v", err)
			AbortWithError(c, apperr.Auth("Invalid or expired session"))
			return
		}
		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			AbortWithError(c, apperr.Auth("Invalid or expired session"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		user, err := users.UserByID(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			AbortWithError(c, apperr.NotFound("User not found"))
			return
		}
		if err != nil {
			AbortWithError(c, apperr.Internal(err))
			return
		}
		if !user.IsActive {
			AbortWithError(c, apperr.Blocked())
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxRole, user.Role)
		c.Set(ctxUser, user)
		c.Next()
	}
}

// RequireRole must run after Authenticate. It checks the freshly loaded
// record, not the token claim, so demotions take effect immediately.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			AbortWithError(c, apperr.Forbidden("Access denied"))
			return
		}
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) primitive.ObjectID {
	id, _ := c.Get(ctxUserID)
	oid, _ := id.(primitive.ObjectID)
	return oid
}

func CurrentUser(c *gin.Context) *models.User {
	u, _ := c.Get(ctxUser)
	user, _ := u.(*models.User)
	return user
}

// SetSessionCookie writes the token cookie. Production deployments serve the
// SPA from another origin, which needs SameSite=None and Secure.
func SetSessionCookie(c *gin.Context, token string, production bool) {
	writeCookie(c, token, int(TokenTTL/time.Second), production)
}

func ClearSessionCookie(c *gin.Context, production bool) {
	writeCookie(c, "", -1, production)
}

func writeCookie(c *gin.Context, value string, maxAge int, production bool) {
	if production {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(CookieName, value, maxAge, "/", "", production, true)
}

// AbortWithError writes the standard failure envelope. Internal errors are
// logged and reported without detail.
func AbortWithError(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		log.Printf("[%s %s] server error: %v", c.Request.Method, c.FullPath(), e.Err)
	}
	body := gin.H{"success": false, "message": e.Message}
	if e.Blocked {
		body["blocked"] = true
	}
	c.AbortWithStatusJSON(e.Status(), body)
}
