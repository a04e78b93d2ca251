package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"campussnap/apperr"
	"campussnap/media"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	FullName string `form:"fullName" json:"fullName" binding:"required"`
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Register creates an account. The caller logs in separately.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = normalizeEmail(req.Email)
	if req.FullName == "" {
		fail(c, apperr.Validation("Required fields missing"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), uploadTimeout)
	defer cancel()

	// Check if email already exists
	_, err := h.store.UserByEmail(ctx, req.Email)
	if err == nil {
		fail(c, apperr.Conflict("Email already used"))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		fail(c, apperr.Internal(err))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	photo, err := h.uploadProfilePhoto(ctx, c)
	if err != nil {
		fail(c, err)
		return
	}

	now := time.Now()
	user := &models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hashed),
		Role:         models.RoleUser,
		ProfilePhoto: photo.URL,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		h.discardMedia([]models.Media{photo})
		fail(c, storeErr(err, "User not found", "Email already used"))
		return
	}

	log.Printf("[Register] new account %s", user.ID.Hex())
	ok(c, http.StatusCreated, gin.H{"message": "Account created successfully"})
}

// uploadProfilePhoto stores the optional "file" form part. The zero Media
// means no file was sent.
func (h *Handler) uploadProfilePhoto(ctx context.Context, c *gin.Context) (models.Media, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return models.Media{}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return models.Media{}, apperr.Validation("Could not read uploaded file")
	}
	defer f.Close()

	m, err := h.media.Upload(ctx, f, media.FolderProfiles)
	if err != nil {
		return models.Media{}, apperr.Internal(err)
	}
	return m, nil
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, apperr.Validation("Email and password required"))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.store.UserByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, apperr.Auth("Invalid credentials"))
		return
	}
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		fail(c, apperr.Auth("Invalid credentials"))
		return
	}
	if !user.IsActive {
		fail(c, apperr.Forbidden("Account is blocked"))
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	now := time.Now()
	if err := h.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("[Login] failed to record last login for %s: %v", user.ID.Hex(), err)
	}
	user.LastLogin = &now

	middleware.SetSessionCookie(c, token, h.production)
	ok(c, http.StatusOK, gin.H{
		"message": "Welcome back, " + user.FullName,
		"user":    user,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	middleware.ClearSessionCookie(c, h.production)
	ok(c, http.StatusOK, gin.H{"message": "Logged out"})
}
