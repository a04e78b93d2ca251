package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"campussnap/apperr"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UpdateProfileRequest struct {
	FullName   string `form:"fullName" json:"fullName"`
	Email      string `form:"email" json:"email" binding:"omitempty,email"`
	Bio        string `form:"bio" json:"bio" binding:"omitempty,max=500"`
	Department string `form:"department" json:"department" binding:"omitempty,department"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	me := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), uploadTimeout)
	defer cancel()

	upd := models.ProfileUpdate{
		FullName:   strings.TrimSpace(req.FullName),
		Email:      normalizeEmail(req.Email),
		Bio:        strings.TrimSpace(req.Bio),
		Department: req.Department,
	}

	if upd.Email != "" && upd.Email != me.Email {
		other, err := h.store.UserByEmail(ctx, upd.Email)
		switch {
		case err == nil && other.ID != me.ID:
			fail(c, apperr.Conflict("Email already used"))
			return
		case err != nil && !errors.Is(err, store.ErrNotFound):
			fail(c, apperr.Internal(err))
			return
		}
	}

	photo, err := h.uploadProfilePhoto(ctx, c)
	if err != nil {
		fail(c, err)
		return
	}
	upd.ProfilePhoto = photo.URL

	user := me
	if !upd.Empty() {
		user, err = h.store.UpdateProfile(ctx, me.ID, upd)
		if err != nil {
			h.discardMedia([]models.Media{photo})
			fail(c, storeErr(err, "User not found", "Email already used"))
			return
		}
	}

	ok(c, http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

// GetUserProfile returns a user's public page: counts, follow state and the
// post grid as seen by the caller.
func (h *Handler) GetUserProfile(c *gin.Context) {
	targetID, err := objectID(c, "id", "User not found")
	if err != nil {
		fail(c, err)
		return
	}
	viewerID := middleware.CurrentUserID(c)

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.store.UserByID(ctx, targetID)
	if err != nil {
		fail(c, storeErr(err, "User not found", ""))
		return
	}

	followers, err := h.store.CountFollowers(ctx, targetID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	following, err := h.store.CountFollowing(ctx, targetID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	isFollowing, err := h.store.IsFollowing(ctx, viewerID, targetID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	posts, err := h.store.PostsByAuthor(ctx, targetID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ids := make([]primitive.ObjectID, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	comments, err := h.store.CommentCounts(ctx, ids)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	summaries := make([]models.PostSummary, len(posts))
	for i := range posts {
		summaries[i] = posts[i].Summarize(viewerID, comments[posts[i].ID])
	}

	ok(c, http.StatusOK, gin.H{
		"user":        user,
		"posts":       summaries,
		"isFollowing": isFollowing,
		"followers":   followers,
		"following":   following,
	})
}

func (h *Handler) GetUserCount(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	n, err := h.store.CountActiveUsers(ctx)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"totalUsers": n})
}
