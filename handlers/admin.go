package handlers

import (
	"log"
	"net/http"

	"campussnap/apperr"
	"campussnap/middleware"
	"campussnap/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListUsers returns every non-admin account with its post and follower
// counts. Counts come from two grouped queries rather than one per user.
func (h *Handler) ListUsers(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	users, err := h.store.UsersByRole(ctx, models.RoleUser)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ids := make([]primitive.ObjectID, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	posts, err := h.store.PostCounts(ctx, ids)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	followers, err := h.store.FollowerCounts(ctx, ids)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	rows := make([]models.AdminUserRow, len(users))
	for i, u := range users {
		rows[i] = models.AdminUserRow{
			ID:             u.ID,
			FullName:       u.FullName,
			Email:          u.Email,
			Department:     u.Department,
			Bio:            u.Bio,
			ProfilePhoto:   u.ProfilePhoto,
			IsActive:       u.IsActive,
			FollowersCount: followers[u.ID],
			PostsCount:     posts[u.ID],
			CreatedAt:      u.CreatedAt,
		}
	}
	ok(c, http.StatusOK, gin.H{"users": rows})
}

func (h *Handler) BlockUser(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) UnblockUser(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	targetID, err := objectID(c, "id", "User not found")
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.store.UserByID(ctx, targetID)
	if err != nil {
		fail(c, storeErr(err, "User not found", ""))
		return
	}
	if !active && user.Role == models.RoleAdmin {
		fail(c, apperr.Validation("Cannot block an admin"))
		return
	}
	if err := h.store.SetActive(ctx, targetID, active); err != nil {
		fail(c, storeErr(err, "User not found", ""))
		return
	}

	msg := "User unblocked"
	if !active {
		msg = "User blocked"
	}
	log.Printf("[Admin] %s: %s by %s", msg, targetID.Hex(), middleware.CurrentUserID(c).Hex())
	ok(c, http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) ListFeedback(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	feedbacks, err := h.store.ListFeedback(ctx)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"feedbacks": feedbacks})
}

func (h *Handler) DashboardStats(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	stats, err := h.store.DashboardStats(ctx)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": stats})
}
