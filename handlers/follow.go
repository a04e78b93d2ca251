package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"campussnap/apperr"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/notify"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (h *Handler) FollowUser(c *gin.Context) {
	targetID, err := objectID(c, "id", "User not found")
	if err != nil {
		fail(c, err)
		return
	}
	me := middleware.CurrentUser(c)
	if targetID == me.ID {
		fail(c, apperr.Validation("Cannot follow yourself"))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	if _, err := h.store.UserByID(ctx, targetID); err != nil {
		fail(c, storeErr(err, "User not found", ""))
		return
	}

	edge := &models.Follow{Follower: me.ID, Following: targetID, CreatedAt: time.Now()}
	if err := h.store.CreateFollow(ctx, edge); err != nil {
		fail(c, storeErr(err, "User not found", "Already following"))
		return
	}

	h.notifyAsync(targetID, me, notify.EventNewFollower, primitive.NilObjectID)
	ok(c, http.StatusOK, gin.H{"message": "Followed"})
}

func (h *Handler) UnfollowUser(c *gin.Context) {
	targetID, err := objectID(c, "id", "User not found")
	if err != nil {
		fail(c, err)
		return
	}
	me := middleware.CurrentUserID(c)

	ctx, cancel := requestCtx(c)
	defer cancel()

	removed, err := h.store.DeleteFollow(ctx, me, targetID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	if !removed {
		fail(c, apperr.Validation("Not following"))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Unfollowed"})
}

func (h *Handler) GetFollowers(c *gin.Context) {
	h.followList(c, h.store.FollowerIDs)
}

func (h *Handler) GetFollowing(c *gin.Context) {
	h.followList(c, h.store.FollowingIDs)
}

type edgeLister func(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)

// followList resolves one side of a user's follow edges into rows, marking the
// ones the caller already follows. The caller's following set is read once.
func (h *Handler) followList(c *gin.Context, list edgeLister) {
	targetID, err := objectID(c, "id", "User not found")
	if err != nil {
		fail(c, err)
		return
	}
	viewerID := middleware.CurrentUserID(c)

	ctx, cancel := requestCtx(c)
	defer cancel()

	ids, err := list(ctx, targetID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	rows := make([]models.FollowRow, 0, len(ids))
	if len(ids) == 0 {
		ok(c, http.StatusOK, gin.H{"users": rows})
		return
	}

	users, err := h.store.UsersByIDs(ctx, ids)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	mine, err := h.store.FollowingIDs(ctx, viewerID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	following := make(map[primitive.ObjectID]bool, len(mine))
	for _, id := range mine {
		following[id] = true
	}

	for _, id := range ids {
		u, found := users[id]
		if !found {
			// edge to a user that no longer resolves
			log.Printf("[Follow] dangling edge to %s", id.Hex())
			continue
		}
		rows = append(rows, models.FollowRow{
			ID:           u.ID,
			FullName:     u.FullName,
			ProfilePhoto: u.ProfilePhoto,
			IsFollowing:  following[u.ID],
		})
	}
	ok(c, http.StatusOK, gin.H{"users": rows})
}
