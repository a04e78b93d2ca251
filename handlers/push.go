package handlers

import (
	"log"
	"net/http"
	"time"

	"campussnap/apperr"
	"campussnap/middleware"
	"campussnap/models"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
)

func (h *Handler) GetVapidPublicKey(c *gin.Context) {
	if h.vapidKey == "" {
		fail(c, apperr.NotFound("Push notifications are not configured"))
		return
	}
	ok(c, http.StatusOK, gin.H{"publicKey": h.vapidKey})
}

type SubscribePushRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// SubscribePush stores the browser subscription. Re-subscribing the same
// endpoint rebinds it to the current user.
func (h *Handler) SubscribePush(c *gin.Context) {
	if h.vapidKey == "" {
		fail(c, apperr.NotFound("Push notifications are not configured"))
		return
	}
	var req SubscribePushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	userID := middleware.CurrentUserID(c)

	ctx, cancel := requestCtx(c)
	defer cancel()

	sub := &models.PushSubscription{
		UserID: userID,
		Sub: webpush.Subscription{
			Endpoint: req.Endpoint,
			Keys:     webpush.Keys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
		},
		CreatedAt: time.Now(),
	}
	if err := h.store.SaveSubscription(ctx, sub); err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	log.Printf("[Push] subscription saved for user %s", userID.Hex())
	ok(c, http.StatusOK, gin.H{"message": "Push subscription saved"})
}

// ServeWS upgrades an authenticated request to the notification socket.
func (h *Handler) ServeWS(c *gin.Context) {
	if h.hub == nil {
		fail(c, apperr.NotFound("Notifications are not available"))
		return
	}
	h.hub.ServeUser(c.Writer, c.Request, middleware.CurrentUserID(c))
}
