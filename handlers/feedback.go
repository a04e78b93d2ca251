package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"campussnap/apperr"
	"campussnap/middleware"
	"campussnap/models"

	"github.com/gin-gonic/gin"
)

type FeedbackRequest struct {
	Type    string `json:"type" form:"type"`
	Message string `json:"message" form:"message"`
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		fail(c, apperr.Validation("message required"))
		return
	}
	if !models.IsFeedbackType(req.Type) {
		fail(c, apperr.Validation("Invalid feedback type"))
		return
	}
	if utf8.RuneCountInString(msg) > models.MaxFeedbackLength {
		fail(c, apperr.Validation(fmt.Sprintf("message must be at most %d characters", models.MaxFeedbackLength)))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	fb := &models.Feedback{
		User:      middleware.CurrentUserID(c),
		Type:      req.Type,
		Message:   msg,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateFeedback(ctx, fb); err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ok(c, http.StatusCreated, gin.H{"message": "Feedback submitted successfully"})
}
