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
	"campussnap/notify"

	"github.com/gin-gonic/gin"
)

const defaultCommentPage = 10

func (h *Handler) GetPostComments(c *gin.Context) {
	postID, err := objectID(c, "postId", "Post not found")
	if err != nil {
		fail(c, err)
		return
	}
	page, limit, skip := pagination(c, defaultCommentPage)

	ctx, cancel := requestCtx(c)
	defer cancel()

	if _, err := h.livePost(ctx, postID, "Post not found"); err != nil {
		fail(c, err)
		return
	}

	comments, total, err := h.store.CommentsForPost(ctx, postID, skip, limit)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	ok(c, http.StatusOK, gin.H{
		"comments": comments,
		"total":    total,
		"page":     page,
		"hasMore":  skip+int64(len(comments)) < total,
	})
}

type AddCommentRequest struct {
	Text string `json:"text" form:"text"`
}

func (h *Handler) AddComment(c *gin.Context) {
	postID, err := objectID(c, "postId", "Post not found")
	if err != nil {
		fail(c, err)
		return
	}
	var req AddCommentRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		fail(c, apperr.Validation("Comment cannot be empty"))
		return
	}
	if utf8.RuneCountInString(text) > models.MaxCommentLength {
		fail(c, apperr.Validation(fmt.Sprintf("Comment must be at most %d characters", models.MaxCommentLength)))
		return
	}
	me := middleware.CurrentUser(c)

	ctx, cancel := requestCtx(c)
	defer cancel()

	post, err := h.livePost(ctx, postID, "Post not found")
	if err != nil {
		fail(c, err)
		return
	}

	comment := &models.Comment{
		Post:      postID,
		User:      me.ID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateComment(ctx, comment); err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	h.notifyAsync(post.User, me, notify.EventPostCommented, post.ID)
	ok(c, http.StatusCreated, gin.H{
		"comment": models.CommentView{Comment: *comment, Author: me.Author()},
	})
}
