package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"campussnap/apperr"
	"campussnap/media"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/notify"
	"campussnap/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const postDetailComments = 5

type CreatePostRequest struct {
	Caption    string `form:"caption" json:"caption" binding:"max=2200"`
	Department string `form:"department" json:"department" binding:"required,department"`
	Year       string `form:"year" json:"year" binding:"required,year"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["media"]) == 0 {
		fail(c, apperr.Validation("At least one photo is required"))
		return
	}
	files := form.File["media"]
	if len(files) > models.MaxPostMedia {
		fail(c, apperr.Validation(fmt.Sprintf("At most %d files per post", models.MaxPostMedia)))
		return
	}
	me := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), uploadTimeout)
	defer cancel()

	uploaded := make([]models.Media, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.discardMedia(uploaded)
			fail(c, apperr.Validation("Could not read uploaded file"))
			return
		}
		m, err := h.media.Upload(ctx, f, media.FolderPosts)
		f.Close()
		if err != nil {
			h.discardMedia(uploaded)
			fail(c, apperr.Internal(err))
			return
		}
		uploaded = append(uploaded, m)
	}

	now := time.Now()
	post := &models.Post{
		User:       me.ID,
		Caption:    strings.TrimSpace(req.Caption),
		Department: req.Department,
		Year:       req.Year,
		Media:      uploaded,
		Likes:      []primitive.ObjectID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreatePost(ctx, post); err != nil {
		h.discardMedia(uploaded)
		fail(c, apperr.Internal(err))
		return
	}

	ok(c, http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"post":    models.PostView{Post: *post, Author: me.Author()},
	})
}

// discardMedia removes uploads whose owning document was never saved.
func (h *Handler) discardMedia(items []models.Media) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	for _, m := range items {
		if m.PublicID == "" {
			continue
		}
		if err := h.media.Destroy(ctx, m); err != nil {
			log.Printf("[discardMedia] failed to discard %s: %v", m.PublicID, err)
		}
	}
}

// livePost loads a post and hides soft-deleted ones.
func (h *Handler) livePost(ctx context.Context, id primitive.ObjectID, notFound string) (*models.Post, error) {
	post, err := h.store.PostByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, notFound, "")
	}
	if post.IsDeleted {
		return nil, apperr.NotFound(notFound)
	}
	return post, nil
}

func (h *Handler) LikePost(c *gin.Context) {
	postID, err := objectID(c, "postId", "Post not found or deleted")
	if err != nil {
		fail(c, err)
		return
	}
	me := middleware.CurrentUser(c)

	ctx, cancel := requestCtx(c)
	defer cancel()

	post, err := h.livePost(ctx, postID, "Post not found or deleted")
	if err != nil {
		fail(c, err)
		return
	}
	likes, liked, err := h.store.ToggleLike(ctx, postID, me.ID)
	if err != nil {
		fail(c, storeErr(err, "Post not found or deleted", ""))
		return
	}

	if liked {
		h.notifyAsync(post.User, me, notify.EventPostLiked, post.ID)
	}
	ok(c, http.StatusOK, gin.H{"likes": likes, "liked": liked})
}

func (h *Handler) GetPostByID(c *gin.Context) {
	postID, err := objectID(c, "postId", "Post not found")
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	post, err := h.livePost(ctx, postID, "Post not found")
	if err != nil {
		fail(c, err)
		return
	}

	detail := models.PostDetail{PostView: models.PostView{Post: *post, LikesCount: len(post.Likes)}}
	author, err := h.store.UserByID(ctx, post.User)
	switch {
	case err == nil:
		detail.Author = author.Author()
	case !errors.Is(err, store.ErrNotFound):
		fail(c, apperr.Internal(err))
		return
	}

	detail.Comments, _, err = h.store.CommentsForPost(ctx, postID, 0, postDetailComments)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	ok(c, http.StatusOK, gin.H{"post": detail})
}

// DeletePost purges the media first so a storage failure leaves the post
// untouched, then soft-deletes the post together with its comments.
func (h *Handler) DeletePost(c *gin.Context) {
	postID, err := objectID(c, "postId", "Post not found")
	if err != nil {
		fail(c, err)
		return
	}
	me := middleware.CurrentUserID(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), uploadTimeout)
	defer cancel()

	post, err := h.livePost(ctx, postID, "Post not found")
	if err != nil {
		fail(c, err)
		return
	}
	if post.User != me {
		fail(c, apperr.Forbidden("Unauthorized"))
		return
	}

	for _, m := range post.Media {
		if err := h.media.Destroy(ctx, m); err != nil {
			fail(c, apperr.Internal(fmt.Errorf("destroy %s: %w", m.PublicID, err)))
			return
		}
	}

	if err := h.store.SoftDeletePost(ctx, postID); err != nil {
		fail(c, storeErr(err, "Post not found", ""))
		return
	}

	log.Printf("[DeletePost] post %s deleted by %s", postID.Hex(), me.Hex())
	ok(c, http.StatusOK, gin.H{"message": "Post deleted"})
}
