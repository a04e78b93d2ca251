package handlers

import (
	"net/http"
	"strings"
	"time"

	"campussnap/apperr"
	"campussnap/store"

	"github.com/gin-gonic/gin"
)

const (
	defaultExplorePage = 20
	trendingWindow     = 72 * time.Hour
	trendingLimit      = 3
)

// GetExplorePosts serves the filtered, searchable explore grid.
func (h *Handler) GetExplorePosts(c *gin.Context) {
	page, limit, skip := pagination(c, defaultExplorePage)
	q := store.ExploreQuery{
		Department: strings.TrimSpace(c.Query("department")),
		Year:       strings.TrimSpace(c.Query("year")),
		Search:     strings.TrimSpace(c.Query("search")),
		Skip:       skip,
		Limit:      limit,
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	posts, total, err := h.store.Explore(ctx, q)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	ok(c, http.StatusOK, gin.H{
		"posts":   posts,
		"total":   total,
		"page":    page,
		"hasMore": skip+int64(len(posts)) < total,
	})
}

func (h *Handler) GetTrendingPosts(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	posts, err := h.store.Trending(ctx, time.Now().Add(-trendingWindow), trendingLimit)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"posts": posts})
}
