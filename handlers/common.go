package handlers

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campussnap/apperr"
	"campussnap/media"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/notify"
	"campussnap/store"
	"campussnap/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	requestTimeout = 10 * time.Second
	uploadTimeout  = 60 * time.Second
	notifyTimeout  = 5 * time.Second
)

type Options struct {
	Store      store.Store
	Media      media.Uploader
	Notifier   notify.Notifier
	Tokens     *middleware.Tokens
	Hub        *websocket.Manager
	Production bool
	// VAPIDPublicKey is handed to browsers subscribing to push; empty
	// disables the push endpoints.
	VAPIDPublicKey string
}

// Handler serves every API route. It is safe for concurrent use.
type Handler struct {
	store      store.Store
	media      media.Uploader
	notifier   notify.Notifier
	tokens     *middleware.Tokens
	hub        *websocket.Manager
	production bool
	vapidKey   string
}

func New(opts Options) *Handler {
	h := &Handler{
		store:      opts.Store,
		media:      opts.Media,
		notifier:   opts.Notifier,
		tokens:     opts.Tokens,
		hub:        opts.Hub,
		production: opts.Production,
		vapidKey:   opts.VAPIDPublicKey,
	}
	if h.notifier == nil {
		h.notifier = notify.Nop{}
	}
	return h
}

func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

func fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

func requestCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// objectID parses a path parameter. Malformed ids cannot name an existing
// document, so they report the same not-found message as a missing one.
func objectID(c *gin.Context, param, notFound string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound(notFound)
	}
	return id, nil
}

// storeErr translates store sentinels into API errors.
func storeErr(err error, notFound, duplicate string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Conflict(duplicate)
	}
	return apperr.Internal(err)
}

// pagination reads page/limit query params, clamping to sane values.
func pagination(c *gin.Context, defLimit int64) (page, limit, skip int64) {
	page = queryInt(c, "page", 1)
	limit = queryInt(c, "limit", defLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	// keeps (page-1)*limit from overflowing
	if maxPage := math.MaxInt64 / limit; page > maxPage {
		page = maxPage
	}
	return page, limit, (page - 1) * limit
}

const maxPageSize = 50

func queryInt(c *gin.Context, key string, def int64) int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}

// notifyAsync delivers ev to userID in the background unless the actor is
// the recipient.
func (h *Handler) notifyAsync(userID primitive.ObjectID, actor *models.User, kind string, postID primitive.ObjectID) {
	if actor == nil || actor.ID == userID {
		return
	}
	ev := notify.NewEvent(kind, actor.Author(), postID)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Notify] panic delivering %s: %v", kind, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		h.notifier.Notify(ctx, userID, ev)
	}()
}

// bindError turns a binding failure into a readable validation message.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("Invalid request body")
	}
	fe := verrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.Validation(field + " is required")
	case "email":
		return apperr.Validation("Invalid email address")
	case "min":
		return apperr.Validation(field + " must be at least " + fe.Param() + " characters")
	case "max":
		return apperr.Validation(field + " must be at most " + fe.Param() + " characters")
	case "department":
		return apperr.Validation("Invalid department")
	case "year":
		return apperr.Validation("Invalid year")
	}
	return apperr.Validation("Invalid " + field)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// NoRoute answers unknown paths with the JSON envelope.
func NoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"message": "Endpoint not found",
		"path":    c.Request.URL.Path,
	})
}
