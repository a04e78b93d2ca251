// Package store is the persistence layer. Handlers depend on the interfaces
// below; Mongo backs them in production and Memory in tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	TouchLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
	CountActiveUsers(ctx context.Context) (int64, error)
	UsersByRole(ctx context.Context, role string) ([]models.User, error)
}

// ExploreQuery is the explore-feed filter. Empty strings mean "any".
type ExploreQuery struct {
	Department string
	Year       string
	Search     string
	Skip       int64
	Limit      int64
}

type Posts interface {
	CreatePost(ctx context.Context, p *models.Post) error
	// PostByID returns the post even when soft-deleted; callers decide visibility.
	PostByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	// ToggleLike atomically adds userID to the liker set if absent, removes it
	// if present. ErrNotFound when the post is missing or deleted.
	ToggleLike(ctx context.Context, postID, userID primitive.ObjectID) (likes []primitive.ObjectID, liked bool, err error)
	// SoftDeletePost flips isDeleted, clears media and removes the post's comments.
	SoftDeletePost(ctx context.Context, postID primitive.ObjectID) error
	PostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]models.Post, error)
	PostCounts(ctx context.Context, authorIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error)
	Explore(ctx context.Context, q ExploreQuery) (posts []models.PostView, total int64, err error)
	Trending(ctx context.Context, since time.Time, limit int64) ([]models.PostView, error)
}

type Comments interface {
	CreateComment(ctx context.Context, c *models.Comment) error
	CommentsForPost(ctx context.Context, postID primitive.ObjectID, skip, limit int64) ([]models.CommentView, int64, error)
	CommentCounts(ctx context.Context, postIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error)
}

type Follows interface {
	CreateFollow(ctx context.Context, f *models.Follow) error
	// DeleteFollow reports whether an edge was removed.
	DeleteFollow(ctx context.Context, follower, following primitive.ObjectID) (bool, error)
	IsFollowing(ctx context.Context, follower, following primitive.ObjectID) (bool, error)
	FollowerIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)
	FollowingIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)
	CountFollowers(ctx context.Context, userID primitive.ObjectID) (int64, error)
	CountFollowing(ctx context.Context, userID primitive.ObjectID) (int64, error)
	FollowerCounts(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error)
}

type Feedbacks interface {
	CreateFeedback(ctx context.Context, f *models.Feedback) error
	ListFeedback(ctx context.Context) ([]models.FeedbackView, error)
}

type Stats interface {
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

type PushSubscriptions interface {
	SaveSubscription(ctx context.Context, s *models.PushSubscription) error
	SubscriptionsFor(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Store bundles every collection the API touches.
type Store interface {
	Users
	Posts
	Comments
	Follows
	Feedbacks
	Stats
	PushSubscriptions
}

const (
	DashboardTopN    = 5
	DashboardRecentN = 5
)
