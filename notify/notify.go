// Package notify fans activity events out to the people they concern.
// Delivery is best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"time"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EventPostLiked     = "post_liked"
	EventPostCommented = "post_commented"
	EventNewFollower   = "new_follower"
)

type Event struct {
	Type   string         `json:"type"`
	Actor  *models.Author `json:"actor"`
	PostID string         `json:"postId,omitempty"`
	Time   int64          `json:"time"`
}

func NewEvent(kind string, actor *models.Author, postID primitive.ObjectID) Event {
	ev := Event{Type: kind, Actor: actor, Time: time.Now().Unix()}
	if !postID.IsZero() {
		ev.PostID = postID.Hex()
	}
	return ev
}

// Title is the one-line text shown in a push notification.
func (e Event) Title() string {
	name := "Someone"
	if e.Actor != nil && e.Actor.FullName != "" {
		name = e.Actor.FullName
	}
	switch e.Type {
	case EventPostLiked:
		return name + " liked your post"
	case EventPostCommented:
		return name + " commented on your post"
	case EventNewFollower:
		return name + " started following you"
	}
	return name
}

type Notifier interface {
	Notify(ctx context.Context, userID primitive.ObjectID, ev Event)
}

// Multi delivers to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID primitive.ObjectID, ev Event) {
	for _, n := range m {
		n.Notify(ctx, userID, ev)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, primitive.ObjectID, Event) {}
