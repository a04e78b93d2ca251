package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MediaImage = "image"
	MediaVideo = "video"

	MaxPostMedia = 10
)

type Media struct {
	URL      string `bson:"url" json:"url"`
	PublicID string `bson:"publicId,omitempty" json:"publicId,omitempty"`
	Type     string `bson:"type" json:"type"`
}

type Post struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	User       primitive.ObjectID   `bson:"user" json:"userId"`
	Caption    string               `bson:"caption" json:"caption"`
	Department string               `bson:"department" json:"department"`
	Year       string               `bson:"year" json:"year"`
	Media      []Media              `bson:"media" json:"media"`
	Likes      []primitive.ObjectID `bson:"likes" json:"likes"`
	IsDeleted  bool                 `bson:"isDeleted" json:"-"`
	CreatedAt  time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// LikedBy reports whether userID is in the post's liker set.
func (p *Post) LikedBy(userID primitive.ObjectID) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// PostView is a post joined with its author, as returned by feed queries.
type PostView struct {
	Post       `bson:",inline"`
	Author     *Author `bson:"author,omitempty" json:"user"`
	LikesCount int     `bson:"likesCount,omitempty" json:"likesCount"`
}

// PostDetail is the single-post page: post, author and the newest comments.
type PostDetail struct {
	PostView
	Comments []CommentView `json:"comments"`
}

// PostSummary is the grid-cell projection used on profile pages.
type PostSummary struct {
	ID           primitive.ObjectID `json:"_id"`
	PrimaryImage *string            `json:"primaryImage"`
	ImageCount   int                `json:"imageCount"`
	Likes        int                `json:"likes"`
	Comments     int64              `json:"comments"`
	IsLiked      bool               `json:"isLiked"`
}

// Summarize reduces a post to its grid projection for the given viewer.
func (p *Post) Summarize(viewer primitive.ObjectID, comments int64) PostSummary {
	s := PostSummary{
		ID:         p.ID,
		ImageCount: len(p.Media),
		Likes:      len(p.Likes),
		Comments:   comments,
		IsLiked:    p.LikedBy(viewer),
	}
	if len(p.Media) > 0 {
		url := p.Media[0].URL
		s.PrimaryImage = &url
	}
	return s
}
