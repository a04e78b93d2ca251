package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MaxCommentLength = 1000

type Comment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Post      primitive.ObjectID `bson:"post" json:"postId"`
	User      primitive.ObjectID `bson:"user" json:"userId"`
	Text      string             `bson:"text" json:"text"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type CommentView struct {
	Comment `bson:",inline"`
	Author  *Author `bson:"author,omitempty" json:"user"`
}
