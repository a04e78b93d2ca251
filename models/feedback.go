package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MaxFeedbackLength = 5000

type Feedback struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User      primitive.ObjectID `bson:"user" json:"userId"`
	Type      string             `bson:"type" json:"type"`
	Message   string             `bson:"message" json:"message"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type FeedbackView struct {
	Feedback `bson:",inline"`
	Author   *Author `bson:"author,omitempty" json:"user"`
}

// Bucket is one bar of a histogram.
type Bucket struct {
	Key   string `bson:"_id" json:"name"`
	Count int64  `bson:"count" json:"value"`
}

// ActiveUser is a top-N entry ranked by post count.
type ActiveUser struct {
	ID         primitive.ObjectID `bson:"_id" json:"_id"`
	FullName   string             `bson:"fullName" json:"fullName"`
	PostsCount int64              `bson:"postsCount" json:"postsCount"`
}

// DashboardStats is the moderation dashboard summary.
type DashboardStats struct {
	TotalUsers      int64          `json:"totalUsers"`
	ActiveUsers     int64          `json:"activeUsers"`
	BlockedUsers    int64          `json:"blockedUsers"`
	TotalFeedback   int64          `json:"totalFeedback"`
	Departments     []Bucket       `json:"departmentDistribution"`
	FeedbackTypes   []Bucket       `json:"feedbackTypes"`
	TopUsers        []ActiveUser   `json:"userActivity"`
	RecentUsers     []Author       `json:"recentUsers"`
	RecentFeedbacks []FeedbackView `json:"recentFeedback"`
}
