package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	FullName     string             `bson:"fullName" json:"fullName"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	Role         string             `bson:"role" json:"role"`
	Department   string             `bson:"department" json:"department"`
	Bio          string             `bson:"bio" json:"bio"`
	ProfilePhoto string             `bson:"profilePhoto" json:"profilePhoto"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	LastLogin    *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Author is the small user projection embedded in posts, comments and listings.
type Author struct {
	ID           primitive.ObjectID `bson:"_id" json:"_id"`
	FullName     string             `bson:"fullName" json:"fullName"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	ProfilePhoto string             `bson:"profilePhoto" json:"profilePhoto"`
}

func (u *User) Author() *Author {
	return &Author{ID: u.ID, FullName: u.FullName, ProfilePhoto: u.ProfilePhoto}
}

// ProfileUpdate carries the optional fields of an updateProfile call.
// Empty strings mean "leave unchanged".
type ProfileUpdate struct {
	FullName     string
	Email        string
	Bio          string
	Department   string
	ProfilePhoto string
}

func (p ProfileUpdate) Empty() bool {
	return p.FullName == "" && p.Email == "" && p.Bio == "" && p.Department == "" && p.ProfilePhoto == ""
}

// FollowRow is one entry of a follower/following listing.
type FollowRow struct {
	ID           primitive.ObjectID `json:"_id"`
	FullName     string             `json:"fullName"`
	ProfilePhoto string             `json:"profilePhoto"`
	IsFollowing  bool               `json:"isFollowing"`
}

// AdminUserRow is a user as shown on the moderation screen.
type AdminUserRow struct {
	ID             primitive.ObjectID `json:"_id"`
	FullName       string             `json:"fullName"`
	Email          string             `json:"email"`
	Department     string             `json:"department"`
	Bio            string             `json:"bio"`
	ProfilePhoto   string             `json:"profilePhoto"`
	IsActive       bool               `json:"isActive"`
	FollowersCount int64              `json:"followersCount"`
	PostsCount     int64              `json:"postsCount"`
	CreatedAt      time.Time          `json:"createdAt"`
}
