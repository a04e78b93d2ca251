package store

import (
	"context"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ===== COMMENTS =====

func (m *Mongo) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	_, err := m.comments.InsertOne(ctx, c)
	return err
}

func (m *Mongo) CommentsForPost(ctx context.Context, postID primitive.ObjectID, skip, limit int64) ([]models.CommentView, int64, error) {
	total, err := m.comments.CountDocuments(ctx, bson.M{"post": postID})
	if err != nil {
		return nil, 0, err
	}

	cursor, err := m.comments.Aggregate(ctx, CommentsPipeline(postID, skip, limit))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	comments := []models.CommentView{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (m *Mongo) CommentCounts(ctx context.Context, postIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	return countBy(ctx, m.comments, "post", postIDs, nil)
}

// ===== FOLLOWS =====

func (m *Mongo) CreateFollow(ctx context.Context, f *models.Follow) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	_, err := m.follows.InsertOne(ctx, f)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) DeleteFollow(ctx context.Context, follower, following primitive.ObjectID) (bool, error) {
	res, err := m.follows.DeleteOne(ctx, bson.M{"follower": follower, "following": following})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) IsFollowing(ctx context.Context, follower, following primitive.ObjectID) (bool, error) {
	n, err := m.follows.CountDocuments(ctx, bson.M{"follower": follower, "following": following},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *Mongo) FollowerIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	return m.edgeEnds(ctx, bson.M{"following": userID}, "follower")
}

func (m *Mongo) FollowingIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	return m.edgeEnds(ctx, bson.M{"follower": userID}, "following")
}

// edgeEnds returns the given end of every follow edge matching filter,
// oldest edge first.
func (m *Mongo) edgeEnds(ctx context.Context, filter bson.M, end string) ([]primitive.ObjectID, error) {
	opts := options.Find().
		SetSort(bson.D{{"createdAt", 1}, {"_id", 1}}).
		SetProjection(bson.M{end: 1})
	cursor, err := m.follows.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var edges []models.Follow
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(edges))
	for _, e := range edges {
		if end == "follower" {
			ids = append(ids, e.Follower)
		} else {
			ids = append(ids, e.Following)
		}
	}
	return ids, nil
}

func (m *Mongo) CountFollowers(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return m.follows.CountDocuments(ctx, bson.M{"following": userID})
}

func (m *Mongo) CountFollowing(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return m.follows.CountDocuments(ctx, bson.M{"follower": userID})
}

func (m *Mongo) FollowerCounts(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	return countBy(ctx, m.follows, "following", userIDs, nil)
}
