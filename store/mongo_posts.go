package store

import (
	"context"
	"errors"
	"time"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *Mongo) CreatePost(ctx context.Context, p *models.Post) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Likes == nil {
		p.Likes = []primitive.ObjectID{}
	}
	_, err := m.posts.InsertOne(ctx, p)
	return err
}

func (m *Mongo) PostByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var post models.Post
	err := m.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (m *Mongo) ToggleLike(ctx context.Context, postID, userID primitive.ObjectID) ([]primitive.ObjectID, bool, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"likes": 1})

	var updated struct {
		Likes []primitive.ObjectID `bson:"likes"`
	}
	err := m.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": postID, "isDeleted": false},
		ToggleLikeUpdate(userID),
		opts,
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}

	liked := false
	for _, id := range updated.Likes {
		if id == userID {
			liked = true
			break
		}
	}
	if updated.Likes == nil {
		updated.Likes = []primitive.ObjectID{}
	}
	return updated.Likes, liked, nil
}

func (m *Mongo) SoftDeletePost(ctx context.Context, postID primitive.ObjectID) error {
	run := func(ctx context.Context) error {
		res, err := m.posts.UpdateOne(ctx,
			bson.M{"_id": postID},
			bson.M{"$set": bson.M{"isDeleted": true, "media": bson.A{}, "updatedAt": time.Now()}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		_, err = m.comments.DeleteMany(ctx, bson.M{"post": postID})
		return err
	}

	if !m.transactions {
		return run(ctx)
	}

	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, run(sessCtx)
	})
	return err
}

func (m *Mongo) PostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{"createdAt", -1}, {"_id", -1}})
	cursor, err := m.posts.Find(ctx, bson.M{"user": authorID, "isDeleted": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (m *Mongo) PostCounts(ctx context.Context, authorIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	return countBy(ctx, m.posts, "user", authorIDs, bson.D{{"isDeleted", false}})
}

func (m *Mongo) Explore(ctx context.Context, q ExploreQuery) ([]models.PostView, int64, error) {
	var total int64
	if q.Search != "" {
		cursor, err := m.posts.Aggregate(ctx, ExploreCountPipeline(q))
		if err != nil {
			return nil, 0, err
		}
		var rows []struct {
			Total int64 `bson:"total"`
		}
		if err := cursor.All(ctx, &rows); err != nil {
			return nil, 0, err
		}
		if len(rows) > 0 {
			total = rows[0].Total
		}
	} else {
		n, err := m.posts.CountDocuments(ctx, exploreFilter(q))
		if err != nil {
			return nil, 0, err
		}
		total = n
	}

	cursor, err := m.posts.Aggregate(ctx, ExplorePipeline(q))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	posts := []models.PostView{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (m *Mongo) Trending(ctx context.Context, since time.Time, limit int64) ([]models.PostView, error) {
	cursor, err := m.posts.Aggregate(ctx, TrendingPipeline(since, limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := []models.PostView{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}
