package store

import (
	"context"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ===== FEEDBACK =====

func (m *Mongo) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	_, err := m.feedbacks.InsertOne(ctx, f)
	return err
}

func (m *Mongo) ListFeedback(ctx context.Context) ([]models.FeedbackView, error) {
	return m.feedbackViews(ctx, 0)
}

func (m *Mongo) feedbackViews(ctx context.Context, limit int64) ([]models.FeedbackView, error) {
	cursor, err := m.feedbacks.Aggregate(ctx, FeedbackPipeline(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.FeedbackView{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ===== DASHBOARD =====

func (m *Mongo) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	cursor, err := m.users.Aggregate(ctx, UserStatsPipeline(DashboardRecentN))
	if err != nil {
		return nil, err
	}
	var facets []struct {
		Totals []struct {
			Total  int64 `bson:"total"`
			Active int64 `bson:"active"`
		} `bson:"totals"`
		Departments []models.Bucket `bson:"departments"`
		Recent      []models.Author `bson:"recent"`
	}
	if err := cursor.All(ctx, &facets); err != nil {
		return nil, err
	}
	if len(facets) > 0 {
		f := facets[0]
		if len(f.Totals) > 0 {
			stats.TotalUsers = f.Totals[0].Total
			stats.ActiveUsers = f.Totals[0].Active
			stats.BlockedUsers = stats.TotalUsers - stats.ActiveUsers
		}
		stats.Departments = f.Departments
		stats.RecentUsers = f.Recent
	}

	if stats.FeedbackTypes, err = aggregateAll[models.Bucket](ctx, m.feedbacks, FeedbackTypesPipeline()); err != nil {
		return nil, err
	}
	for _, b := range stats.FeedbackTypes {
		stats.TotalFeedback += b.Count
	}

	if stats.TopUsers, err = aggregateAll[models.ActiveUser](ctx, m.posts, TopPostersPipeline(DashboardTopN)); err != nil {
		return nil, err
	}
	if stats.RecentFeedbacks, err = m.feedbackViews(ctx, DashboardRecentN); err != nil {
		return nil, err
	}

	if stats.Departments == nil {
		stats.Departments = []models.Bucket{}
	}
	if stats.RecentUsers == nil {
		stats.RecentUsers = []models.Author{}
	}
	return stats, nil
}

func aggregateAll[T any](ctx context.Context, coll *mongo.Collection, p mongo.Pipeline) ([]T, error) {
	cursor, err := coll.Aggregate(ctx, p)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ===== PUSH SUBSCRIPTIONS =====

// SaveSubscription upserts by endpoint, so a browser re-subscribing moves
// its endpoint to whoever is logged in now.
func (m *Mongo) SaveSubscription(ctx context.Context, s *models.PushSubscription) error {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	_, err := m.pushSubs.UpdateOne(ctx,
		bson.M{"sub.endpoint": s.Sub.Endpoint},
		bson.M{
			"$set":         bson.M{"userId": s.UserID, "sub": s.Sub},
			"$setOnInsert": bson.M{"_id": s.ID, "createdAt": s.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) SubscriptionsFor(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error) {
	cursor, err := m.pushSubs.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []models.PushSubscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (m *Mongo) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := m.pushSubs.DeleteOne(ctx, bson.M{"sub.endpoint": endpoint})
	return err
}
