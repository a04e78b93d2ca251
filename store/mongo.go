package store

import (
	"context"
	"errors"
	"log"
	"time"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Store on a MongoDB database.
type Mongo struct {
	client    *mongo.Client
	users     *mongo.Collection
	posts     *mongo.Collection
	comments  *mongo.Collection
	follows   *mongo.Collection
	feedbacks *mongo.Collection
	pushSubs  *mongo.Collection

	// transactions wraps multi-document writes in a session transaction.
	// Requires a replica set.
	transactions bool
}

var _ Store = (*Mongo)(nil)

func NewMongo(db *mongo.Database, transactions bool) *Mongo {
	return &Mongo{
		client:       db.Client(),
		users:        db.Collection(colUsers),
		posts:        db.Collection(colPosts),
		comments:     db.Collection(colComments),
		follows:      db.Collection(colFollows),
		feedbacks:    db.Collection(colFeedbacks),
		pushSubs:     db.Collection(colPushSubs),
		transactions: transactions,
	}
}

// EnsureIndexes creates the unique constraints and the indexes the feed
// queries rely on. Safe to call on every start.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		m.users: {
			{Keys: bson.D{{"email", 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{"role", 1}, {"createdAt", -1}}},
		},
		m.posts: {
			{Keys: bson.D{{"isDeleted", 1}, {"createdAt", -1}}},
			{Keys: bson.D{{"user", 1}, {"createdAt", -1}}},
		},
		m.comments: {
			{Keys: bson.D{{"post", 1}, {"createdAt", -1}}},
		},
		m.follows: {
			{Keys: bson.D{{"follower", 1}, {"following", 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{"following", 1}}},
		},
		m.feedbacks: {
			{Keys: bson.D{{"createdAt", -1}}},
		},
		m.pushSubs: {
			{Keys: bson.D{{"sub.endpoint", 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{"userId", 1}}},
		},
	}
	for coll, idx := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return err
		}
		log.Printf("[store] indexes ready on %s", coll.Name())
	}
	return nil
}

// ===== USERS =====

func (m *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	_, err := m.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": email})
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := m.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *Mongo) UsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := m.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (m *Mongo) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now()}
	if upd.FullName != "" {
		set["fullName"] = upd.FullName
	}
	if upd.Email != "" {
		set["email"] = upd.Email
	}
	if upd.Bio != "" {
		set["bio"] = upd.Bio
	}
	if upd.Department != "" {
		set["department"] = upd.Department
	}
	if upd.ProfilePhoto != "" {
		set["profilePhoto"] = upd.ProfilePhoto
	}

	var user models.User
	err := m.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&user)
	switch {
	case mongo.IsDuplicateKeyError(err):
		return nil, ErrDuplicate
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &user, nil
}

func (m *Mongo) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"isActive": active, "updatedAt": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) TouchLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := m.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLogin": at}})
	return err
}

func (m *Mongo) CountActiveUsers(ctx context.Context) (int64, error) {
	return m.users.CountDocuments(ctx, bson.M{"isActive": true})
}

func (m *Mongo) UsersByRole(ctx context.Context, role string) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{"createdAt", -1}})
	cursor, err := m.users.Find(ctx, bson.M{"role": role}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// countBy runs a countByPipeline and folds it into a map.
func countBy(ctx context.Context, coll *mongo.Collection, field string, ids []primitive.ObjectID, extra bson.D) (map[primitive.ObjectID]int64, error) {
	out := make(map[primitive.ObjectID]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := coll.Aggregate(ctx, countByPipeline(field, ids, extra))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Count int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.Count
	}
	return out, nil
}
