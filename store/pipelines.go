package store

import (
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	colUsers     = "users"
	colPosts     = "posts"
	colComments  = "comments"
	colFollows   = "follows"
	colFeedbacks = "feedbacks"
	colPushSubs  = "push_subscriptions"
)

// lookupAuthor joins the document's "user" field against users, keeping only
// the listed fields, into "author".
func lookupAuthor(fields ...string) bson.D {
	proj := bson.D{}
	for _, f := range fields {
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	return bson.D{{"$lookup", bson.D{
		{"from", colUsers},
		{"let", bson.D{{"uid", "$user"}}},
		{"pipeline", bson.A{
			bson.D{{"$match", bson.D{{"$expr", bson.D{{"$eq", bson.A{"$_id", "$$uid"}}}}}}},
			bson.D{{"$project", proj}},
		}},
		{"as", "author"},
	}}}
}

func unwindAuthor() bson.D {
	return bson.D{{"$unwind", bson.D{
		{"path", "$author"},
		{"preserveNullAndEmptyArrays", true},
	}}}
}

func newestFirst() bson.D {
	return bson.D{{"$sort", bson.D{{"createdAt", -1}, {"_id", -1}}}}
}

func exploreFilter(q ExploreQuery) bson.D {
	filter := bson.D{{"isDeleted", false}}
	if q.Department != "" {
		filter = append(filter, bson.E{Key: "department", Value: q.Department})
	}
	if q.Year != "" {
		filter = append(filter, bson.E{Key: "year", Value: q.Year})
	}
	return filter
}

// searchMatch matches caption or author name as a case-insensitive substring.
// The user's text is escaped so it is never interpreted as a pattern.
func searchMatch(search string) bson.D {
	re := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
	return bson.D{{"$match", bson.D{{"$or", bson.A{
		bson.D{{"caption", re}},
		bson.D{{"author.fullName", re}},
	}}}}}
}

// ExplorePipeline builds the explore listing. Without a search term the page
// is cut before the author join so only returned posts are joined.
func ExplorePipeline(q ExploreQuery) mongo.Pipeline {
	p := mongo.Pipeline{{{"$match", exploreFilter(q)}}}
	page := []bson.D{newestFirst(), {{"$skip", q.Skip}}, {{"$limit", q.Limit}}}

	if q.Search != "" {
		p = append(p, lookupAuthor("fullName", "profilePhoto"), unwindAuthor(), searchMatch(q.Search))
		p = append(p, page...)
		return append(p, withLikesCount())
	}
	p = append(p, page...)
	return append(p, lookupAuthor("fullName", "profilePhoto"), unwindAuthor(), withLikesCount())
}

func withLikesCount() bson.D {
	return bson.D{{"$addFields", bson.D{{"likesCount", bson.D{{"$size", bson.D{{"$ifNull", bson.A{"$likes", bson.A{}}}}}}}}}}
}

// ExploreCountPipeline counts the search matches. Counting has to happen after
// the join because the search spans the author's name.
func ExploreCountPipeline(q ExploreQuery) mongo.Pipeline {
	return mongo.Pipeline{
		{{"$match", exploreFilter(q)}},
		lookupAuthor("fullName"),
		unwindAuthor(),
		searchMatch(q.Search),
		{{"$count", "total"}},
	}
}

// TrendingPipeline ranks recent posts by like count.
func TrendingPipeline(since time.Time, limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{"$match", bson.D{
			{"isDeleted", false},
			{"createdAt", bson.D{{"$gte", since}}},
		}}},
		withLikesCount(),
		{{"$sort", bson.D{{"likesCount", -1}, {"createdAt", -1}}}},
		{{"$limit", limit}},
		lookupAuthor("fullName", "profilePhoto"),
		unwindAuthor(),
	}
}

// ToggleLikeUpdate is a pipeline update that removes userID from likes when
// present and appends it otherwise, in one atomic document write.
func ToggleLikeUpdate(userID primitive.ObjectID) mongo.Pipeline {
	likes := bson.D{{"$ifNull", bson.A{"$likes", bson.A{}}}}
	return mongo.Pipeline{
		{{"$set", bson.D{{"likes", bson.D{{"$cond", bson.A{
			bson.D{{"$in", bson.A{userID, likes}}},
			bson.D{{"$setDifference", bson.A{likes, bson.A{userID}}}},
			bson.D{{"$concatArrays", bson.A{likes, bson.A{userID}}}},
		}}}}}}},
	}
}

func CommentsPipeline(postID primitive.ObjectID, skip, limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{"$match", bson.D{{"post", postID}}}},
		newestFirst(),
		{{"$skip", skip}},
		{{"$limit", limit}},
		lookupAuthor("fullName", "profilePhoto"),
		unwindAuthor(),
	}
}

// countByPipeline groups documents whose field is in ids and counts them per id.
func countByPipeline(field string, ids []primitive.ObjectID, extra bson.D) mongo.Pipeline {
	match := bson.D{{field, bson.D{{"$in", ids}}}}
	match = append(match, extra...)
	return mongo.Pipeline{
		{{"$match", match}},
		{{"$group", bson.D{{"_id", "$" + field}, {"count", bson.D{{"$sum", 1}}}}}},
	}
}

func FeedbackPipeline(limit int64) mongo.Pipeline {
	p := mongo.Pipeline{newestFirst()}
	if limit > 0 {
		p = append(p, bson.D{{"$limit", limit}})
	}
	return append(p, lookupAuthor("fullName", "email", "profilePhoto"), unwindAuthor())
}

// UserStatsPipeline summarizes non-admin users in a single pass.
func UserStatsPipeline(recent int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{"$match", bson.D{{"role", "user"}}}},
		{{"$facet", bson.D{
			{"totals", bson.A{
				bson.D{{"$group", bson.D{
					{"_id", nil},
					{"total", bson.D{{"$sum", 1}}},
					{"active", bson.D{{"$sum", bson.D{{"$cond", bson.A{"$isActive", 1, 0}}}}}},
				}}},
			}},
			{"departments", bson.A{
				bson.D{{"$group", bson.D{
					{"_id", bson.D{{"$cond", bson.A{bson.D{{"$gt", bson.A{"$department", ""}}}, "$department", UnassignedDepartment}}}},
					{"count", bson.D{{"$sum", 1}}},
				}}},
				bson.D{{"$sort", bson.D{{"count", -1}, {"_id", 1}}}},
			}},
			{"recent", bson.A{
				bson.D{{"$sort", bson.D{{"createdAt", -1}, {"_id", -1}}}},
				bson.D{{"$limit", recent}},
				bson.D{{"$project", bson.D{{"fullName", 1}, {"email", 1}, {"profilePhoto", 1}}}},
			}},
		}}},
	}
}

func FeedbackTypesPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{"$group", bson.D{{"_id", "$type"}, {"count", bson.D{{"$sum", 1}}}}}},
		{{"$sort", bson.D{{"count", -1}, {"_id", 1}}}},
	}
}

// TopPostersPipeline ranks authors by live post count.
func TopPostersPipeline(limit int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{"$match", bson.D{{"isDeleted", false}}}},
		{{"$group", bson.D{{"_id", "$user"}, {"postsCount", bson.D{{"$sum", 1}}}}}},
		{{"$sort", bson.D{{"postsCount", -1}, {"_id", 1}}}},
		{{"$limit", limit}},
		{{"$lookup", bson.D{
			{"from", colUsers},
			{"localField", "_id"},
			{"foreignField", "_id"},
			{"as", "author"},
		}}},
		unwindAuthor(),
		{{"$project", bson.D{{"postsCount", 1}, {"fullName", "$author.fullName"}}}},
	}
}

const UnassignedDepartment = "Unassigned"
