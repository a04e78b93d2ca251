package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"campussnap/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store with the same observable behavior as Mongo.
// Used by tests and by STORE_DRIVER=memory.
type Memory struct {
	mu        sync.RWMutex
	users     map[primitive.ObjectID]*models.User
	posts     map[primitive.ObjectID]*models.Post
	comments  []models.Comment
	follows   []models.Follow
	feedbacks []models.Feedback
	subs      map[string]models.PushSubscription
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users: make(map[primitive.ObjectID]*models.User),
		posts: make(map[primitive.ObjectID]*models.Post),
		subs:  make(map[string]models.PushSubscription),
	}
}

// newer reports whether (a, aID) sorts before (b, bID) newest-first.
func newer(a time.Time, aID primitive.ObjectID, b time.Time, bID primitive.ObjectID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return bytes.Compare(aID[:], bID[:]) > 0
}

func page[T any](items []T, skip, limit int64) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= int64(len(items)) {
		return []T{}
	}
	end := int64(len(items))
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return items[skip:end]
}

func clonePost(p *models.Post) models.Post {
	cp := *p
	cp.Likes = append([]primitive.ObjectID{}, p.Likes...)
	cp.Media = append([]models.Media{}, p.Media...)
	return cp
}

// ===== USERS =====

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(u.Email, primitive.NilObjectID) {
		return ErrDuplicate
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) emailTaken(email string, except primitive.ObjectID) bool {
	for id, u := range m.users {
		if u.Email == email && id != except {
			return true
		}
	}
	return false
}

func (m *Memory) UserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UsersByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[primitive.ObjectID]models.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (m *Memory) UpdateProfile(_ context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Email != "" && m.emailTaken(upd.Email, id) {
		return nil, ErrDuplicate
	}
	if upd.FullName != "" {
		u.FullName = upd.FullName
	}
	if upd.Email != "" {
		u.Email = upd.Email
	}
	if upd.Bio != "" {
		u.Bio = upd.Bio
	}
	if upd.Department != "" {
		u.Department = upd.Department
	}
	if upd.ProfilePhoto != "" {
		u.ProfilePhoto = upd.ProfilePhoto
	}
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *Memory) SetActive(_ context.Context, id primitive.ObjectID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) TouchLastLogin(_ context.Context, id primitive.ObjectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *Memory) CountActiveUsers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, u := range m.users {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UsersByRole(_ context.Context, role string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.User{}
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

// ===== POSTS =====

func (m *Memory) CreatePost(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Likes == nil {
		p.Likes = []primitive.ObjectID{}
	}
	cp := clonePost(p)
	m.posts[p.ID] = &cp
	return nil
}

func (m *Memory) PostByID(_ context.Context, id primitive.ObjectID) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := clonePost(p)
	return &cp, nil
}

func (m *Memory) ToggleLike(_ context.Context, postID, userID primitive.ObjectID) ([]primitive.ObjectID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok || p.IsDeleted {
		return nil, false, ErrNotFound
	}
	liked := true
	for i, id := range p.Likes {
		if id == userID {
			p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
			liked = false
			break
		}
	}
	if liked {
		p.Likes = append(p.Likes, userID)
	}
	return append([]primitive.ObjectID{}, p.Likes...), liked, nil
}

func (m *Memory) SoftDeletePost(_ context.Context, postID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.IsDeleted = true
	p.Media = []models.Media{}
	p.UpdatedAt = time.Now()

	kept := m.comments[:0]
	for _, c := range m.comments {
		if c.Post != postID {
			kept = append(kept, c)
		}
	}
	m.comments = kept
	return nil
}

// livePosts returns non-deleted posts matching keep, newest first. Caller holds the lock.
func (m *Memory) livePosts(keep func(*models.Post) bool) []*models.Post {
	out := []*models.Post{}
	for _, p := range m.posts {
		if !p.IsDeleted && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out
}

func (m *Memory) view(p *models.Post) models.PostView {
	v := models.PostView{Post: clonePost(p), LikesCount: len(p.Likes)}
	if u, ok := m.users[p.User]; ok {
		v.Author = u.Author()
	}
	return v
}

func (m *Memory) PostsByAuthor(_ context.Context, authorID primitive.ObjectID) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Post{}
	for _, p := range m.livePosts(func(p *models.Post) bool { return p.User == authorID }) {
		out = append(out, clonePost(p))
	}
	return out, nil
}

func (m *Memory) PostCounts(_ context.Context, authorIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := idSet(authorIDs)
	out := make(map[primitive.ObjectID]int64, len(authorIDs))
	for _, p := range m.posts {
		if !p.IsDeleted && want[p.User] {
			out[p.User]++
		}
	}
	return out, nil
}

func (m *Memory) Explore(_ context.Context, q ExploreQuery) ([]models.PostView, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(q.Search)
	matches := m.livePosts(func(p *models.Post) bool {
		if q.Department != "" && p.Department != q.Department {
			return false
		}
		if q.Year != "" && p.Year != q.Year {
			return false
		}
		if needle == "" {
			return true
		}
		if strings.Contains(strings.ToLower(p.Caption), needle) {
			return true
		}
		u, ok := m.users[p.User]
		return ok && strings.Contains(strings.ToLower(u.FullName), needle)
	})

	out := []models.PostView{}
	for _, p := range page(matches, q.Skip, q.Limit) {
		out = append(out, m.view(p))
	}
	return out, int64(len(matches)), nil
}

func (m *Memory) Trending(_ context.Context, since time.Time, limit int64) ([]models.PostView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recent := m.livePosts(func(p *models.Post) bool { return !p.CreatedAt.Before(since) })
	sort.SliceStable(recent, func(i, j int) bool {
		return len(recent[i].Likes) > len(recent[j].Likes)
	})

	out := []models.PostView{}
	for _, p := range page(recent, 0, limit) {
		out = append(out, m.view(p))
	}
	return out, nil
}

// ===== COMMENTS =====

func (m *Memory) CreateComment(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	m.comments = append(m.comments, *c)
	return nil
}

func (m *Memory) CommentsForPost(_ context.Context, postID primitive.ObjectID, skip, limit int64) ([]models.CommentView, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := []models.Comment{}
	for _, c := range m.comments {
		if c.Post == postID {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return newer(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID)
	})

	out := []models.CommentView{}
	for _, c := range page(all, skip, limit) {
		v := models.CommentView{Comment: c}
		if u, ok := m.users[c.User]; ok {
			v.Author = u.Author()
		}
		out = append(out, v)
	}
	return out, int64(len(all)), nil
}

func (m *Memory) CommentCounts(_ context.Context, postIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := idSet(postIDs)
	out := make(map[primitive.ObjectID]int64, len(postIDs))
	for _, c := range m.comments {
		if want[c.Post] {
			out[c.Post]++
		}
	}
	return out, nil
}

// ===== FOLLOWS =====

func (m *Memory) CreateFollow(_ context.Context, f *models.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.follows {
		if e.Follower == f.Follower && e.Following == f.Following {
			return ErrDuplicate
		}
	}
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	m.follows = append(m.follows, *f)
	return nil
}

func (m *Memory) DeleteFollow(_ context.Context, follower, following primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.follows {
		if e.Follower == follower && e.Following == following {
			m.follows = append(m.follows[:i], m.follows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) IsFollowing(_ context.Context, follower, following primitive.ObjectID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.follows {
		if e.Follower == follower && e.Following == following {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FollowerIDs(_ context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []primitive.ObjectID{}
	for _, e := range m.follows {
		if e.Following == userID {
			ids = append(ids, e.Follower)
		}
	}
	return ids, nil
}

func (m *Memory) FollowingIDs(_ context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []primitive.ObjectID{}
	for _, e := range m.follows {
		if e.Follower == userID {
			ids = append(ids, e.Following)
		}
	}
	return ids, nil
}

func (m *Memory) CountFollowers(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	ids, err := m.FollowerIDs(ctx, userID)
	return int64(len(ids)), err
}

func (m *Memory) CountFollowing(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	ids, err := m.FollowingIDs(ctx, userID)
	return int64(len(ids)), err
}

func (m *Memory) FollowerCounts(_ context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := idSet(userIDs)
	out := make(map[primitive.ObjectID]int64, len(userIDs))
	for _, e := range m.follows {
		if want[e.Following] {
			out[e.Following]++
		}
	}
	return out, nil
}

// ===== FEEDBACK =====

func (m *Memory) CreateFeedback(_ context.Context, f *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	m.feedbacks = append(m.feedbacks, *f)
	return nil
}

func (m *Memory) ListFeedback(_ context.Context) ([]models.FeedbackView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feedbackViews(0), nil
}

func (m *Memory) feedbackViews(limit int64) []models.FeedbackView {
	all := append([]models.Feedback{}, m.feedbacks...)
	sort.Slice(all, func(i, j int) bool {
		return newer(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID)
	})
	out := []models.FeedbackView{}
	for _, f := range page(all, 0, limit) {
		v := models.FeedbackView{Feedback: f}
		if u, ok := m.users[f.User]; ok {
			v.Author = &models.Author{ID: u.ID, FullName: u.FullName, Email: u.Email, ProfilePhoto: u.ProfilePhoto}
		}
		out = append(out, v)
	}
	return out
}

// ===== DASHBOARD =====

func (m *Memory) DashboardStats(_ context.Context) (*models.DashboardStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &models.DashboardStats{}

	depts := map[string]int64{}
	regular := []*models.User{}
	for _, u := range m.users {
		if u.Role != models.RoleUser {
			continue
		}
		regular = append(regular, u)
		stats.TotalUsers++
		if u.IsActive {
			stats.ActiveUsers++
		}
		d := u.Department
		if d == "" {
			d = UnassignedDepartment
		}
		depts[d]++
	}
	stats.BlockedUsers = stats.TotalUsers - stats.ActiveUsers
	stats.Departments = buckets(depts)

	sort.Slice(regular, func(i, j int) bool {
		return newer(regular[i].CreatedAt, regular[i].ID, regular[j].CreatedAt, regular[j].ID)
	})
	stats.RecentUsers = []models.Author{}
	for _, u := range page(regular, 0, DashboardRecentN) {
		stats.RecentUsers = append(stats.RecentUsers, models.Author{ID: u.ID, FullName: u.FullName, Email: u.Email, ProfilePhoto: u.ProfilePhoto})
	}

	types := map[string]int64{}
	for _, f := range m.feedbacks {
		types[f.Type]++
		stats.TotalFeedback++
	}
	stats.FeedbackTypes = buckets(types)

	posters := map[primitive.ObjectID]int64{}
	for _, p := range m.posts {
		if !p.IsDeleted {
			posters[p.User]++
		}
	}
	stats.TopUsers = []models.ActiveUser{}
	for id, n := range posters {
		row := models.ActiveUser{ID: id, PostsCount: n}
		if u, ok := m.users[id]; ok {
			row.FullName = u.FullName
		}
		stats.TopUsers = append(stats.TopUsers, row)
	}
	sort.Slice(stats.TopUsers, func(i, j int) bool {
		a, b := stats.TopUsers[i], stats.TopUsers[j]
		if a.PostsCount != b.PostsCount {
			return a.PostsCount > b.PostsCount
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	stats.TopUsers = page(stats.TopUsers, 0, DashboardTopN)

	stats.RecentFeedbacks = m.feedbackViews(DashboardRecentN)
	return stats, nil
}

// buckets sorts counts by count desc, then key asc.
func buckets(counts map[string]int64) []models.Bucket {
	out := make([]models.Bucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.Bucket{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ===== PUSH SUBSCRIPTIONS =====

func (m *Memory) SaveSubscription(_ context.Context, s *models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.subs[s.Sub.Endpoint]; ok {
		existing.UserID = s.UserID
		existing.Sub = s.Sub
		m.subs[s.Sub.Endpoint] = existing
		return nil
	}
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	m.subs[s.Sub.Endpoint] = *s
	return nil
}

func (m *Memory) SubscriptionsFor(_ context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PushSubscription
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, endpoint)
	return nil
}

func idSet(ids []primitive.ObjectID) map[primitive.ObjectID]bool {
	set := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
