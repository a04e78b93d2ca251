package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"campussnap/handlers"
	"campussnap/media"
	"campussnap/middleware"
	"campussnap/models"
	"campussnap/notify"
	"campussnap/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

// 1x1 PNG header, enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type delivered struct {
	userID primitive.ObjectID
	ev     notify.Event
}

type recorder struct {
	mu     sync.Mutex
	events []delivered
}

func (r *recorder) Notify(_ context.Context, userID primitive.ObjectID, ev notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, delivered{userID, ev})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivered(nil), r.events...)
}

// waitFor polls until n events arrived; delivery is asynchronous.
func (r *recorder) waitFor(t *testing.T, n int) []delivered {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d notifications, got %d", n, len(r.snapshot()))
	return nil
}

type env struct {
	router *gin.Engine
	store  *store.Memory
	media  *media.Memory
	notes  *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, func(m *store.Memory) store.Store { return m })
}

// newEnvWith lets a test put a wrapper in front of the memory store.
func newEnvWith(t *testing.T, wrap func(*store.Memory) store.Store) *env {
	t.Helper()
	e := &env{store: store.NewMemory(), media: media.NewMemory(), notes: &recorder{}}
	tokens := middleware.NewTokens(testSecret)
	h := handlers.New(handlers.Options{
		Store:          wrap(e.store),
		Media:          e.media,
		Notifier:       e.notes,
		Tokens:         tokens,
		VAPIDPublicKey: "test-public-key",
	})
	e.router = SetupRouter(h, Deps{
		Tokens:      tokens,
		Users:       e.store,
		CORSOrigins: []string{"http://localhost:5173"},
	})
	return e
}

func (e *env) do(method, path string, body io.Reader, contentType string, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session != nil {
		req.AddCookie(session)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) json(method, path string, payload any, session *http.Cookie) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	return e.do(method, path, body, "application/json", session)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) map[string]any {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d: %s", w.Code, want, w.Body.String())
	}
	return decode(t, w)
}

type account struct {
	id      primitive.ObjectID
	session *http.Cookie
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middleware.CookieName {
			return ck
		}
	}
	t.Fatalf("no %s cookie in %v", middleware.CookieName, w.Header())
	return nil
}

func (e *env) login(t *testing.T, email, password string) account {
	t.Helper()
	w := e.json(http.MethodPost, "/api/v1/login", gin.H{"email": email, "password": password}, nil)
	body := expectStatus(t, w, http.StatusOK)
	user := body["user"].(map[string]any)
	id, err := primitive.ObjectIDFromHex(user["_id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	return account{id: id, session: sessionCookie(t, w)}
}

// signup registers through the API and logs in.
func (e *env) signup(t *testing.T, name string) account {
	t.Helper()
	email := strings.ToLower(name) + "@x.edu"
	w := e.json(http.MethodPost, "/api/v1/register", gin.H{"fullName": name, "email": email, "password": "pw123456"}, nil)
	expectStatus(t, w, http.StatusCreated)
	return e.login(t, email, "pw123456")
}

// seedAdmin inserts an administrator directly; there is no API to promote users.
func (e *env) seedAdmin(t *testing.T) account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("adminpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u := &models.User{
		FullName:     "Admin",
		Email:        "admin@x.edu",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return e.login(t, "admin@x.edu", "adminpass")
}

func postForm(t *testing.T, fields map[string]string, files int) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < files; i++ {
		fw, err := mw.CreateFormFile("media", fmt.Sprintf("img%d.png", i))
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(pngBytes)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// profileForm builds a multipart body with one image in the "file" part.
func profileForm(t *testing.T, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", "me.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(pngBytes)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *env) createPost(t *testing.T, a account, caption string) string {
	t.Helper()
	body, ct := postForm(t, map[string]string{"caption": caption, "department": "CSE", "year": "2nd"}, 1)
	resp := expectStatus(t, e.do(http.MethodPost, "/api/v1/post/create", body, ct, a.session), http.StatusCreated)
	return resp["post"].(map[string]any)["_id"].(string)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.do(http.MethodGet, "/health", nil, "", nil), http.StatusOK)

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/nope", nil, "", nil), http.StatusNotFound)
	if body["success"] != false || body["path"] != "/api/v1/nope" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPanicAnswersWithEnvelope(t *testing.T) {
	e := newEnv(t)
	e.router.GET("/boom", func(*gin.Context) { panic("nil map") })

	body := expectStatus(t, e.do(http.MethodGet, "/boom", nil, "", nil), http.StatusInternalServerError)
	if body["success"] != false || body["message"] != "Server error" {
		t.Fatalf("body = %v", body)
	}
	// the server keeps answering afterwards
	expectStatus(t, e.do(http.MethodGet, "/health", nil, "", nil), http.StatusOK)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "Alice")
	before, _ := e.store.CountActiveUsers(context.Background())

	w := e.json(http.MethodPost, "/api/v1/register", gin.H{"fullName": "Other", "email": "ALICE@x.edu", "password": "secret99"}, nil)
	body := expectStatus(t, w, http.StatusConflict)
	if body["message"] != "Email already used" {
		t.Fatalf("message = %v", body["message"])
	}
	after, _ := e.store.CountActiveUsers(context.Background())
	if after != before {
		t.Fatalf("user count changed from %d to %d", before, after)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		payload gin.H
		message string
	}{
		{gin.H{"email": "a@x.edu", "password": "pw123456"}, "fullName is required"},
		{gin.H{"fullName": "A", "email": "nope", "password": "pw123456"}, "Invalid email address"},
		{gin.H{"fullName": "A", "email": "a@x.edu", "password": "123"}, "password must be at least 6 characters"},
	}
	for _, tc := range cases {
		body := expectStatus(t, e.json(http.MethodPost, "/api/v1/register", tc.payload, nil), http.StatusBadRequest)
		if body["message"] != tc.message {
			t.Errorf("%v: message = %v, want %q", tc.payload, body["message"], tc.message)
		}
	}
}

func TestLoginCookieIdentifiesUser(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/register", gin.H{"fullName": "Alice", "email": "alice@x.edu", "password": "pw123456"}, nil), http.StatusCreated)

	w := e.json(http.MethodPost, "/api/v1/login", gin.H{"email": "Alice@X.edu", "password": "pw123456"}, nil)
	body := expectStatus(t, w, http.StatusOK)
	if strings.Contains(w.Body.String(), "password") || strings.Contains(w.Body.String(), "$2a$") {
		t.Fatalf("response leaks the password hash: %s", w.Body.String())
	}

	ck := sessionCookie(t, w)
	if !ck.HttpOnly {
		t.Fatal("session cookie is not httpOnly")
	}
	claims, err := middleware.NewTokens(testSecret).Parse(ck.Value)
	if err != nil {
		t.Fatal(err)
	}
	user := body["user"].(map[string]any)
	if claims.UserID != user["_id"] {
		t.Fatalf("cookie user %s, body user %v", claims.UserID, user["_id"])
	}
	if user["lastLogin"] == nil {
		t.Fatal("lastLogin not set")
	}
}

func TestLoginFailures(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "Alice")

	body := expectStatus(t, e.json(http.MethodPost, "/api/v1/login", gin.H{"email": "alice@x.edu", "password": "wrong"}, nil), http.StatusUnauthorized)
	if body["message"] != "Invalid credentials" {
		t.Fatalf("message = %v", body["message"])
	}
	expectStatus(t, e.json(http.MethodPost, "/api/v1/login", gin.H{"email": "ghost@x.edu", "password": "pw123456"}, nil), http.StatusUnauthorized)
	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/login", gin.H{"email": "alice@x.edu"}, nil), http.StatusBadRequest)
	if body["message"] != "Email and password required" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/v1/logout", nil, "", nil)
	expectStatus(t, w, http.StatusOK)
	if ck := sessionCookie(t, w); ck.MaxAge >= 0 || ck.Value != "" {
		t.Fatalf("cookie not cleared: %+v", ck)
	}
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/v1/explore", "/api/v1/ws", "/api/v1/user/" + primitive.NewObjectID().Hex()} {
		expectStatus(t, e.do(http.MethodGet, path, nil, "", nil), http.StatusUnauthorized)
	}
}

func TestAliceBobScenario(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	postID := e.createPost(t, alice, "hello campus")

	body := expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/like", nil, bob.session), http.StatusOK)
	if body["liked"] != true {
		t.Fatalf("liked = %v", body["liked"])
	}

	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+postID, nil, "", alice.session), http.StatusOK)
	post := body["post"].(map[string]any)
	likes := post["likes"].([]any)
	if len(likes) != 1 || likes[0] != bob.id.Hex() {
		t.Fatalf("likes = %v, want [%s]", likes, bob.id.Hex())
	}
	if comments, ok := post["comments"].([]any); !ok || len(comments) != 0 {
		t.Fatalf("comments = %v, want []", post["comments"])
	}
	if author := post["user"].(map[string]any); author["fullName"] != "Alice" {
		t.Fatalf("author = %v", author)
	}

	got := e.notes.waitFor(t, 1)
	if got[0].userID != alice.id || got[0].ev.Type != notify.EventPostLiked || got[0].ev.PostID != postID {
		t.Fatalf("unexpected notification %+v", got[0])
	}
}

func TestLikeToggleParity(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	postID := e.createPost(t, alice, "")

	for i := 1; i <= 5; i++ {
		body := expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/like", nil, bob.session), http.StatusOK)
		wantLiked := i%2 == 1
		if body["liked"] != wantLiked {
			t.Fatalf("after %d likes liked = %v", i, body["liked"])
		}
		wantLen := 0
		if wantLiked {
			wantLen = 1
		}
		if n := len(body["likes"].([]any)); n != wantLen {
			t.Fatalf("after %d likes len(likes) = %d", i, n)
		}
	}
	// Only likes notify, never unlikes.
	e.notes.waitFor(t, 3)
	time.Sleep(20 * time.Millisecond)
	if n := len(e.notes.snapshot()); n != 3 {
		t.Fatalf("notifications = %d, want 3", n)
	}
}

func TestLikeOwnPostDoesNotNotify(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	postID := e.createPost(t, alice, "")
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/like", nil, alice.session), http.StatusOK)
	time.Sleep(20 * time.Millisecond)
	if n := len(e.notes.snapshot()); n != 0 {
		t.Fatalf("self-like produced %d notifications", n)
	}
}

func TestCreatePostValidation(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")

	body, ct := postForm(t, map[string]string{"department": "CSE", "year": "2nd"}, 0)
	resp := expectStatus(t, e.do(http.MethodPost, "/api/v1/post/create", body, ct, alice.session), http.StatusBadRequest)
	if resp["message"] != "At least one photo is required" {
		t.Fatalf("message = %v", resp["message"])
	}

	body, ct = postForm(t, map[string]string{"department": "PHYSICS", "year": "2nd"}, 1)
	resp = expectStatus(t, e.do(http.MethodPost, "/api/v1/post/create", body, ct, alice.session), http.StatusBadRequest)
	if resp["message"] != "Invalid department" {
		t.Fatalf("message = %v", resp["message"])
	}

	body, ct = postForm(t, map[string]string{"department": "CSE", "year": "5th"}, 1)
	expectStatus(t, e.do(http.MethodPost, "/api/v1/post/create", body, ct, alice.session), http.StatusBadRequest)

	body, ct = postForm(t, map[string]string{"department": "CSE", "year": "2nd"}, models.MaxPostMedia+1)
	expectStatus(t, e.do(http.MethodPost, "/api/v1/post/create", body, ct, alice.session), http.StatusBadRequest)
}

func TestCreatePostUploadFailureSavesNothing(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	e.media.Fail(errors.New("cloud down"))

	body, ct := postForm(t, map[string]string{"department": "CSE", "year": "2nd"}, 2)
	resp := expectStatus(t, e.do(http.MethodPost, "/api/v1/post/create", body, ct, alice.session), http.StatusInternalServerError)
	if resp["message"] != "Server error" {
		t.Fatalf("message = %v", resp["message"])
	}

	e.media.Fail(nil)
	explore := expectStatus(t, e.do(http.MethodGet, "/api/v1/explore", nil, "", alice.session), http.StatusOK)
	if explore["total"].(float64) != 0 {
		t.Fatalf("total = %v", explore["total"])
	}
}

func TestSoftDeletedPostIsInvisible(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	postID := e.createPost(t, alice, "to be removed")

	created := expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+postID, nil, "", alice.session), http.StatusOK)
	publicID := created["post"].(map[string]any)["media"].([]any)[0].(map[string]any)["publicId"].(string)
	if !e.media.Has(publicID) {
		t.Fatalf("media %s not stored", publicID)
	}

	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/comment", gin.H{"text": "nice"}, bob.session), http.StatusCreated)

	body := expectStatus(t, e.do(http.MethodDelete, "/api/v1/post/"+postID, nil, "", bob.session), http.StatusForbidden)
	if body["message"] != "Unauthorized" {
		t.Fatalf("message = %v", body["message"])
	}

	expectStatus(t, e.do(http.MethodDelete, "/api/v1/post/"+postID, nil, "", alice.session), http.StatusOK)
	if e.media.Has(publicID) {
		t.Fatal("media survived post deletion")
	}

	expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+postID, nil, "", bob.session), http.StatusNotFound)
	expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+postID+"/comments", nil, "", bob.session), http.StatusNotFound)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/like", nil, bob.session), http.StatusNotFound)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/comment", gin.H{"text": "late"}, bob.session), http.StatusNotFound)
	expectStatus(t, e.do(http.MethodDelete, "/api/v1/post/"+postID, nil, "", alice.session), http.StatusNotFound)

	explore := expectStatus(t, e.do(http.MethodGet, "/api/v1/explore", nil, "", bob.session), http.StatusOK)
	if explore["total"].(float64) != 0 || len(explore["posts"].([]any)) != 0 {
		t.Fatalf("deleted post still explorable: %v", explore)
	}

	comments, _, err := e.store.CommentsForPost(context.Background(), mustID(t, postID), 0, 10)
	if err != nil || len(comments) != 0 {
		t.Fatalf("comments survived: %v %v", comments, err)
	}
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/post/not-an-id", nil, "", alice.session), http.StatusNotFound)
	if body["message"] != "Post not found" {
		t.Fatalf("message = %v", body["message"])
	}
	expectStatus(t, e.do(http.MethodGet, "/api/v1/user/xyz", nil, "", alice.session), http.StatusNotFound)
}

func mustID(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestComments(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	postID := e.createPost(t, alice, "")
	path := "/api/v1/post/" + postID + "/comment"

	body := expectStatus(t, e.json(http.MethodPost, path, gin.H{"text": "   "}, bob.session), http.StatusBadRequest)
	if body["message"] != "Comment cannot be empty" {
		t.Fatalf("message = %v", body["message"])
	}
	expectStatus(t, e.json(http.MethodPost, path, gin.H{"text": strings.Repeat("x", models.MaxCommentLength+1)}, bob.session), http.StatusBadRequest)

	for i := 0; i < 12; i++ {
		body = expectStatus(t, e.json(http.MethodPost, path, gin.H{"text": fmt.Sprintf(" comment %d ", i)}, bob.session), http.StatusCreated)
	}
	comment := body["comment"].(map[string]any)
	if comment["text"] != "comment 11" || comment["user"].(map[string]any)["fullName"] != "Bob" {
		t.Fatalf("unexpected comment %v", comment)
	}

	page1 := expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+postID+"/comments", nil, "", alice.session), http.StatusOK)
	if len(page1["comments"].([]any)) != 10 || page1["total"].(float64) != 12 || page1["hasMore"] != true {
		t.Fatalf("page 1 = %v", page1)
	}
	if first := page1["comments"].([]any)[0].(map[string]any); first["text"] != "comment 11" {
		t.Fatalf("comments not newest first: %v", first["text"])
	}
	page2 := expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+postID+"/comments?page=2", nil, "", alice.session), http.StatusOK)
	if len(page2["comments"].([]any)) != 2 || page2["hasMore"] != false {
		t.Fatalf("page 2 = %v", page2)
	}

	got := e.notes.waitFor(t, 12)
	for _, d := range got {
		if d.userID != alice.id || d.ev.Type != notify.EventPostCommented {
			t.Fatalf("unexpected notification %+v", d)
		}
	}
}

func TestFollowRules(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	carol := e.signup(t, "Carol")

	body := expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+alice.id.Hex(), nil, alice.session), http.StatusBadRequest)
	if body["message"] != "Cannot follow yourself" {
		t.Fatalf("message = %v", body["message"])
	}
	if n, _ := e.store.CountFollowers(context.Background(), alice.id); n != 0 {
		t.Fatalf("self-follow created an edge")
	}
	expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+primitive.NewObjectID().Hex(), nil, alice.session), http.StatusNotFound)

	expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+bob.id.Hex(), nil, alice.session), http.StatusOK)
	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+bob.id.Hex(), nil, alice.session), http.StatusConflict)
	if body["message"] != "Already following" {
		t.Fatalf("message = %v", body["message"])
	}

	got := e.notes.waitFor(t, 1)
	if got[0].userID != bob.id || got[0].ev.Type != notify.EventNewFollower || got[0].ev.Actor.FullName != "Alice" {
		t.Fatalf("unexpected notification %+v", got[0])
	}

	// Carol follows Alice, then looks at Bob's followers.
	expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+alice.id.Hex(), nil, carol.session), http.StatusOK)
	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/followers/"+bob.id.Hex(), nil, "", carol.session), http.StatusOK)
	users := body["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("followers = %v", users)
	}
	row := users[0].(map[string]any)
	if row["_id"] != alice.id.Hex() || row["isFollowing"] != true {
		t.Fatalf("row = %v", row)
	}

	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/following/"+alice.id.Hex(), nil, "", bob.session), http.StatusOK)
	if users := body["users"].([]any); len(users) != 1 || users[0].(map[string]any)["isFollowing"] != false {
		t.Fatalf("following = %v", users)
	}

	expectStatus(t, e.json(http.MethodPost, "/api/v1/unfollow/"+bob.id.Hex(), nil, alice.session), http.StatusOK)
	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/unfollow/"+bob.id.Hex(), nil, alice.session), http.StatusBadRequest)
	if body["message"] != "Not following" {
		t.Fatalf("message = %v", body["message"])
	}
	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/followers/"+bob.id.Hex(), nil, "", carol.session), http.StatusOK)
	if users := body["users"].([]any); len(users) != 0 {
		t.Fatalf("followers after unfollow = %v", users)
	}
}

func TestUserProfile(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	postID := e.createPost(t, alice, "")
	e.createPost(t, alice, "second")
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/like", nil, bob.session), http.StatusOK)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/comment", gin.H{"text": "hi"}, bob.session), http.StatusCreated)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+alice.id.Hex(), nil, bob.session), http.StatusOK)

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/user/"+alice.id.Hex(), nil, "", bob.session), http.StatusOK)
	if body["isFollowing"] != true || body["followers"].(float64) != 1 || body["following"].(float64) != 0 {
		t.Fatalf("profile = %v", body)
	}
	posts := body["posts"].([]any)
	if len(posts) != 2 {
		t.Fatalf("posts = %v", posts)
	}
	oldest := posts[1].(map[string]any)
	if oldest["_id"] != postID || oldest["isLiked"] != true || oldest["likes"].(float64) != 1 ||
		oldest["comments"].(float64) != 1 || oldest["imageCount"].(float64) != 1 || oldest["primaryImage"] == nil {
		t.Fatalf("summary = %v", oldest)
	}
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "Alice")
	bob := e.signup(t, "Bob")

	body := expectStatus(t, e.json(http.MethodPut, "/api/v1/updateProfile", gin.H{"email": "alice@x.edu"}, bob.session), http.StatusConflict)
	if body["message"] != "Email already used" {
		t.Fatalf("message = %v", body["message"])
	}
	body = expectStatus(t, e.json(http.MethodPut, "/api/v1/updateProfile", gin.H{"department": "ARTS"}, bob.session), http.StatusBadRequest)
	if body["message"] != "Invalid department" {
		t.Fatalf("message = %v", body["message"])
	}

	body = expectStatus(t, e.json(http.MethodPut, "/api/v1/updateProfile", gin.H{"bio": " hi there ", "department": "ECE"}, bob.session), http.StatusOK)
	user := body["user"].(map[string]any)
	if user["bio"] != "hi there" || user["department"] != "ECE" || user["fullName"] != "Bob" {
		t.Fatalf("user = %v", user)
	}
}

func TestExplorePagination(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		dept := "CSE"
		if i%5 == 0 {
			dept = "ECE"
		}
		p := &models.Post{
			User:       alice.id,
			Caption:    fmt.Sprintf("post %d", i),
			Department: dept,
			Year:       "1st",
			Media:      []models.Media{{URL: "memory://x", Type: models.MediaImage}},
			Likes:      []primitive.ObjectID{},
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := e.store.CreatePost(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	for _, tc := range []struct{ page, limit int }{{1, 20}, {2, 20}, {1, 5}, {5, 5}, {6, 5}, {3, 10}, {1, 50}} {
		body := expectStatus(t, e.do(http.MethodGet, fmt.Sprintf("/api/v1/explore?page=%d&limit=%d", tc.page, tc.limit), nil, "", alice.session), http.StatusOK)
		total := int(body["total"].(float64))
		n := len(body["posts"].([]any))
		if total != 25 || n > tc.limit {
			t.Fatalf("page %d limit %d: total %d, %d posts", tc.page, tc.limit, total, n)
		}
		if want := tc.page*tc.limit < total; body["hasMore"] != want {
			t.Fatalf("page %d limit %d: hasMore = %v, want %v", tc.page, tc.limit, body["hasMore"], want)
		}
	}

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/explore", nil, "", alice.session), http.StatusOK)
	first := body["posts"].([]any)[0].(map[string]any)
	if first["caption"] != "post 24" || first["user"].(map[string]any)["fullName"] != "Alice" {
		t.Fatalf("first = %v", first)
	}

	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/explore?department=ECE", nil, "", alice.session), http.StatusOK)
	if body["total"].(float64) != 5 {
		t.Fatalf("ECE total = %v", body["total"])
	}
	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/explore?search=post+1", nil, "", alice.session), http.StatusOK)
	// post 1, post 10..19
	if body["total"].(float64) != 11 {
		t.Fatalf("search total = %v", body["total"])
	}
	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/explore?search=alice", nil, "", alice.session), http.StatusOK)
	if body["total"].(float64) != 25 {
		t.Fatalf("author search total = %v", body["total"])
	}
}

func TestTrendingIsPublic(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, e.createPost(t, alice, fmt.Sprintf("p%d", i)))
	}
	for _, id := range ids[:2] {
		expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+id+"/like", nil, bob.session), http.StatusOK)
	}
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+ids[1]+"/like", nil, alice.session), http.StatusOK)

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/trending-posts", nil, "", nil), http.StatusOK)
	posts := body["posts"].([]any)
	if len(posts) != 3 || posts[0].(map[string]any)["_id"] != ids[1] || posts[1].(map[string]any)["_id"] != ids[0] {
		t.Fatalf("trending = %v", posts)
	}
}

func TestLikesCountIncludesZero(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	liked := e.createPost(t, alice, "liked")
	quiet := e.createPost(t, alice, "quiet")
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+liked+"/like", nil, bob.session), http.StatusOK)

	counts := func(path string) map[string]any {
		t.Helper()
		body := expectStatus(t, e.do(http.MethodGet, path, nil, "", alice.session), http.StatusOK)
		out := map[string]any{}
		for _, p := range body["posts"].([]any) {
			post := p.(map[string]any)
			n, found := post["likesCount"]
			if !found {
				t.Fatalf("%s: post %v has no likesCount", path, post["_id"])
			}
			out[post["_id"].(string)] = n
		}
		return out
	}
	for _, path := range []string{"/api/v1/trending-posts", "/api/v1/explore"} {
		got := counts(path)
		if got[liked] != float64(1) || got[quiet] != float64(0) {
			t.Fatalf("%s: likesCount = %v", path, got)
		}
	}

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/post/"+quiet, nil, "", alice.session), http.StatusOK)
	if n, found := body["post"].(map[string]any)["likesCount"]; !found || n != float64(0) {
		t.Fatalf("post detail = %v", body["post"])
	}
}

func TestUserCountIsPublic(t *testing.T) {
	e := newEnv(t)
	e.signup(t, "Alice")
	e.signup(t, "Bob")
	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/user-count", nil, "", nil), http.StatusOK)
	if body["totalUsers"].(float64) != 2 {
		t.Fatalf("totalUsers = %v", body["totalUsers"])
	}
}

func TestFeedback(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")

	body := expectStatus(t, e.json(http.MethodPost, "/api/v1/feedback", gin.H{"type": "report", "message": ""}, alice.session), http.StatusBadRequest)
	if body["message"] != "message required" {
		t.Fatalf("message = %v", body["message"])
	}
	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/feedback", gin.H{"type": "rant", "message": "x"}, alice.session), http.StatusBadRequest)
	if body["message"] != "Invalid feedback type" {
		t.Fatalf("message = %v", body["message"])
	}
	expectStatus(t, e.json(http.MethodPost, "/api/v1/feedback", gin.H{"type": "feature", "message": strings.Repeat("y", models.MaxFeedbackLength+1)}, alice.session), http.StatusBadRequest)

	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/feedback", gin.H{"type": "feature", "message": "  dark mode  "}, alice.session), http.StatusCreated)
	if body["message"] != "Feedback submitted successfully" {
		t.Fatalf("message = %v", body["message"])
	}

	admin := e.seedAdmin(t)
	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/admin/feedbacks", nil, "", admin.session), http.StatusOK)
	list := body["feedbacks"].([]any)
	if len(list) != 1 {
		t.Fatalf("feedbacks = %v", list)
	}
	fb := list[0].(map[string]any)
	if fb["message"] != "dark mode" || fb["user"].(map[string]any)["email"] != "alice@x.edu" {
		t.Fatalf("feedback = %v", fb)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	for _, path := range []string{"/api/v1/admin/users", "/api/v1/admin/feedbacks", "/api/v1/admin/stats"} {
		body := expectStatus(t, e.do(http.MethodGet, path, nil, "", alice.session), http.StatusForbidden)
		if body["message"] != "Access denied" {
			t.Fatalf("%s: message = %v", path, body["message"])
		}
	}
}

func TestBlockScenario(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	admin := e.seedAdmin(t)

	expectStatus(t, e.do(http.MethodGet, "/api/v1/explore", nil, "", alice.session), http.StatusOK)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/admin/block/"+alice.id.Hex(), nil, admin.session), http.StatusOK)

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/explore", nil, "", alice.session), http.StatusForbidden)
	if body["blocked"] != true {
		t.Fatalf("body = %v", body)
	}
	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/login", gin.H{"email": "alice@x.edu", "password": "pw123456"}, nil), http.StatusForbidden)
	if body["message"] != "Account is blocked" {
		t.Fatalf("message = %v", body["message"])
	}

	body = expectStatus(t, e.json(http.MethodPost, "/api/v1/admin/block/"+admin.id.Hex(), nil, admin.session), http.StatusBadRequest)
	if body["message"] != "Cannot block an admin" {
		t.Fatalf("message = %v", body["message"])
	}
	expectStatus(t, e.json(http.MethodPost, "/api/v1/admin/block/"+primitive.NewObjectID().Hex(), nil, admin.session), http.StatusNotFound)

	expectStatus(t, e.json(http.MethodPost, "/api/v1/admin/unblock/"+alice.id.Hex(), nil, admin.session), http.StatusOK)
	expectStatus(t, e.do(http.MethodGet, "/api/v1/explore", nil, "", alice.session), http.StatusOK)
}

func TestAdminUserListAndStats(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	bob := e.signup(t, "Bob")
	admin := e.seedAdmin(t)
	e.createPost(t, alice, "")
	e.createPost(t, alice, "")
	expectStatus(t, e.json(http.MethodPost, "/api/v1/follow/"+alice.id.Hex(), nil, bob.session), http.StatusOK)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/admin/block/"+bob.id.Hex(), nil, admin.session), http.StatusOK)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/feedback", gin.H{"type": "report", "message": "spam"}, alice.session), http.StatusCreated)

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/admin/users", nil, "", admin.session), http.StatusOK)
	users := body["users"].([]any)
	if len(users) != 2 {
		t.Fatalf("users = %v", users)
	}
	for _, raw := range users {
		u := raw.(map[string]any)
		switch u["_id"] {
		case alice.id.Hex():
			if u["postsCount"].(float64) != 2 || u["followersCount"].(float64) != 1 || u["isActive"] != true {
				t.Fatalf("alice row = %v", u)
			}
		case bob.id.Hex():
			if u["postsCount"].(float64) != 0 || u["isActive"] != false {
				t.Fatalf("bob row = %v", u)
			}
		default:
			t.Fatalf("unexpected row %v", u)
		}
	}

	body = expectStatus(t, e.do(http.MethodGet, "/api/v1/admin/stats", nil, "", admin.session), http.StatusOK)
	stats := body["stats"].(map[string]any)
	if stats["totalUsers"].(float64) != 2 || stats["blockedUsers"].(float64) != 1 || stats["totalFeedback"].(float64) != 1 {
		t.Fatalf("stats = %v", stats)
	}
	top := stats["userActivity"].([]any)
	if len(top) == 0 || top[0].(map[string]any)["fullName"] != "Alice" {
		t.Fatalf("userActivity = %v", top)
	}
}

func TestPushEndpoints(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")

	body := expectStatus(t, e.do(http.MethodGet, "/api/v1/push/vapid-public-key", nil, "", nil), http.StatusOK)
	if body["publicKey"] != "test-public-key" {
		t.Fatalf("publicKey = %v", body["publicKey"])
	}

	expectStatus(t, e.json(http.MethodPost, "/api/v1/push/subscribe", gin.H{"endpoint": "https://push.example/abc"}, alice.session), http.StatusBadRequest)
	sub := gin.H{"endpoint": "https://push.example/abc", "keys": gin.H{"p256dh": "key", "auth": "secret"}}
	expectStatus(t, e.json(http.MethodPost, "/api/v1/push/subscribe", sub, alice.session), http.StatusOK)
	expectStatus(t, e.json(http.MethodPost, "/api/v1/push/subscribe", sub, alice.session), http.StatusOK)

	subs, err := e.store.SubscriptionsFor(context.Background(), alice.id)
	if err != nil || len(subs) != 1 || subs[0].Sub.Keys.Auth != "secret" {
		t.Fatalf("subscriptions = %v, %v", subs, err)
	}
}

func TestRateLimitAndMetrics(t *testing.T) {
	st := store.NewMemory()
	tokens := middleware.NewTokens(testSecret)
	reg := prometheus.NewRegistry()
	router := SetupRouter(handlers.New(handlers.Options{Store: st, Media: media.NewMemory(), Tokens: tokens}), Deps{
		Tokens:   tokens,
		Users:    st,
		Limiter:  middleware.NewIPRateLimiter(0.001, 2),
		Registry: reg,
	})

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/user-count", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// Health and metrics sit outside the limited group.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `http_requests_total{method="GET",path="/api/v1/user-count",status="429"} 1`) {
		t.Fatalf("metrics = %d %s", w.Code, w.Body.String())
	}
}

func TestHugePageNumbersReturnEmptyPages(t *testing.T) {
	e := newEnv(t)
	alice := e.signup(t, "Alice")
	postID := e.createPost(t, alice, "")
	expectStatus(t, e.json(http.MethodPost, "/api/v1/post/"+postID+"/comment", gin.H{"text": "hi"}, alice.session), http.StatusCreated)

	for _, path := range []string{
		"/api/v1/explore?page=9223372036854775807&limit=20",
		"/api/v1/explore?page=9223372036854775807",
		"/api/v1/post/" + postID + "/comments?page=9223372036854775807",
	} {
		body := expectStatus(t, e.do(http.MethodGet, path, nil, "", alice.session), http.StatusOK)
		items := body["posts"]
		if items == nil {
			items = body["comments"]
		}
		if n := len(items.([]any)); n != 0 || body["hasMore"] != false || body["total"].(float64) != 1 {
			t.Fatalf("%s: %v", path, body)
		}
	}
}

// brokenUserWrites fails account writes once broken is set.
type brokenUserWrites struct {
	*store.Memory
	broken bool
}

func (b *brokenUserWrites) CreateUser(ctx context.Context, u *models.User) error {
	if b.broken {
		return errors.New("write failed")
	}
	return b.Memory.CreateUser(ctx, u)
}

func (b *brokenUserWrites) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	if b.broken {
		return nil, errors.New("write failed")
	}
	return b.Memory.UpdateProfile(ctx, id, upd)
}

func TestProfilePhotoDiscardedWhenSaveFails(t *testing.T) {
	writes := &brokenUserWrites{}
	e := newEnvWith(t, func(m *store.Memory) store.Store {
		writes.Memory = m
		return writes
	})

	body, ct := profileForm(t, map[string]string{"fullName": "Alice", "email": "alice@x.edu", "password": "pw123456"})
	expectStatus(t, e.do(http.MethodPost, "/api/v1/register", body, ct, nil), http.StatusCreated)
	alice := e.login(t, "alice@x.edu", "pw123456")
	if e.media.Len() != 1 {
		t.Fatalf("stored objects = %d, want the saved profile photo", e.media.Len())
	}

	writes.broken = true
	body, ct = profileForm(t, map[string]string{"fullName": "Bob", "email": "bob@x.edu", "password": "pw123456"})
	expectStatus(t, e.do(http.MethodPost, "/api/v1/register", body, ct, nil), http.StatusInternalServerError)
	if e.media.Len() != 1 {
		t.Fatalf("register left %d objects", e.media.Len())
	}

	body, ct = profileForm(t, map[string]string{"bio": "hello"})
	expectStatus(t, e.do(http.MethodPut, "/api/v1/updateProfile", body, ct, alice.session), http.StatusInternalServerError)
	if e.media.Len() != 1 {
		t.Fatalf("updateProfile left %d objects", e.media.Len())
	}
}
