package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"portfolio/internal/app"
	"portfolio/internal/util"
	"portfolio/pkg/domain"
	"portfolio/pkg/store"
)

const testSecret = "server-test-secret-0123456789"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type testServer struct {
	handler  http.Handler
	sessions *store.JWTSessionStore
	objects  *memObjects
}

type serverOptions struct {
	store          store.Store
	trustedProxies *util.TrustedProxies
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	return newTestServerWith(t, serverOptions{})
}

func newTestServerWith(t *testing.T, opts serverOptions) testServer {
	t.Helper()
	if opts.store == nil {
		opts.store = store.NewMemoryStore()
	}
	sessions, err := store.NewJWTSessionStore(testSecret, 0, store.JWTOptions{})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	objects := &memObjects{objects: map[string][]byte{}}
	a, err := app.New(app.Config{
		Store:          opts.store,
		Sessions:       sessions,
		Objects:        objects,
		AdminEmails:    []string{"admin@example.com"},
		MaxUploadBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	srv := New(Config{
		App:            a,
		AllowedOrigins: []string{"http://localhost:3000"},
		TrustedProxies: opts.trustedProxies,
	})
	return testServer{handler: srv.Router(), sessions: sessions, objects: objects}
}

func (ts testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) signup(t *testing.T, name, email string) (string, domain.User) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	return resp.Token, resp.User
}

func (ts testServer) createPost(t *testing.T, token, title string) domain.Post {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/posts", token, map[string]string{
		"title": title, "content": "<p>Body of " + title + "</p>", "category": "notes",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create post: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp postResponse
	decodeBody(t, rec, &resp)
	return resp.Post
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d body %s", status, rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if msg != "" && resp.Error != msg {
		t.Fatalf("expected error %q, got %q", msg, resp.Error)
	}
	if resp.RequestID == "" || resp.RequestID != rec.Header().Get(util.RequestIDHeader) {
		t.Fatalf("error body should carry the response request id, got %q", resp.RequestID)
	}
	return resp
}

func expectContactError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) contactErrorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d body %s", status, rec.Code, rec.Body.String())
	}
	var resp contactErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Success || resp.Message != msg || resp.Error != msg {
		t.Fatalf("expected contact error %q, got %+v", msg, resp)
	}
	if resp.RequestID == "" || resp.RequestID != rec.Header().Get(util.RequestIDHeader) {
		t.Fatalf("error body should carry the response request id, got %q", resp.RequestID)
	}
	return resp
}

type downStore struct {
	*store.MemoryStore
}

func (downStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["db"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
	if rec.Header().Get(util.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	ts := newTestServerWith(t, serverOptions{store: downStore{store.NewMemoryStore()}})
	rec := ts.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "degraded" || body["db"] != "down" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ada", "email": "Admin@Example.com", "password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("signup response leaks password material: %s", rec.Body.String())
	}
	var signup authResponse
	decodeBody(t, rec, &signup)
	if signup.Message != "User registered successfully" || signup.Token == "" {
		t.Fatalf("unexpected signup response %+v", signup)
	}
	if signup.User.Role != domain.RoleAdmin || signup.User.Email != "admin@example.com" {
		t.Fatalf("allowlisted email should be admin: %+v", signup.User)
	}

	rec = ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ada", "email": "admin@example.com", "password": "secret123",
	})
	if resp := expectError(t, rec, http.StatusBadRequest, "User already exists"); resp.Code != "AUTH_USER_EXISTS" {
		t.Fatalf("unexpected code %q", resp.Code)
	}
	rec = ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ada", "email": "admin@example.com", "password": "x",
	})
	expectError(t, rec, http.StatusBadRequest, "User already exists")

	rec = ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "x@example.com"})
	expectError(t, rec, http.StatusBadRequest, "Please provide name, email, and password")

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "wrong-password",
	})
	expectError(t, rec, http.StatusUnauthorized, "Invalid email or password")

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "secret123",
	})
	expectError(t, rec, http.StatusUnauthorized, "Invalid email or password")

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d body %s", rec.Code, rec.Body.String())
	}
	var login authResponse
	decodeBody(t, rec, &login)
	if login.Message != "Login successful" || login.User.ID != signup.User.ID {
		t.Fatalf("unexpected login response %+v", login)
	}

	rec = ts.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d body %s", rec.Code, rec.Body.String())
	}
	var me domain.User
	decodeBody(t, rec, &me)
	if me.ID != signup.User.ID || me.Name != "Ada" {
		t.Fatalf("unexpected me %+v", me)
	}
}

func TestTokenRejections(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	if resp := expectError(t, rec, http.StatusUnauthorized, "No token provided"); resp.Code != "AUTH_NO_TOKEN" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/auth/me", "not-a-jwt", nil)
	expectError(t, rec, http.StatusUnauthorized, "Invalid or expired token")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusUnauthorized, "No token provided")

	other, err := store.NewJWTSessionStore("another-secret-0123456789", 0, store.JWTOptions{})
	if err != nil {
		t.Fatalf("other sessions: %v", err)
	}
	forged, err := other.NewSession("someone")
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	rec = ts.do(t, http.MethodGet, "/api/auth/me", forged, nil)
	expectError(t, rec, http.StatusUnauthorized, "Invalid or expired token")

	ghost, err := ts.sessions.NewSession("deleted-user")
	if err != nil {
		t.Fatalf("ghost token: %v", err)
	}
	rec = ts.do(t, http.MethodGet, "/api/auth/me", ghost, nil)
	expectError(t, rec, http.StatusNotFound, "User not found")

	rec = ts.do(t, http.MethodPost, "/api/posts", ghost, map[string]string{"title": "t", "content": "c"})
	expectError(t, rec, http.StatusNotFound, "User not found")
}

func TestPostsAdminGateAndOrdering(t *testing.T) {
	ts := newTestServer(t)
	adminToken, admin := ts.signup(t, "Admin", "admin@example.com")
	userToken, _ := ts.signup(t, "Reader", "reader@example.com")

	first := ts.createPost(t, adminToken, "First")
	time.Sleep(2 * time.Millisecond)
	second := ts.createPost(t, adminToken, "Second")
	if first.UserID != admin.ID || first.Author == nil || first.Author.Name != "Admin" {
		t.Fatalf("post should carry its author: %+v", first)
	}
	if first.Excerpt != "Body of First" {
		t.Fatalf("unexpected excerpt %q", first.Excerpt)
	}

	rec := ts.do(t, http.MethodGet, "/api/posts", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var posts []domain.Post
	decodeBody(t, rec, &posts)
	if len(posts) != 2 || posts[0].ID != second.ID || posts[1].ID != first.ID {
		t.Fatalf("posts should be newest first: %+v", posts)
	}

	rec = ts.do(t, http.MethodPost, "/api/posts", "", map[string]string{"title": "t", "content": "c"})
	expectError(t, rec, http.StatusUnauthorized, "No token provided")

	rec = ts.do(t, http.MethodPost, "/api/posts", userToken, map[string]string{"title": "t", "content": "c"})
	if resp := expectError(t, rec, http.StatusForbidden, "Admin access required"); resp.Code != "AUTH_ADMIN_REQUIRED" {
		t.Fatalf("unexpected code %q", resp.Code)
	}
	rec = ts.do(t, http.MethodPut, "/api/posts/"+first.ID, userToken, map[string]string{"title": "hijack"})
	expectError(t, rec, http.StatusForbidden, "Admin access required")
	rec = ts.do(t, http.MethodDelete, "/api/posts/"+first.ID, userToken, nil)
	expectError(t, rec, http.StatusForbidden, "Admin access required")

	rec = ts.do(t, http.MethodPost, "/api/posts", adminToken, map[string]string{"title": "  ", "content": "c"})
	expectError(t, rec, http.StatusBadRequest, "Title and content are required")

	rec = ts.do(t, http.MethodPut, "/api/posts/"+first.ID, adminToken, map[string]string{"title": "First, revised"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d body %s", rec.Code, rec.Body.String())
	}
	var updated postResponse
	decodeBody(t, rec, &updated)
	if updated.Message != "Post updated successfully" || updated.Post.Title != "First, revised" || updated.Post.Category != "notes" {
		t.Fatalf("unexpected update response %+v", updated)
	}

	rec = ts.do(t, http.MethodPut, "/api/posts/missing", adminToken, map[string]string{"title": "x"})
	expectError(t, rec, http.StatusNotFound, "Post not found")

	rec = ts.do(t, http.MethodDelete, "/api/posts/"+first.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d body %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/api/posts/"+first.ID, "", nil)
	expectError(t, rec, http.StatusNotFound, "Post not found")
}

func multipartRequest(t *testing.T, path, token string, fields map[string]string, filename string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCreatePostMultipartWithImage(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.signup(t, "Admin", "admin@example.com")

	req := multipartRequest(t, "/api/posts", adminToken,
		map[string]string{"title": "With image", "content": "Look at this"},
		"My Cover!.PNG", pngHeader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp postResponse
	decodeBody(t, rec, &resp)
	wantURL := "https://cdn.test/posts/" + resp.Post.ID + "/My_Cover.png"
	if resp.Message != "Post created successfully" || resp.Post.Image != wantURL {
		t.Fatalf("unexpected post %+v, want image %s", resp.Post, wantURL)
	}
	ts.objects.mu.Lock()
	stored := len(ts.objects.objects)
	ts.objects.mu.Unlock()
	if stored != 1 {
		t.Fatalf("expected one stored object, got %d", stored)
	}

	req = multipartRequest(t, "/api/posts", adminToken,
		map[string]string{"title": "Bad", "content": "not an image"},
		"notes.txt", []byte("plain text, not an image"))
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusBadRequest, "Unsupported image type (allowed: jpeg, png, gif, webp)")

	req = multipartRequest(t, "/api/posts", adminToken,
		map[string]string{"title": "t", "content": "c", "author": "someone"}, "", nil)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if resp := expectError(t, rec, http.StatusBadRequest, ""); resp.Code != "INVALID_REQUEST" {
		t.Fatalf("unknown form field should be rejected, got %+v", resp)
	}
}

func TestCommentsAndLikes(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.signup(t, "Admin", "admin@example.com")
	aliceToken, alice := ts.signup(t, "Alice", "alice@example.com")
	bobToken, bob := ts.signup(t, "Bob", "bob@example.com")
	post := ts.createPost(t, adminToken, "Discuss")

	rec := ts.do(t, http.MethodPost, "/api/comments/"+post.ID, aliceToken, map[string]string{"text": "<b> </b>"})
	expectError(t, rec, http.StatusBadRequest, "Comment text is required")

	rec = ts.do(t, http.MethodPost, "/api/comments/"+post.ID, aliceToken, map[string]string{"text": "Nice post"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment status %d body %s", rec.Code, rec.Body.String())
	}
	var commented postResponse
	decodeBody(t, rec, &commented)
	if len(commented.Post.Comments) != 1 {
		t.Fatalf("expected one comment: %+v", commented.Post)
	}
	comment := commented.Post.Comments[0]
	if comment.UserID != alice.ID || comment.Author == nil || comment.Author.Name != "Alice" {
		t.Fatalf("comment author not resolved: %+v", comment)
	}

	rec = ts.do(t, http.MethodPost, "/api/comments/missing", aliceToken, map[string]string{"text": "hi"})
	expectError(t, rec, http.StatusNotFound, "Post not found")

	path := "/api/comments/" + post.ID + "/" + comment.ID
	rec = ts.do(t, http.MethodDelete, path, bobToken, nil)
	expectError(t, rec, http.StatusForbidden, "Unauthorized to delete this comment")
	rec = ts.do(t, http.MethodDelete, path, adminToken, nil)
	expectError(t, rec, http.StatusForbidden, "Unauthorized to delete this comment")
	rec = ts.do(t, http.MethodDelete, "/api/comments/"+post.ID+"/missing", aliceToken, nil)
	expectError(t, rec, http.StatusNotFound, "Comment not found")
	rec = ts.do(t, http.MethodDelete, path, aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete comment status %d body %s", rec.Code, rec.Body.String())
	}

	likePath := "/api/likes/" + post.ID
	rec = ts.do(t, http.MethodPost, likePath, "", nil)
	expectError(t, rec, http.StatusUnauthorized, "No token provided")

	rec = ts.do(t, http.MethodPost, likePath, bobToken, nil)
	var liked likeResponse
	decodeBody(t, rec, &liked)
	if rec.Code != http.StatusOK || liked.Message != "Post liked" || liked.Likes != 1 || !liked.IsLiked {
		t.Fatalf("unexpected like response %d %+v", rec.Code, liked)
	}

	rec = ts.do(t, http.MethodGet, likePath, "", nil)
	var summary app.LikeSummary
	decodeBody(t, rec, &summary)
	if summary.Likes != 1 || len(summary.LikedBy) != 1 || summary.LikedBy[0] != bob.ID {
		t.Fatalf("unexpected like summary %+v", summary)
	}

	rec = ts.do(t, http.MethodPost, likePath, bobToken, nil)
	var unliked likeResponse
	decodeBody(t, rec, &unliked)
	if unliked.Message != "Post unliked" || unliked.Likes != 0 || unliked.IsLiked {
		t.Fatalf("second toggle should unlike: %+v", unliked)
	}

	rec = ts.do(t, http.MethodGet, likePath, "", nil)
	if !strings.Contains(rec.Body.String(), `"likedBy":[]`) {
		t.Fatalf("likedBy should be an empty array: %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/likes/missing", "", nil)
	expectError(t, rec, http.StatusNotFound, "Post not found")
}

func TestDecodeRejectsUnknownAndMalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Eve", "email": "eve@example.com", "password": "secret123", "role": "admin",
	})
	if resp := expectError(t, rec, http.StatusBadRequest, "Invalid JSON body"); resp.Code != "INVALID_REQUEST" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", `{"email":`)
	expectError(t, rec, http.StatusBadRequest, "Invalid JSON body")

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"a@b.co","password":"x"}{"again":1}`)
	expectError(t, rec, http.StatusBadRequest, "Invalid JSON body")
}

func TestContactRoutes(t *testing.T) {
	ts := newTestServer(t)
	adminToken, _ := ts.signup(t, "Admin", "admin@example.com")
	userToken, _ := ts.signup(t, "Reader", "reader@example.com")

	rec := ts.do(t, http.MethodPost, "/api/contact", "", map[string]string{"name": "Visitor"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var failed contactErrorResponse
	decodeBody(t, rec, &failed)
	if failed.Success || failed.Error != "Please provide all required fields" || failed.Message != failed.Error {
		t.Fatalf("unexpected contact error %+v", failed)
	}

	rec = ts.do(t, http.MethodPost, "/api/contact", "", map[string]string{
		"name": "Visitor", "email": "visitor@example.com", "subject": "Hello", "message": "Great site",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status %d body %s", rec.Code, rec.Body.String())
	}
	var submitted struct {
		Success bool                  `json:"success"`
		Message string                `json:"message"`
		Data    domain.ContactMessage `json:"data"`
	}
	decodeBody(t, rec, &submitted)
	if !submitted.Success || submitted.Message != "Message sent successfully" || submitted.Data.ID == "" || submitted.Data.Read {
		t.Fatalf("unexpected submit response %+v", submitted)
	}
	if submitted.Data.Meta["requestId"] != rec.Header().Get(util.RequestIDHeader) {
		t.Fatalf("message meta should record the request id: %+v", submitted.Data.Meta)
	}

	rec = ts.do(t, http.MethodGet, "/api/contact", "", nil)
	if gate := expectContactError(t, rec, http.StatusUnauthorized, "No token provided"); gate.Code != "AUTH_NO_TOKEN" {
		t.Fatalf("unexpected gate code %q", gate.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/contact/"+submitted.Data.ID, "not-a-token", nil)
	expectContactError(t, rec, http.StatusUnauthorized, "Invalid or expired token")
	rec = ts.do(t, http.MethodGet, "/api/contact", userToken, nil)
	expectContactError(t, rec, http.StatusForbidden, "Admin access required")
	rec = ts.do(t, http.MethodDelete, "/api/contact/"+submitted.Data.ID, userToken, nil)
	expectContactError(t, rec, http.StatusForbidden, "Admin access required")

	rec = ts.do(t, http.MethodGet, "/api/contact", adminToken, nil)
	var listed struct {
		Success bool                    `json:"success"`
		Count   int                     `json:"count"`
		Data    []domain.ContactMessage `json:"data"`
	}
	decodeBody(t, rec, &listed)
	if !listed.Success || listed.Count != 1 || len(listed.Data) != 1 {
		t.Fatalf("unexpected list response %+v", listed)
	}

	rec = ts.do(t, http.MethodGet, "/api/contact/"+submitted.Data.ID, adminToken, nil)
	var got struct {
		Success bool                  `json:"success"`
		Data    domain.ContactMessage `json:"data"`
	}
	decodeBody(t, rec, &got)
	if !got.Success || !got.Data.Read {
		t.Fatalf("reading a message should mark it read: %+v", got)
	}

	rec = ts.do(t, http.MethodDelete, "/api/contact/"+submitted.Data.ID, adminToken, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Message deleted successfully") {
		t.Fatalf("delete status %d body %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/contact/"+submitted.Data.ID, adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	var missing contactErrorResponse
	decodeBody(t, rec, &missing)
	if missing.Success || missing.Message != "Message not found" || missing.Code != "CONTACT_NOT_FOUND" {
		t.Fatalf("unexpected not found body %+v", missing)
	}

	rec = ts.do(t, http.MethodGet, "/api/contact", adminToken, nil)
	if !strings.Contains(rec.Body.String(), `"count":0`) || !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("empty list should report zero: %s", rec.Body.String())
	}
}

func TestContactMetaRecordsClientBehindTrustedProxy(t *testing.T) {
	proxies, err := util.NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}
	ts := newTestServerWith(t, serverOptions{trustedProxies: proxies})

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "client-supplied hop is skipped", remoteAddr: "10.0.0.20:443", xff: "1.2.3.4, 203.0.113.9", want: "203.0.113.9"},
		{name: "untrusted peer ignores header", remoteAddr: "198.51.100.7:5555", xff: "1.2.3.4", want: "198.51.100.7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"name":"Visitor","email":"visitor@example.com","subject":"Hi","message":"Hello"}`
			req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Forwarded-For", tc.xff)
			req.RemoteAddr = tc.remoteAddr
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusCreated {
				t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
			}
			var resp struct {
				Data domain.ContactMessage `json:"data"`
			}
			decodeBody(t, rec, &resp)
			if got := resp.Data.Meta["ip"]; got != tc.want {
				t.Fatalf("meta ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/nope", "", nil)
	if resp := expectError(t, rec, http.StatusNotFound, "Route not found"); resp.Code != "NOT_FOUND" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	rec = ts.do(t, http.MethodPatch, "/api/posts", "", nil)
	expectError(t, rec, http.StatusMethodNotAllowed, "Method not allowed")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing allow origin header")
	}
}
