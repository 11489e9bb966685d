package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"portfolio/internal/app"
	"portfolio/internal/util"
	"portfolio/pkg/domain"
)

const (
	maxJSONBytes int64 = 1 << 20
	// multipart bodies may exceed the image limit by the form fields and
	// part headers.
	multipartOverhead int64 = 1 << 20
	multipartMemory   int64 = 8 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// AllowedOrigins are the frontend origins allowed by CORS.
	AllowedOrigins []string
	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP
	// headers are believed. Nil trusts none.
	TrustedProxies *util.TrustedProxies
}

// Server exposes the portfolio API over HTTP.
type Server struct {
	app            *app.App
	router         *mux.Router
	allowedOrigins []string
	trustedProxies *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		router:         mux.NewRouter(),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.router
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	h = util.WithRecover(h)
	return h
}

func (s *Server) routes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	// auth
	r.HandleFunc("/api/auth/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.Handle("/api/auth/me", s.authenticated(s.handleMe)).Methods(http.MethodGet)

	// posts
	r.HandleFunc("/api/posts", s.handleListPosts).Methods(http.MethodGet)
	r.Handle("/api/posts", s.adminOnly(s.handleCreatePost)).Methods(http.MethodPost)
	r.HandleFunc("/api/posts/{id}", s.handleGetPost).Methods(http.MethodGet)
	r.Handle("/api/posts/{id}", s.adminOnly(s.handleUpdatePost)).Methods(http.MethodPut)
	r.Handle("/api/posts/{id}", s.adminOnly(s.handleDeletePost)).Methods(http.MethodDelete)

	// comments
	r.Handle("/api/comments/{postId}", s.authenticated(s.handleAddComment)).Methods(http.MethodPost)
	r.Handle("/api/comments/{postId}/{commentId}", s.authenticated(s.handleDeleteComment)).Methods(http.MethodDelete)

	// likes
	r.Handle("/api/likes/{postId}", s.authenticated(s.handleToggleLike)).Methods(http.MethodPost)
	r.HandleFunc("/api/likes/{postId}", s.handleGetLikes).Methods(http.MethodGet)

	// contact
	r.HandleFunc("/api/contact", s.handleSubmitContact).Methods(http.MethodPost)
	r.Handle("/api/contact", s.contactAdminOnly(s.handleListContact)).Methods(http.MethodGet)
	r.Handle("/api/contact/{id}", s.contactAdminOnly(s.handleGetContact)).Methods(http.MethodGet)
	r.Handle("/api/contact/{id}", s.contactAdminOnly(s.handleDeleteContact)).Methods(http.MethodDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, string)

type adminHandler func(http.ResponseWriter, *http.Request, domain.User)

type failFunc func(http.ResponseWriter, *http.Request, error)

// authenticated verifies the bearer token only; handlers receive the user id.
func (s *Server) authenticated(next authHandler) http.Handler {
	return s.authenticatedWith(s.fail, next)
}

// adminOnly additionally resolves the user and requires the admin role.
func (s *Server) adminOnly(next adminHandler) http.Handler {
	return s.adminOnlyWith(s.fail, next)
}

// contactAdminOnly is adminOnly reporting rejections in the contact envelope.
func (s *Server) contactAdminOnly(next adminHandler) http.Handler {
	return s.adminOnlyWith(s.failContact, next)
}

func (s *Server) authenticatedWith(fail failFunc, next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.app.Authenticate(bearerToken(r))
		if err != nil {
			s.audit(r, "auth.token", "rejected", "reason", app.CodeOf(err))
			fail(w, r, err)
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) adminOnlyWith(fail failFunc, next adminHandler) http.Handler {
	return s.authenticatedWith(fail, func(w http.ResponseWriter, r *http.Request, userID string) {
		user, err := s.app.RequireAdmin(userID)
		if err != nil {
			s.audit(r, "auth.admin", "denied", "user_id", userID, "reason", app.CodeOf(err))
			fail(w, r, err)
			return
		}
		next(w, r, user)
	})
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, token, err := s.app.SignUp(req.Name, req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.signup", "failed", "reason", app.CodeOf(err))
		s.fail(w, r, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID, "role", string(user.Role))
	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "failed", "reason", app.CodeOf(err))
		s.fail(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   token,
		User:    user,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := s.app.CurrentUser(userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// post handlers
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.app.ListPosts()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.app.GetPost(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, user domain.User) {
	in, image, cleanup, err := s.readPostForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cleanup()
	post, err := s.app.CreatePost(user, in, image)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, postResponse{Message: "Post created successfully", Post: post})
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request, _ domain.User) {
	in, image, cleanup, err := s.readPostForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cleanup()
	post, err := s.app.UpdatePost(mux.Vars(r)["id"], in, image)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postResponse{Message: "Post updated successfully", Post: post})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := mux.Vars(r)["id"]
	if err := s.app.DeletePost(id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.audit(r, "post.delete", "success", "user_id", user.ID, "post_id", id)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Post deleted successfully"})
}

// readPostForm accepts either a multipart form with an optional "image" file
// part or a JSON body. The returned cleanup must be called once the image
// has been consumed.
func (s *Server) readPostForm(w http.ResponseWriter, r *http.Request) (app.PostInput, *app.ImageUpload, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req postRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return app.PostInput{}, nil, noop, err
		}
		return app.PostInput{Title: req.Title, Content: req.Content, Category: req.Category}, nil, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return app.PostInput{}, nil, noop, app.ErrImageTooLarge
		}
		return app.PostInput{}, nil, noop, invalidBody("Invalid multipart form")
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }
	for key := range form.Value {
		switch key {
		case "title", "content", "category":
		default:
			cleanup()
			return app.PostInput{}, nil, noop, invalidBody("Unknown form field: " + key)
		}
	}
	for key := range form.File {
		if key != "image" {
			cleanup()
			return app.PostInput{}, nil, noop, invalidBody("Unknown file field: " + key)
		}
	}
	in := app.PostInput{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Category: r.FormValue("category"),
	}
	files := form.File["image"]
	if len(files) == 0 {
		return in, nil, cleanup, nil
	}
	if len(files) > 1 {
		cleanup()
		return app.PostInput{}, nil, noop, invalidBody("Only one image may be uploaded")
	}
	header := files[0]
	file, err := header.Open()
	if err != nil {
		cleanup()
		return app.PostInput{}, nil, noop, err
	}
	image := &app.ImageUpload{Filename: header.Filename, Size: header.Size, Body: file}
	return in, image, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

// comment handlers
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, userID string) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	post, err := s.app.AddComment(mux.Vars(r)["postId"], userID, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, postResponse{Message: "Comment added successfully", Post: post})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, userID string) {
	vars := mux.Vars(r)
	if err := s.app.DeleteComment(vars["postId"], vars["commentId"], userID); err != nil {
		if errors.Is(err, app.ErrNotCommentAuthor) {
			s.audit(r, "comment.delete", "denied", "user_id", userID, "comment_id", vars["commentId"])
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Comment deleted successfully"})
}

// like handlers
func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := s.app.ToggleLike(mux.Vars(r)["postId"], userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := "Post unliked"
	if res.IsLiked {
		msg = "Post liked"
	}
	writeJSON(w, http.StatusOK, likeResponse{Message: msg, Likes: res.Likes, IsLiked: res.IsLiked})
}

func (s *Server) handleGetLikes(w http.ResponseWriter, r *http.Request) {
	summary, err := s.app.GetLikes(mux.Vars(r)["postId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// contact handlers
func (s *Server) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.failContact(w, r, err)
		return
	}
	meta := map[string]string{
		"ip":        util.ClientIP(r, s.trustedProxies),
		"userAgent": r.UserAgent(),
		"requestId": util.RequestIDFromContext(r.Context()),
	}
	msg, err := s.app.SubmitContactMessage(app.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}, meta)
	if err != nil {
		s.failContact(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contactResponse{
		Success: true,
		Message: "Message sent successfully",
		Data:    msg,
	})
}

func (s *Server) handleListContact(w http.ResponseWriter, r *http.Request, _ domain.User) {
	msgs, err := s.app.ListContactMessages()
	if err != nil {
		s.failContact(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ContactMessage{}
	}
	count := len(msgs)
	writeJSON(w, http.StatusOK, contactResponse{Success: true, Count: &count, Data: msgs})
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request, _ domain.User) {
	msg, err := s.app.ReadContactMessage(mux.Vars(r)["id"])
	if err != nil {
		s.failContact(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contactResponse{Success: true, Data: msg})
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := mux.Vars(r)["id"]
	if err := s.app.DeleteContactMessage(id); err != nil {
		s.failContact(w, r, err)
		return
	}
	s.audit(r, "contact.delete", "success", "user_id", user.ID, "message_id", id)
	writeJSON(w, http.StatusOK, contactResponse{Success: true, Message: "Message deleted successfully"})
}

// helpers
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// decodeJSON reads a single JSON object into dst. An empty body leaves dst
// zero so the app layer reports which fields are missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return invalidBody("Request body too large")
		}
		return invalidBody("Invalid JSON body")
	}
	if dec.More() {
		return invalidBody("Invalid JSON body")
	}
	return nil
}

func invalidBody(msg string) error {
	return &app.Error{Kind: app.KindValidation, Code: "INVALID_REQUEST", Msg: msg}
}

func statusForKind(kind app.Kind) int {
	switch kind {
	case app.KindValidation, app.KindConflict:
		return http.StatusBadRequest
	case app.KindAuthentication:
		return http.StatusUnauthorized
	case app.KindAuthorization:
		return http.StatusForbidden
	case app.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// resolveError maps err to a status and client-safe message. Internal errors
// are logged here and replaced with a generic message.
func resolveError(r *http.Request, err error) (int, string, string) {
	status := statusForKind(app.KindOf(err))
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		return status, "INTERNAL", "Internal server error"
	}
	return status, app.CodeOf(err), err.Error()
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := resolveError(r, err)
	writeError(w, status, code, msg)
}

// failContact keeps the contact routes' {success, message} envelope while
// still carrying error and code.
func (s *Server) failContact(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := resolveError(r, err)
	writeJSON(w, status, contactErrorResponse{
		Success:   false,
		Message:   msg,
		Error:     msg,
		Code:      code,
		RequestID: requestID(w),
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: requestID(w),
	})
}

func requestID(w http.ResponseWriter) string {
	return strings.TrimSpace(w.Header().Get(util.RequestIDHeader))
}
