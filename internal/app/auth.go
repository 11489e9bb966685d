package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"portfolio/internal/util"
	"portfolio/pkg/auth"
	"portfolio/pkg/domain"
)

// SignUp registers a new user and issues a session token. The role is admin
// when the email is on the configured allowlist, user otherwise.
func (a *App) SignUp(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ErrSignupFieldsRequired
	}
	// A taken email wins over every other input problem.
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrUserAlreadyExists
	}
	if !validEmail(email) {
		return domain.User{}, "", ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", invalid("AUTH_WEAK_PASSWORD", err)
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	role := domain.RoleUser
	if _, ok := a.adminEmails[email]; ok {
		role = domain.RoleAdmin
	}
	user, err := a.createUser(name, email, passwordHash, role)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session token: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrLoginFieldsRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session token: %w", err)
	}
	return user, token, nil
}

// Authenticate verifies a bearer token and returns the user ID it was issued
// for. It never touches the user table.
func (a *App) Authenticate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoToken
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// CurrentUser resolves the user behind a verified token.
func (a *App) CurrentUser(userID string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// RequireAdmin resolves the user and checks the admin role.
func (a *App) RequireAdmin(userID string) (domain.User, error) {
	user, err := a.CurrentUser(userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.Role != domain.RoleAdmin {
		return domain.User{}, ErrAdminRequired
	}
	return user, nil
}

func (a *App) createUser(name, email, passwordHash string, role domain.UserRole) (domain.User, error) {
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		// A concurrent signup may have taken the email between check and insert.
		if exists, checkErr := a.store.HasUserEmail(email); checkErr == nil && exists {
			return domain.User{}, ErrUserAlreadyExists
		}
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	if a.profiles != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		if err := a.profiles.Invalidate(ctx, user.ID); err != nil {
			slog.Warn("profile cache invalidate failed", "user_id", user.ID, "err", err)
		}
		cancel()
	}
	return user, nil
}

// validEmail accepts a bare addr-spec such as "a@b.example" and rejects
// display-name forms like "A <a@b.example>".
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".")
}
