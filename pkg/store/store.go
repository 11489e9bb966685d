package store

import (
	"context"

	"portfolio/pkg/domain"
)

// Store defines persistence operations for users, posts and contact messages.
// Lookups return (value, found, err); a missing row is not an error.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	GetUsersByIDs(ids []string) (map[string]domain.User, error)

	// posts; GetPost and ListPosts fill Comments and Likes but not authors
	SavePost(domain.Post) error
	HasPost(id string) (bool, error)
	GetPost(id string) (domain.Post, bool, error)
	ListPosts() ([]domain.Post, error)
	DeletePost(id string) error

	// comments
	AddComment(domain.Comment) error
	GetComment(postID, commentID string) (domain.Comment, bool, error)
	DeleteComment(postID, commentID string) error

	// likes
	ToggleLike(postID, userID string) (liked bool, count int, err error)
	ListLikes(postID string) ([]string, error)

	// contact
	SaveContactMessage(domain.ContactMessage) error
	ListContactMessages() ([]domain.ContactMessage, error)
	GetContactMessage(id string) (domain.ContactMessage, bool, error)
	MarkContactMessageRead(id string) error
	DeleteContactMessage(id string) error
}

// SessionStore issues and verifies bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
}

// ProfileCache keeps author projections close to the read path.
type ProfileCache interface {
	GetAuthors(ctx context.Context, ids []string) (map[string]domain.Author, error)
	SetAuthors(ctx context.Context, authors []domain.Author) error
	Invalidate(ctx context.Context, userID string) error
}
