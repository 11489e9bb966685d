package app

import (
	"fmt"
	"strings"
	"time"

	"portfolio/internal/util"
	"portfolio/pkg/domain"
	"portfolio/pkg/markup"
)

// AddComment appends a comment by userID and returns the updated post.
func (a *App) AddComment(postID, userID, text string) (domain.Post, error) {
	text = strings.TrimSpace(text)
	if markup.IsBlank(text) {
		return domain.Post{}, ErrCommentTextRequired
	}
	exists, err := a.store.HasPost(postID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("fetch post: %w", err)
	}
	if !exists {
		return domain.Post{}, ErrPostNotFound
	}
	comment := domain.Comment{
		ID:        util.NewID(),
		PostID:    postID,
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AddComment(comment); err != nil {
		return domain.Post{}, fmt.Errorf("save comment: %w", err)
	}
	return a.GetPost(postID)
}

// DeleteComment removes a comment. Only its author may do so.
func (a *App) DeleteComment(postID, commentID, requesterID string) error {
	exists, err := a.store.HasPost(postID)
	if err != nil {
		return fmt.Errorf("fetch post: %w", err)
	}
	if !exists {
		return ErrPostNotFound
	}
	comment, ok, err := a.store.GetComment(postID, commentID)
	if err != nil {
		return fmt.Errorf("fetch comment: %w", err)
	}
	if !ok {
		return ErrCommentNotFound
	}
	if comment.UserID != requesterID {
		return ErrNotCommentAuthor
	}
	if err := a.store.DeleteComment(postID, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
