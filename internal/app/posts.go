package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"portfolio/internal/util"
	"portfolio/pkg/domain"
)

// PostInput carries the editable post fields. On update, empty fields leave
// the stored value unchanged.
type PostInput struct {
	Title    string
	Content  string
	Category string
}

// ImageUpload is an image attached to a create or update request.
type ImageUpload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// CreatePost stores a new post owned by owner.
func (a *App) CreatePost(owner domain.User, in PostInput, image *ImageUpload) (domain.Post, error) {
	in = trimPostInput(in)
	if in.Title == "" || in.Content == "" {
		return domain.Post{}, ErrTitleContentRequired
	}
	now := time.Now().UTC()
	post := domain.Post{
		ID:        util.NewID(),
		UserID:    owner.ID,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if image != nil {
		key, url, err := a.storeImage(post.ID, image)
		if err != nil {
			return domain.Post{}, err
		}
		post.ImageKey = key
		post.Image = url
	}
	if err := a.store.SavePost(post); err != nil {
		if post.ImageKey != "" {
			a.deleteImage(post.ImageKey)
		}
		return domain.Post{}, fmt.Errorf("save post: %w", err)
	}
	return a.GetPost(post.ID)
}

// ListPosts returns all posts newest first with authors resolved.
func (a *App) ListPosts() ([]domain.Post, error) {
	posts, err := a.store.ListPosts()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if err := a.decoratePosts(posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost returns one post with authors resolved.
func (a *App) GetPost(id string) (domain.Post, error) {
	post, ok, err := a.store.GetPost(id)
	if err != nil {
		return domain.Post{}, fmt.Errorf("fetch post: %w", err)
	}
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}
	posts := []domain.Post{post}
	if err := a.decoratePosts(posts); err != nil {
		return domain.Post{}, err
	}
	return posts[0], nil
}

// UpdatePost applies the non-empty fields of in and an optional new image.
// Ownership is not checked; any admin may edit any post.
func (a *App) UpdatePost(id string, in PostInput, image *ImageUpload) (domain.Post, error) {
	post, ok, err := a.store.GetPost(id)
	if err != nil {
		return domain.Post{}, fmt.Errorf("fetch post: %w", err)
	}
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}
	in = trimPostInput(in)
	if in.Title != "" {
		post.Title = in.Title
	}
	if in.Content != "" {
		post.Content = in.Content
	}
	if in.Category != "" {
		post.Category = in.Category
	}
	oldKey := post.ImageKey
	if image != nil {
		key, url, err := a.storeImage(post.ID, image)
		if err != nil {
			return domain.Post{}, err
		}
		post.ImageKey = key
		post.Image = url
	}
	post.UpdatedAt = time.Now().UTC()
	if err := a.store.SavePost(post); err != nil {
		if image != nil && post.ImageKey != oldKey {
			a.deleteImage(post.ImageKey)
		}
		return domain.Post{}, fmt.Errorf("update post: %w", err)
	}
	if image != nil && oldKey != "" && oldKey != post.ImageKey {
		a.deleteImage(oldKey)
	}
	return a.GetPost(post.ID)
}

// DeletePost removes a post with its comments, likes and image.
func (a *App) DeletePost(id string) error {
	post, ok, err := a.store.GetPost(id)
	if err != nil {
		return fmt.Errorf("fetch post: %w", err)
	}
	if !ok {
		return ErrPostNotFound
	}
	if err := a.store.DeletePost(id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if post.ImageKey != "" {
		a.deleteImage(post.ImageKey)
	}
	return nil
}

// storeImage sniffs the image type, uploads it and returns its key and URL.
func (a *App) storeImage(postID string, image *ImageUpload) (string, string, error) {
	if a.objects == nil {
		return "", "", ErrImagesDisabled
	}
	if image.Body == nil {
		return "", "", ErrUnsupportedImageType
	}
	if image.Size > a.maxUploadBytes {
		return "", "", ErrImageTooLarge
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(image.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("read image: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", "", ErrUnsupportedImageType
	}
	size := image.Size
	if size <= 0 {
		size = -1
	}
	key := buildImageKey(postID, image.Filename, ext)
	body := io.MultiReader(bytes.NewReader(head), image.Body)

	ctx, cancel := context.WithTimeout(context.Background(), objectTimeout)
	defer cancel()
	if err := a.objects.Put(ctx, key, body, size, contentType); err != nil {
		return "", "", fmt.Errorf("save image: %w", err)
	}
	return key, a.objects.PublicURL(key), nil
}

// deleteImage is best-effort; an orphaned object is preferable to failing
// the request after the row change committed.
func (a *App) deleteImage(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), objectTimeout)
	defer cancel()
	if err := a.objects.Delete(ctx, key); err != nil {
		slog.Warn("delete image failed", "key", key, "err", err)
	}
}

func trimPostInput(in PostInput) PostInput {
	return PostInput{
		Title:    strings.TrimSpace(in.Title),
		Content:  strings.TrimSpace(in.Content),
		Category: strings.TrimSpace(in.Category),
	}
}

// buildImageKey returns posts/<postID>/<name>, forcing the extension to
// match the sniffed content type.
func buildImageKey(postID, filename, ext string) string {
	name := sanitizeFilename(filepath.Base(filename))
	name = strings.Trim(strings.TrimSuffix(name, filepath.Ext(name)), "_.")
	if name == "" {
		name = "image"
	}
	return path.Join("posts", postID, name+ext)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
