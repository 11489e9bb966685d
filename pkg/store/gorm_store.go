package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"portfolio/pkg/domain"
)

const migrateLockID int64 = 51731842

// GormStore implements Store using GORM. Postgres in production; any gorm
// dialector works for the schema it migrates.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a Postgres DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	return OpenGormStore(postgres.Open(dsn))
}

// OpenGormStore opens the given dialector and runs auto-migrations.
func OpenGormStore(dialector gorm.Dialector) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &PostModel{}, &CommentModel{}, &PostLikeModel{}, &ContactMessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// withMigrationLock serializes migrations across replicas. Only Postgres has
// advisory locks; other dialects migrate directly.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "password_hash", "role", "profile_image", "bio", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUsersByIDs returns the users that exist among ids, keyed by ID.
func (s *GormStore) GetUsersByIDs(ids []string) (map[string]domain.User, error) {
	res := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	var models []UserModel
	if err := s.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		res[m.ID] = userFromModel(m)
	}
	return res, nil
}

// SavePost stores or updates the post row. Comments and likes are written
// through their own methods.
func (s *GormStore) SavePost(p domain.Post) error {
	model := postToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "category", "image", "image_key", "updated_at"}),
	}).Create(&model).Error
}

// HasPost reports whether the post exists.
func (s *GormStore) HasPost(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&PostModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetPost retrieves a post with its comments and likes.
func (s *GormStore) GetPost(id string) (domain.Post, bool, error) {
	var model PostModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Post{}, false, nil
		}
		return domain.Post{}, false, err
	}
	posts, err := s.withChildren([]PostModel{model})
	if err != nil {
		return domain.Post{}, false, err
	}
	return posts[0], true, nil
}

// ListPosts returns all posts newest first.
func (s *GormStore) ListPosts() ([]domain.Post, error) {
	var models []PostModel
	if err := s.db.Order("created_at DESC").Order("id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return s.withChildren(models)
}

// withChildren loads comments and likes for the given posts in two
// concurrent queries.
func (s *GormStore) withChildren(models []PostModel) ([]domain.Post, error) {
	posts := make([]domain.Post, 0, len(models))
	if len(models) == 0 {
		return posts, nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}

	var (
		comments []CommentModel
		likes    []PostLikeModel
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return s.db.WithContext(ctx).
			Where("post_id IN ?", ids).
			Order("created_at ASC").Order("id ASC").
			Find(&comments).Error
	})
	g.Go(func() error {
		return s.db.WithContext(ctx).
			Where("post_id IN ?", ids).
			Order("created_at ASC").
			Find(&likes).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load post children: %w", err)
	}

	commentsByPost := make(map[string][]domain.Comment, len(ids))
	for _, c := range comments {
		commentsByPost[c.PostID] = append(commentsByPost[c.PostID], commentFromModel(c))
	}
	likesByPost := make(map[string][]string, len(ids))
	for _, l := range likes {
		likesByPost[l.PostID] = append(likesByPost[l.PostID], l.UserID)
	}
	for _, m := range models {
		p := postFromModel(m)
		if cs := commentsByPost[m.ID]; cs != nil {
			p.Comments = cs
		}
		if ls := likesByPost[m.ID]; ls != nil {
			p.Likes = ls
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// DeletePost removes a post together with its comments and likes.
func (s *GormStore) DeletePost(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&CommentModel{}, "post_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PostLikeModel{}, "post_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PostModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		return nil
	})
}

// AddComment appends a comment to its post.
func (s *GormStore) AddComment(c domain.Comment) error {
	model := commentToModel(c)
	return s.db.Create(&model).Error
}

// GetComment looks up a comment scoped to its post.
func (s *GormStore) GetComment(postID, commentID string) (domain.Comment, bool, error) {
	var model CommentModel
	if err := s.db.First(&model, "id = ? AND post_id = ?", commentID, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Comment{}, false, nil
		}
		return domain.Comment{}, false, err
	}
	return commentFromModel(model), true, nil
}

// DeleteComment removes a comment from its post.
func (s *GormStore) DeleteComment(postID, commentID string) error {
	return s.db.Delete(&CommentModel{}, "id = ? AND post_id = ?", commentID, postID).Error
}

// ToggleLike flips the (post, user) like inside one transaction and returns
// the new state and like count.
func (s *GormStore) ToggleLike(postID, userID string) (bool, int, error) {
	var (
		liked bool
		count int64
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&PostLikeModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			like := PostLikeModel{PostID: postID, UserID: userID, CreatedAt: time.Now().UTC()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			liked = true
		}
		return tx.Model(&PostLikeModel{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		return false, 0, err
	}
	return liked, int(count), nil
}

// ListLikes returns the IDs of users who like the post, oldest like first.
func (s *GormStore) ListLikes(postID string) ([]string, error) {
	var models []PostLikeModel
	if err := s.db.Where("post_id = ?", postID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// SaveContactMessage stores a contact form submission.
func (s *GormStore) SaveContactMessage(m domain.ContactMessage) error {
	model := contactToModel(m)
	return s.db.Create(&model).Error
}

// ListContactMessages returns messages newest first.
func (s *GormStore) ListContactMessages() ([]domain.ContactMessage, error) {
	var models []ContactMessageModel
	if err := s.db.Order("created_at DESC").Order("id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ContactMessage, 0, len(models))
	for _, m := range models {
		res = append(res, contactFromModel(m))
	}
	return res, nil
}

// GetContactMessage retrieves a message by ID.
func (s *GormStore) GetContactMessage(id string) (domain.ContactMessage, bool, error) {
	var model ContactMessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ContactMessage{}, false, nil
		}
		return domain.ContactMessage{}, false, err
	}
	return contactFromModel(model), true, nil
}

// MarkContactMessageRead sets the read flag.
func (s *GormStore) MarkContactMessageRead(id string) error {
	return s.db.Model(&ContactMessageModel{}).Where("id = ?", id).Update("read", true).Error
}

// DeleteContactMessage removes a message.
func (s *GormStore) DeleteContactMessage(id string) error {
	return s.db.Delete(&ContactMessageModel{}, "id = ?", id).Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		ProfileImage: u.ProfileImage,
		Bio:          u.Bio,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	role := domain.UserRole(m.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         role,
		ProfileImage: m.ProfileImage,
		Bio:          m.Bio,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func postToModel(p domain.Post) PostModel {
	return PostModel{
		ID:        p.ID,
		UserID:    p.UserID,
		Title:     p.Title,
		Content:   p.Content,
		Category:  p.Category,
		Image:     p.Image,
		ImageKey:  p.ImageKey,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func postFromModel(m PostModel) domain.Post {
	return domain.Post{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Content:   m.Content,
		Category:  m.Category,
		Image:     m.Image,
		ImageKey:  m.ImageKey,
		Comments:  []domain.Comment{},
		Likes:     []string{},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func commentToModel(c domain.Comment) CommentModel {
	return CommentModel{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}

func commentFromModel(m CommentModel) domain.Comment {
	return domain.Comment{
		ID:        m.ID,
		PostID:    m.PostID,
		UserID:    m.UserID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func contactToModel(m domain.ContactMessage) ContactMessageModel {
	var meta datatypes.JSON
	if len(m.Meta) > 0 {
		meta, _ = json.Marshal(m.Meta)
	}
	return ContactMessageModel{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Subject:   m.Subject,
		Message:   m.Message,
		Read:      m.Read,
		Meta:      meta,
		CreatedAt: m.CreatedAt,
	}
}

func contactFromModel(m ContactMessageModel) domain.ContactMessage {
	var meta map[string]string
	if len(m.Meta) > 0 {
		_ = json.Unmarshal(m.Meta, &meta)
	}
	return domain.ContactMessage{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Subject:   m.Subject,
		Message:   m.Message,
		Read:      m.Read,
		Meta:      meta,
		CreatedAt: m.CreatedAt,
	}
}
