package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	ProfileImage string
	Bio          string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type PostModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	Category  string `gorm:"index"`
	Image     string
	ImageKey  string
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

type CommentModel struct {
	ID        string    `gorm:"primaryKey"`
	PostID    string    `gorm:"not null;index"`
	UserID    string    `gorm:"not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// PostLikeModel has a composite key so a user likes a post at most once.
type PostLikeModel struct {
	PostID    string    `gorm:"primaryKey"`
	UserID    string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (PostLikeModel) TableName() string { return "post_likes" }

type ContactMessageModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"not null"`
	Subject   string `gorm:"not null"`
	Message   string `gorm:"type:text;not null"`
	Read      bool   `gorm:"not null;default:false"`
	Meta      datatypes.JSON
	CreatedAt time.Time `gorm:"not null;index"`
}
