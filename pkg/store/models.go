package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID              string `gorm:"primaryKey"`
	ProviderID      string `gorm:"uniqueIndex;not null"`
	Email           string `gorm:"not null"`
	Username        string
	FirstName       string
	LastName        string
	ProfileImage    string
	FreeStoriesUsed int       `gorm:"not null;default:0"`
	FreeStoryLimit  int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

type StoryModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;index"`
	Subject     string `gorm:"not null"`
	StoryType   string `gorm:"not null;index"`
	AgeGroup    string `gorm:"not null;index"`
	ImageStyle  string `gorm:"not null;index"`
	Title       string `gorm:"not null;index"`
	Content     datatypes.JSON `gorm:"type:jsonb;not null"`
	IsPublic    bool           `gorm:"not null;default:false;index"`
	ViewCount   int            `gorm:"not null;default:0"`
	LikeCount   int            `gorm:"not null;default:0"`
	Rating      float64        `gorm:"not null;default:0"`
	RatingCount int            `gorm:"not null;default:0"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

type ImageModel struct {
	ID        string    `gorm:"primaryKey"`
	StoryID   string    `gorm:"not null;index"`
	Prompt    string    `gorm:"type:text;not null"`
	URL       string    `gorm:"not null"`
	IsCover   bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

type APIKeyModel struct {
	UserID        string `gorm:"primaryKey"`
	TextGenKey    string
	ImageGenKey   string
	Active        bool `gorm:"not null;default:false"`
	LastValidated time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

type LikeModel struct {
	ID        string    `gorm:"primaryKey"`
	StoryID   string    `gorm:"not null;uniqueIndex:idx_like_story_user"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_like_story_user"`
	CreatedAt time.Time `gorm:"not null"`
}

type CommentModel struct {
	ID        string    `gorm:"primaryKey"`
	StoryID   string    `gorm:"not null;index"`
	UserID    string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	Rating    int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;index"`
}
