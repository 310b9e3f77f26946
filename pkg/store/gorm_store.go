package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"storybloom/pkg/domain"
)

const migrateLockID int64 = 52115211

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &StoryModel{}, &ImageModel{}, &APIKeyModel{}, &LikeModel{}, &CommentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// Likes and comments cascade with their story; images are removed
		// explicitly inside DeleteStory.
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'like_models'
					AND constraint_name = 'like_models_story_id_fkey'
				) THEN
					ALTER TABLE like_models
					ADD CONSTRAINT like_models_story_id_fkey
					FOREIGN KEY (story_id) REFERENCES story_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'comment_models'
					AND constraint_name = 'comment_models_story_id_fkey'
				) THEN
					ALTER TABLE comment_models
					ADD CONSTRAINT comment_models_story_id_fkey
					FOREIGN KEY (story_id) REFERENCES story_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure story foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
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

// UpsertUser registers a user on first sight or refreshes profile fields.
// The returned user carries the stored usage counters.
func (s *GormStore) UpsertUser(u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = newRecordID()
	}
	model := userToModel(u)
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "first_name", "last_name", "profile_image", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.User{}, err
	}
	stored, ok, err := s.GetUserByProviderID(u.ProviderID)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("user vanished after upsert")
	}
	return stored, nil
}

// GetUserByProviderID looks up a user by identity-provider subject.
func (s *GormStore) GetUserByProviderID(providerID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("provider_id = ?", providerID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by internal ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CountStoriesByOwner returns the number of stories a user has created.
func (s *GormStore) CountStoriesByOwner(ownerID string) (int, error) {
	var count int64
	if err := s.db.Model(&StoryModel{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// IncrementFreeStoriesUsed bumps the usage counter in a single UPDATE so the
// read-modify-write happens inside the database.
func (s *GormStore) IncrementFreeStoriesUsed(userID string) error {
	res := s.db.Model(&UserModel{}).
		Where("id = ?", userID).
		UpdateColumn("free_stories_used", gorm.Expr("free_stories_used + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s not found", userID)
	}
	return nil
}

// SaveAPIKeys creates or updates the stored (already encrypted) keys.
func (s *GormStore) SaveAPIKeys(keys domain.APIKeys) error {
	model := apiKeysToModel(keys)
	assignments := []string{"active", "last_validated", "updated_at"}
	if model.TextGenKey != "" {
		assignments = append(assignments, "text_gen_key")
	}
	if model.ImageGenKey != "" {
		assignments = append(assignments, "image_gen_key")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(assignments),
	}).Create(&model).Error
}

// GetAPIKeys returns the stored key record for a user.
func (s *GormStore) GetAPIKeys(userID string) (domain.APIKeys, bool, error) {
	var model APIKeyModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.APIKeys{}, false, nil
		}
		return domain.APIKeys{}, false, err
	}
	return apiKeysFromModel(model), true, nil
}

// DeleteAPIKeys removes the stored keys.
func (s *GormStore) DeleteAPIKeys(userID string) error {
	return s.db.Delete(&APIKeyModel{}, "user_id = ?", userID).Error
}

// CreateStory inserts the story row.
func (s *GormStore) CreateStory(story domain.Story) error {
	model := storyToModel(story)
	return s.db.Create(&model).Error
}

// CreateImage inserts one image row.
func (s *GormStore) CreateImage(img domain.Image) error {
	model := imageToModel(img)
	return s.db.Create(&model).Error
}

// GetStory retrieves a story without its images.
func (s *GormStore) GetStory(id string) (domain.Story, bool, error) {
	var model StoryModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Story{}, false, nil
		}
		return domain.Story{}, false, err
	}
	return storyFromModel(model), true, nil
}

// ListImages returns a story's images with the cover first, then chapters in
// creation order.
func (s *GormStore) ListImages(storyID string) ([]domain.Image, error) {
	var models []ImageModel
	if err := s.db.Where("story_id = ?", storyID).
		Order("is_cover DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	images := make([]domain.Image, 0, len(models))
	for _, m := range models {
		images = append(images, imageFromModel(m))
	}
	return images, nil
}

// ListStories returns stories matching an already-parsed filter.
func (s *GormStore) ListStories(filter domain.StoryFilter) ([]domain.Story, error) {
	tx := s.db.Model(&StoryModel{})
	if filter.OwnerID != "" {
		tx = tx.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.PublicOnly {
		tx = tx.Where("is_public = ?", true)
	}
	if filter.StoryType != "" {
		tx = tx.Where("story_type = ?", string(filter.StoryType))
	}
	if filter.AgeGroup != "" {
		tx = tx.Where("age_group = ?", string(filter.AgeGroup))
	}
	if filter.ImageStyle != "" {
		tx = tx.Where("image_style = ?", string(filter.ImageStyle))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		tx = tx.Where("title ILIKE ? OR subject ILIKE ?", pattern, pattern)
	}
	switch filter.Sort {
	case domain.SortPopular:
		tx = tx.Order("like_count DESC").Order("view_count DESC")
	case domain.SortTopRated:
		tx = tx.Order("rating DESC").Order("rating_count DESC")
	default:
		tx = tx.Order("created_at DESC")
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	var models []StoryModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	stories := make([]domain.Story, 0, len(models))
	for _, m := range models {
		stories = append(stories, storyFromModel(m))
	}
	return stories, nil
}

// UpdateStory rewrites the mutable story fields.
func (s *GormStore) UpdateStory(story domain.Story) error {
	return s.db.Model(&StoryModel{}).
		Where("id = ?", story.ID).
		Updates(map[string]any{
			"subject":     story.Subject,
			"story_type":  string(story.StoryType),
			"age_group":   string(story.AgeGroup),
			"image_style": string(story.ImageStyle),
			"title":       story.Title,
			"content":     datatypes.JSON(story.Content),
			"is_public":   story.IsPublic,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// SetStoryVisibility flips the public flag.
func (s *GormStore) SetStoryVisibility(id string, isPublic bool) error {
	return s.db.Model(&StoryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_public":  isPublic,
			"updated_at": time.Now().UTC(),
		}).Error
}

// DeleteStory removes the story and everything hanging off it in one
// transaction. Image rows have no cascade and must go explicitly.
func (s *GormStore) DeleteStory(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ImageModel{}, "story_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&LikeModel{}, "story_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&CommentModel{}, "story_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&StoryModel{}, "id = ?", id).Error
	})
}

// IncrementViewCount bumps the view counter atomically and returns the new
// value.
func (s *GormStore) IncrementViewCount(id string) (int, error) {
	res := s.db.Model(&StoryModel{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var model StoryModel
	if err := s.db.Select("view_count").First(&model, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return model.ViewCount, nil
}

// ToggleLike creates or removes the like row and adjusts the counter in the
// same transaction.
func (s *GormStore) ToggleLike(storyID, userID string) (bool, int, error) {
	var liked bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing LikeModel
		findErr := tx.Where("story_id = ? AND user_id = ?", storyID, userID).First(&existing).Error
		switch findErr {
		case nil:
			if err := tx.Delete(&LikeModel{}, "id = ?", existing.ID).Error; err != nil {
				return err
			}
			liked = false
			return tx.Model(&StoryModel{}).
				Where("id = ?", storyID).
				UpdateColumn("like_count", gorm.Expr("GREATEST(like_count - 1, 0)")).Error
		case gorm.ErrRecordNotFound:
			like := LikeModel{
				ID:        newRecordID(),
				StoryID:   storyID,
				UserID:    userID,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&like).Error; err != nil {
				return err
			}
			liked = true
			return tx.Model(&StoryModel{}).
				Where("id = ?", storyID).
				UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
		default:
			return findErr
		}
	})
	if err != nil {
		return false, 0, err
	}
	var model StoryModel
	if err := s.db.Select("like_count").First(&model, "id = ?", storyID).Error; err != nil {
		return liked, 0, err
	}
	return liked, model.LikeCount, nil
}

// AddComment stores a comment and, when it carries a rating, folds the
// rating into the story's running average inside one UPDATE.
func (s *GormStore) AddComment(comment domain.Comment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := commentToModel(comment)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if comment.Rating == 0 {
			return nil
		}
		return tx.Model(&StoryModel{}).
			Where("id = ?", comment.StoryID).
			Updates(map[string]any{
				"rating":       gorm.Expr("(rating * rating_count + ?) / (rating_count + 1)", comment.Rating),
				"rating_count": gorm.Expr("rating_count + 1"),
			}).Error
	})
}

// ListComments returns a story's comments, newest first.
func (s *GormStore) ListComments(storyID string) ([]domain.Comment, error) {
	var models []CommentModel
	if err := s.db.Where("story_id = ?", storyID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	comments := make([]domain.Comment, 0, len(models))
	for _, m := range models {
		comments = append(comments, commentFromModel(m))
	}
	return comments, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:              u.ID,
		ProviderID:      u.ProviderID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImage:    u.ProfileImage,
		FreeStoriesUsed: u.FreeStoriesUsed,
		FreeStoryLimit:  u.FreeStoryLimit,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:              m.ID,
		ProviderID:      m.ProviderID,
		Email:           m.Email,
		Username:        m.Username,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		ProfileImage:    m.ProfileImage,
		FreeStoriesUsed: m.FreeStoriesUsed,
		FreeStoryLimit:  m.FreeStoryLimit,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func storyToModel(s domain.Story) StoryModel {
	return StoryModel{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Subject:     s.Subject,
		StoryType:   string(s.StoryType),
		AgeGroup:    string(s.AgeGroup),
		ImageStyle:  string(s.ImageStyle),
		Title:       s.Title,
		Content:     datatypes.JSON(s.Content),
		IsPublic:    s.IsPublic,
		ViewCount:   s.ViewCount,
		LikeCount:   s.LikeCount,
		Rating:      s.Rating,
		RatingCount: s.RatingCount,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func storyFromModel(m StoryModel) domain.Story {
	return domain.Story{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Subject:     m.Subject,
		StoryType:   domain.StoryType(m.StoryType),
		AgeGroup:    domain.AgeGroup(m.AgeGroup),
		ImageStyle:  domain.ImageStyle(m.ImageStyle),
		Title:       m.Title,
		Content:     string(m.Content),
		IsPublic:    m.IsPublic,
		ViewCount:   m.ViewCount,
		LikeCount:   m.LikeCount,
		Rating:      m.Rating,
		RatingCount: m.RatingCount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func imageToModel(i domain.Image) ImageModel {
	return ImageModel{
		ID:        i.ID,
		StoryID:   i.StoryID,
		Prompt:    i.Prompt,
		URL:       i.URL,
		IsCover:   i.IsCover,
		CreatedAt: i.CreatedAt,
	}
}

func imageFromModel(m ImageModel) domain.Image {
	return domain.Image{
		ID:        m.ID,
		StoryID:   m.StoryID,
		Prompt:    m.Prompt,
		URL:       m.URL,
		IsCover:   m.IsCover,
		CreatedAt: m.CreatedAt,
	}
}

func apiKeysToModel(k domain.APIKeys) APIKeyModel {
	return APIKeyModel{
		UserID:        k.UserID,
		TextGenKey:    k.TextGenKey,
		ImageGenKey:   k.ImageGenKey,
		Active:        k.Active,
		LastValidated: k.LastValidated,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
	}
}

func apiKeysFromModel(m APIKeyModel) domain.APIKeys {
	return domain.APIKeys{
		UserID:        m.UserID,
		TextGenKey:    m.TextGenKey,
		ImageGenKey:   m.ImageGenKey,
		Active:        m.Active,
		LastValidated: m.LastValidated,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func commentToModel(c domain.Comment) CommentModel {
	return CommentModel{
		ID:        c.ID,
		StoryID:   c.StoryID,
		UserID:    c.UserID,
		Content:   c.Content,
		Rating:    c.Rating,
		CreatedAt: c.CreatedAt,
	}
}

func commentFromModel(m CommentModel) domain.Comment {
	return domain.Comment{
		ID:        m.ID,
		StoryID:   m.StoryID,
		UserID:    m.UserID,
		Content:   m.Content,
		Rating:    m.Rating,
		CreatedAt: m.CreatedAt,
	}
}
