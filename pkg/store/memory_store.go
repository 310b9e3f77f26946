package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"storybloom/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs unit tests and local
// development without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User   // user ID -> user
	provider map[string]string        // provider ID -> user ID
	keys     map[string]domain.APIKeys
	stories  map[string]domain.Story
	order    []string // story IDs in insertion order
	images   map[string][]domain.Image  // story ID -> images in insertion order
	likes    map[string]map[string]bool // story ID -> user IDs
	comments map[string][]domain.Comment
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		provider: make(map[string]string),
		keys:     make(map[string]domain.APIKeys),
		stories:  make(map[string]domain.Story),
		images:   make(map[string][]domain.Image),
		likes:    make(map[string]map[string]bool),
		comments: make(map[string][]domain.Comment),
	}
}

// UpsertUser inserts or refreshes a user keyed by provider ID.
func (m *MemoryStore) UpsertUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.provider[u.ProviderID]; ok {
		existing := m.users[id]
		existing.Email = u.Email
		existing.Username = u.Username
		existing.FirstName = u.FirstName
		existing.LastName = u.LastName
		existing.ProfileImage = u.ProfileImage
		existing.UpdatedAt = time.Now().UTC()
		m.users[id] = existing
		return existing, nil
	}
	if u.ID == "" {
		u.ID = newRecordID()
	}
	m.users[u.ID] = u
	m.provider[u.ProviderID] = u.ID
	return u, nil
}

func (m *MemoryStore) GetUserByProviderID(providerID string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.provider[providerID]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) CountStoriesByOwner(ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.stories {
		if s.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) IncrementFreeStoriesUsed(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.FreeStoriesUsed++
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) SaveAPIKeys(keys domain.APIKeys) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.keys[keys.UserID]
	if ok {
		if keys.TextGenKey == "" {
			keys.TextGenKey = existing.TextGenKey
		}
		if keys.ImageGenKey == "" {
			keys.ImageGenKey = existing.ImageGenKey
		}
		keys.CreatedAt = existing.CreatedAt
	}
	m.keys[keys.UserID] = keys
	return nil
}

func (m *MemoryStore) GetAPIKeys(userID string) (domain.APIKeys, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[userID]
	return k, ok, nil
}

func (m *MemoryStore) DeleteAPIKeys(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, userID)
	return nil
}

func (m *MemoryStore) CreateStory(story domain.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stories[story.ID]; exists {
		return fmt.Errorf("story %s already exists", story.ID)
	}
	m.stories[story.ID] = story
	m.order = append(m.order, story.ID)
	return nil
}

func (m *MemoryStore) CreateImage(img domain.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stories[img.StoryID]; !ok {
		return fmt.Errorf("story %s not found", img.StoryID)
	}
	m.images[img.StoryID] = append(m.images[img.StoryID], img)
	return nil
}

func (m *MemoryStore) GetStory(id string) (domain.Story, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stories[id]
	return s, ok, nil
}

func (m *MemoryStore) ListImages(storyID string) ([]domain.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	images := m.images[storyID]
	out := make([]domain.Image, 0, len(images))
	// cover first, then chapters in insertion order
	for _, img := range images {
		if img.IsCover {
			out = append(out, img)
		}
	}
	for _, img := range images {
		if !img.IsCover {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListStories(filter domain.StoryFilter) ([]domain.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Story, 0, len(m.order))
	for _, id := range m.order {
		s := m.stories[id]
		if filter.OwnerID != "" && s.OwnerID != filter.OwnerID {
			continue
		}
		if filter.PublicOnly && !s.IsPublic {
			continue
		}
		if filter.StoryType != "" && s.StoryType != filter.StoryType {
			continue
		}
		if filter.AgeGroup != "" && s.AgeGroup != filter.AgeGroup {
			continue
		}
		if filter.ImageStyle != "" && s.ImageStyle != filter.ImageStyle {
			continue
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			needle := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(s.Title), needle) &&
				!strings.Contains(strings.ToLower(s.Subject), needle) {
				continue
			}
		}
		out = append(out, s)
	}
	switch filter.Sort {
	case domain.SortPopular:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].LikeCount != out[j].LikeCount {
				return out[i].LikeCount > out[j].LikeCount
			}
			return out[i].ViewCount > out[j].ViewCount
		})
	case domain.SortTopRated:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Rating != out[j].Rating {
				return out[i].Rating > out[j].Rating
			}
			return out[i].RatingCount > out[j].RatingCount
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Story{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateStory(story domain.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.stories[story.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	existing.Subject = story.Subject
	existing.StoryType = story.StoryType
	existing.AgeGroup = story.AgeGroup
	existing.ImageStyle = story.ImageStyle
	existing.Title = story.Title
	existing.Content = story.Content
	existing.IsPublic = story.IsPublic
	existing.UpdatedAt = time.Now().UTC()
	m.stories[story.ID] = existing
	return nil
}

func (m *MemoryStore) SetStoryVisibility(id string, isPublic bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.IsPublic = isPublic
	s.UpdatedAt = time.Now().UTC()
	m.stories[id] = s
	return nil
}

func (m *MemoryStore) DeleteStory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stories, id)
	delete(m.images, id)
	delete(m.likes, id)
	delete(m.comments, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) IncrementViewCount(id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	s.ViewCount++
	m.stories[id] = s
	return s.ViewCount, nil
}

func (m *MemoryStore) ToggleLike(storyID, userID string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[storyID]
	if !ok {
		return false, 0, gorm.ErrRecordNotFound
	}
	if m.likes[storyID] == nil {
		m.likes[storyID] = make(map[string]bool)
	}
	var liked bool
	if m.likes[storyID][userID] {
		delete(m.likes[storyID], userID)
		if s.LikeCount > 0 {
			s.LikeCount--
		}
	} else {
		m.likes[storyID][userID] = true
		s.LikeCount++
		liked = true
	}
	m.stories[storyID] = s
	return liked, s.LikeCount, nil
}

func (m *MemoryStore) AddComment(comment domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[comment.StoryID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.comments[comment.StoryID] = append(m.comments[comment.StoryID], comment)
	if comment.Rating > 0 {
		s.Rating = (s.Rating*float64(s.RatingCount) + float64(comment.Rating)) / float64(s.RatingCount+1)
		s.RatingCount++
		m.stories[comment.StoryID] = s
	}
	return nil
}

func (m *MemoryStore) ListComments(storyID string) ([]domain.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	comments := m.comments[storyID]
	out := make([]domain.Comment, len(comments))
	copy(out, comments)
	// newest first
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
