package domain

import "time"

type StoryType string

const (
	TypeStoryBook   StoryType = "Story Book"
	TypeBedStory    StoryType = "Bed Story"
	TypeEducational StoryType = "Educational Story"
)

type AgeGroup string

const (
	Age0To2 AgeGroup = "0-2 Years"
	Age3To5 AgeGroup = "3-5 Years"
	Age5To8 AgeGroup = "5-8 Years"
)

type ImageStyle string

const (
	Style3DCartoon ImageStyle = "3D Cartton"
	StylePaperCut  ImageStyle = "Paper Cut"
	StyleWaterCol  ImageStyle = "Water Color"
	StylePixel     ImageStyle = "Pixel Style"
)

// StoryRequest carries the user-chosen parameters for one generation run.
// It is transient and never persisted.
type StoryRequest struct {
	Subject    string     `json:"subject"`
	StoryType  StoryType  `json:"storyType"`
	AgeGroup   AgeGroup   `json:"ageGroup"`
	ImageStyle ImageStyle `json:"imageStyle"`
	IsPublic   bool       `json:"isPublic"`
}

// StoryContent is the structured document returned by the text model.
type StoryContent struct {
	StoryTitle string     `json:"storyTitle"`
	StoryCover StoryCover `json:"storyCover"`
	Chapters   []Chapter  `json:"chapters"`
}

type StoryCover struct {
	ImagePrompt string `json:"imagePrompt"`
	AltText     string `json:"altText,omitempty"`
}

type Chapter struct {
	ChapterNumber int    `json:"chapterNumber"`
	ChapterTitle  string `json:"chapterTitle"`
	TextContent   string `json:"textContent"`
	ImagePrompt   string `json:"imagePrompt"`
	AltText       string `json:"altText,omitempty"`
}

type Story struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Subject     string     `json:"subject"`
	StoryType   StoryType  `json:"storyType"`
	AgeGroup    AgeGroup   `json:"ageGroup"`
	ImageStyle  ImageStyle `json:"imageStyle"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	IsPublic    bool       `json:"isPublic"`
	ViewCount   int        `json:"viewCount"`
	LikeCount   int        `json:"likeCount"`
	Rating      float64    `json:"rating"`
	RatingCount int        `json:"ratingCount"`
	Images      []Image    `json:"images,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Image struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"storyId"`
	Prompt    string    `json:"prompt"`
	URL       string    `json:"url"`
	IsCover   bool      `json:"isCover"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"providerId"`
	Email           string    `json:"email"`
	Username        string    `json:"username,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	ProfileImage    string    `json:"profileImage,omitempty"`
	FreeStoriesUsed int       `json:"freeStoriesUsed"`
	FreeStoryLimit  int       `json:"freeStoryLimit"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// APIKeys holds a user's stored generation credentials. Key material is
// encrypted at rest and never serialized to clients.
type APIKeys struct {
	UserID        string    `json:"-"`
	TextGenKey    string    `json:"-"`
	ImageGenKey   string    `json:"-"`
	Active        bool      `json:"active"`
	LastValidated time.Time `json:"lastValidated,omitempty"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

type Like struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"storyId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"storyId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type StorySort string

const (
	SortRecent   StorySort = "recent"
	SortPopular  StorySort = "popular"
	SortTopRated StorySort = "topRated"
)

// StoryFilter is an already-parsed listing filter; zero values mean "any".
type StoryFilter struct {
	Search     string
	StoryType  StoryType
	AgeGroup   AgeGroup
	ImageStyle ImageStyle
	OwnerID    string
	PublicOnly bool
	Sort       StorySort
	Limit      int
	Offset     int
}

// Usage summarizes a user's free-tier consumption.
type Usage struct {
	FreeStoriesUsed      int  `json:"freeStoriesUsed"`
	FreeStoryLimit       int  `json:"freeStoryLimit"`
	RemainingFreeStories int  `json:"remainingFreeStories"`
	TotalStories         int  `json:"totalStories"`
	HasCustomKeys        bool `json:"hasCustomKeys"`
	CanCreateStory       bool `json:"canCreateStory"`
	ReachedLimit         bool `json:"reachedLimit"`
}
