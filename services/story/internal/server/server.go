package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"storybloom/internal/ratelimit"
	"storybloom/internal/usertoken"
	"storybloom/internal/util"
	"storybloom/pkg/domain"
	"storybloom/services/story/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	CreateLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the story service.
type Server struct {
	app           *app.App
	tokenVerifier *usertoken.Verifier
	createLimiter *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		createLimiter: cfg.CreateLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("story", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// users
	s.mux.Handle("/users/sync", s.withSubject(s.handleUserSync))
	s.mux.Handle("/users/usage", s.withUser(s.handleUsage))
	s.mux.Handle("/users/api-keys", s.withUser(s.handleAPIKeys))

	// stories
	s.mux.Handle("/stories", s.withUser(s.handleStories))
	// Explore serves public stories only, so it needs no account.
	s.mux.HandleFunc("/stories/explore", s.handleExplore)
	s.mux.Handle("/stories/", s.withUser(s.handleStoryByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type subjectHandler func(http.ResponseWriter, *http.Request, string)

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withSubject verifies the bearer token and passes the provider subject
// through. Used by the sync endpoint, which runs before a local user row
// exists.
func (s *Server) withSubject(next subjectHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		subject, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, subject)
	})
}

// withUser additionally resolves the local user record.
func (s *Server) withUser(next userHandler) http.Handler {
	return s.withSubject(func(w http.ResponseWriter, r *http.Request, subject string) {
		user, err := s.app.UserByProviderID(subject)
		if err != nil {
			if errors.Is(err, app.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next(w, r, user)
	})
}

type userSyncRequest struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ProfileImage string `json:"profileImage"`
}

func (s *Server) handleUserSync(w http.ResponseWriter, r *http.Request, subject string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req userSyncRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.EnsureUser(subject, req.Email, req.Username, req.FirstName, req.LastName, req.ProfileImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	usage, err := s.app.Usage(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

type apiKeysRequest struct {
	TextGenKey  string `json:"textGenKey"`
	ImageGenKey string `json:"imageGenKey"`
}

func (s *Server) handleAPIKeys(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req apiKeysRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		status, err := s.app.SaveAPIKeys(user.ID, req.TextGenKey, req.ImageGenKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodGet:
		status, err := s.app.APIKeyStatus(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := s.app.DeleteAPIKeys(user.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateStory(w, r, user)
	case http.MethodGet:
		s.handleListMyStories(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

type createStoryRequest struct {
	Subject    string `json:"subject"`
	StoryType  string `json:"storyType"`
	AgeGroup   string `json:"ageGroup"`
	ImageStyle string `json:"imageStyle"`
	IsPublic   bool   `json:"isPublic"`
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if s.createLimiter != nil && !s.createLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "too many story requests")
		return
	}
	var req createStoryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	story, err := s.app.CreateStory(r.Context(), user, domain.StoryRequest{
		Subject:    req.Subject,
		StoryType:  domain.StoryType(req.StoryType),
		AgeGroup:   domain.AgeGroup(req.AgeGroup),
		ImageStyle: domain.ImageStyle(req.ImageStyle),
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

func (s *Server) handleListMyStories(w http.ResponseWriter, r *http.Request, user domain.User) {
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")
	stories, err := s.app.ListMyStories(user.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": stories,
		"count": len(stories),
	})
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	filter := domain.StoryFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		StoryType:  domain.StoryType(q.Get("storyType")),
		AgeGroup:   domain.AgeGroup(q.Get("ageGroup")),
		ImageStyle: domain.ImageStyle(q.Get("imageStyle")),
		Sort:       domain.StorySort(q.Get("sort")),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	stories, err := s.app.ExploreStories(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": stories,
		"count": len(stories),
	})
}

// /stories/{id} plus /stories/{id}/{privacy|view|like|comments}
func (s *Server) handleStoryByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/stories/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "privacy":
			s.handlePrivacy(w, r, user, id)
		case "view":
			s.handleView(w, r, user, id)
		case "like":
			s.handleLike(w, r, user, id)
		case "comments":
			s.handleComments(w, r, user, id)
		default:
			notFound(w, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		story, err := s.app.GetStory(user.ID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, story)
	case http.MethodPatch:
		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		story, err := s.app.UpdateStory(user.ID, id, req.Content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, story)
	case http.MethodDelete:
		if err := s.app.DeleteStory(user.ID, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePrivacy(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req struct {
		IsPublic bool `json:"isPublic"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SetStoryPrivacy(user.ID, id, req.IsPublic); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isPublic": req.IsPublic})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	count, err := s.app.RecordView(user.ID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"viewCount": count})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	liked, count, err := s.app.ToggleLike(user.ID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"liked":     liked,
		"likeCount": count,
	})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		comments, err := s.app.ListComments(user.ID, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": comments,
			"count": len(comments),
		})
	case http.MethodPost:
		var req struct {
			Content string `json:"content"`
			Rating  int    `json:"rating"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		comment, err := s.app.AddComment(user.ID, id, req.Content, req.Rating)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	default:
		methodNotAllowed(w)
	}
}

// writeAppError maps service errors onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, "free story quota exceeded")
	case errors.Is(err, app.ErrContentParse):
		writeError(w, http.StatusBadGateway, "story content could not be parsed")
	case errors.Is(err, app.ErrContentGeneration):
		writeError(w, http.StatusBadGateway, "story generation failed")
	case errors.Is(err, app.ErrStoryNotFound):
		notFound(w, "story not found")
	case errors.Is(err, app.ErrUserNotFound):
		notFound(w, "user not found")
	case errors.Is(err, app.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func queryInt(r *http.Request, name string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForStory(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForStory(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "token verifier not configured":
		return "SYSTEM_INTERNAL_ERROR"
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "STORY_FORBIDDEN"
	case message == "story not found":
		return "STORY_NOT_FOUND"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case message == "free story quota exceeded":
		return "STORY_QUOTA_EXCEEDED"
	case message == "story generation failed":
		return "STORY_GENERATION_FAILED"
	case message == "story content could not be parsed":
		return "STORY_CONTENT_INVALID"
	case message == "too many story requests":
		return "STORY_RATE_LIMITED"
	case message == "invalid json body":
		return "STORY_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "STORY_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "STORY_FORBIDDEN"
	case http.StatusNotFound:
		return "STORY_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "STORY_RATE_LIMITED"
	case http.StatusPaymentRequired:
		return "STORY_QUOTA_EXCEEDED"
	case http.StatusBadGateway:
		return "STORY_GENERATION_FAILED"
	}
	return "SYSTEM_INTERNAL_ERROR"
}
