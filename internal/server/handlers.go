package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/auth"
	"github.com/hyperjump/booru/internal/gallery"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/storage"
)

// pageResponse is a gallery page plus a corrected query when nothing matched.
type pageResponse struct {
	*models.Page
	Suggestion string `json:"suggestion,omitempty"`
}

// requestedRatings reads the rating parameter; nil when absent.
func requestedRatings(r *http.Request) models.RatingSet {
	raw := r.URL.Query().Get(gallery.ParamRating)
	if raw == "" {
		return nil
	}
	return models.ParseRatingSet(raw)
}

// visibleRatings is the rating set the caller is allowed to see for this request.
func visibleRatings(r *http.Request) models.RatingSet {
	return auth.ResolveRatings(sessionFrom(r), requestedRatings(r))
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	state := gallery.ParseState(r.URL.Query())
	page, err := intParam(r, gallery.ParamPage, 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid page")
		return
	}
	pageSize, err := intParam(r, "page_size", 0)
	if err != nil || pageSize < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid page_size")
		return
	}
	// The q parameter is accepted as an alias of tag.
	if q := r.URL.Query().Get("q"); q != "" {
		state.SetQuery(q)
	}
	state.SetRatings(visibleRatings(r))
	state.SetPage(page)

	s.logger.Debug("list posts request", zap.String("query", state.Query()), zap.Int("page", state.Page()), zap.String("ratings", state.Ratings().String()))
	result, err := s.gallery.FetchPage(r.Context(), state.Request(pageSize))
	if err != nil {
		s.respondRepoError(w, "list posts failed", err)
		return
	}
	resp := pageResponse{Page: result}
	if result.Filtered && result.Total == 0 && s.suggest != nil {
		resp.Suggestion = s.suggest.DidYouMean(state.Query())
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	post, err := s.repo.GetPost(r.Context(), id)
	if err != nil {
		s.respondRepoError(w, "get post failed", err)
		return
	}
	// Posts outside the caller's ratings are reported as missing.
	if !auth.ResolveRatings(sessionFrom(r), models.AllRatings).Contains(post.Rating) {
		s.respondError(w, http.StatusNotFound, "post not found")
		return
	}
	s.respondJSON(w, http.StatusOK, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var update models.PostUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.Empty() {
		s.respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if update.Rating != nil && !update.Rating.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid rating")
		return
	}
	s.logger.Debug("update post request", zap.String("id", id))
	post, err := s.repo.UpdatePost(r.Context(), id, &update)
	if err != nil {
		s.respondRepoError(w, "update post failed", err)
		return
	}
	if update.Tags != nil && s.suggest != nil {
		if err := s.suggest.Add(r.Context(), post.Tags); err != nil {
			s.logger.Warn("failed to index updated tags", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete post request", zap.String("id", id))
	if err := s.repo.DeletePost(r.Context(), id); err != nil {
		s.respondRepoError(w, "delete post failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", s.config.Gallery.TagLimit)
	if err != nil || limit < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	tags, err := s.repo.ListTags(r.Context(), limit, visibleRatings(r))
	if err != nil {
		s.respondRepoError(w, "list tags failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	completions, err := s.suggest.Complete(r.Context(), q)
	if err != nil {
		s.respondRepoError(w, "autocomplete failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "suggestions": completions})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.auth.SignIn(r.Context(), creds)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, session)
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		s.respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, auth.ErrDisabled):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("sign-in failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.auth.SignOut(r.Context(), token); err != nil {
			s.logger.Error("sign-out failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	resp := map[string]interface{}{
		"authenticated": session != nil,
		"ratings":       auth.ResolveRatings(session, models.AllRatings).Strings(),
	}
	if session != nil {
		resp["email"] = session.Email
		resp["expires_at"] = session.ExpiresAt
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postCount, err := s.repo.CountPosts(ctx)
	if err != nil {
		s.respondRepoError(w, "status: count posts failed", err)
		return
	}
	tagCount, err := s.repo.CountTags(ctx)
	if err != nil {
		s.respondRepoError(w, "status: count tags failed", err)
		return
	}
	resp := map[string]interface{}{
		"posts": postCount,
		"tags":  tagCount,
		"config": map[string]interface{}{
			"page_size":       s.config.Gallery.PageSize,
			"default_ratings": s.config.Gallery.Ratings().Strings(),
			"database_path":   s.config.Storage.DatabasePath,
			"tag_index_path":  s.config.Storage.TagIndexPath,
			"auth_enabled":    s.config.Auth.Enabled(),
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.TagIndexPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps repository errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNoRowsUpdated):
		return http.StatusConflict
	case storage.IsRepositoryError(err):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) respondRepoError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
