package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/booru/internal/auth"
	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/gallery"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/storage"
	"github.com/hyperjump/booru/internal/suggest"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	repo    storage.Repository
}

func newTestEnv(t *testing.T, repo storage.Repository) *testEnv {
	t.Helper()
	ctx := context.Background()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Auth.AdminEmail = "admin@example.com"
	cfg.Auth.AdminPasswordHash = string(hash)
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "booru.db")
	cfg.Storage.TagIndexPath = ""

	if repo == nil {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = store.Close() })
		for _, in := range []*models.PostInput{
			{ID: "p1", MediaURL: "1.png", Tags: models.ParseTagList("cat cute")},
			{ID: "p2", MediaURL: "2.png", Tags: models.ParseTagList("dog")},
			{ID: "p3", MediaURL: "3.png", Tags: models.ParseTagList("cat scary")},
			{ID: "p4", MediaURL: "4.mp4", Rating: models.RatingExplicit, Tags: models.ParseTagList("cat lewd")},
		} {
			if _, err := store.SavePost(ctx, in); err != nil {
				t.Fatal(err)
			}
			time.Sleep(2 * time.Millisecond)
		}
		repo = store
	}

	idx, err := suggest.NewTagIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	suggester := suggest.NewSuggester(repo, idx, &cfg.Gallery)
	_ = suggester.Sync(ctx)

	srv := NewServer(
		gallery.NewCoordinator(repo, &cfg.Gallery),
		suggester,
		repo,
		auth.NewMemoryProvider(&cfg.Auth),
		cfg,
		zap.NewNop(),
	)
	return &testEnv{srv: srv, handler: srv.Router(), repo: repo}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", auth.Credentials{Email: "admin@example.com", Password: "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d: %s", w.Code, w.Body.String())
	}
	var s auth.Session
	decode(t, w, &s)
	return s.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type pageBody struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Ratings    []string `json:"ratings"`
	Filtered   bool     `json:"filtered"`
	Suggestion string   `json:"suggestion"`
}

func (p pageBody) ids() string {
	out := ""
	for _, it := range p.Items {
		out += it.ID + " "
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleListPosts(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t)

	tests := []struct {
		name     string
		target   string
		token    string
		wantIDs  string
		filtered bool
	}{
		{"anonymous sees safe only", "/api/v1/posts", "", "p3 p2 p1 ", false},
		{"anonymous cannot widen ratings", "/api/v1/posts?rating=safe,explicit", "", "p3 p2 p1 ", false},
		{"admin widens ratings", "/api/v1/posts?rating=safe,explicit", token, "p4 p3 p2 p1 ", false},
		{"and not query", "/api/v1/posts?tag=cat+-scary", "", "p1 ", true},
		{"or query via q", "/api/v1/posts?q=~cute+~dog", "", "p2 p1 ", true},
		{"paged fast path", "/api/v1/posts?page=2&page_size=2", "", "p1 ", false},
		{"paged slow path past end", "/api/v1/posts?tag=cat&page=5&page_size=2", "", "", true},
		{"huge page fast path", "/api/v1/posts?page=200000000000000000&page_size=50", "", "", false},
		{"huge page slow path", "/api/v1/posts?tag=cat&page=200000000000000000&page_size=50", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, tt.target, tt.token, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status: got %d: %s", w.Code, w.Body.String())
			}
			var body pageBody
			decode(t, w, &body)
			if got := body.ids(); got != tt.wantIDs {
				t.Errorf("items: got %q, want %q", got, tt.wantIDs)
			}
			if body.Filtered != tt.filtered {
				t.Errorf("filtered: got %v", body.Filtered)
			}
		})
	}
}

func TestHandleListPosts_SuggestsCorrection(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/v1/posts?tag=cta", "", nil)
	var body pageBody
	decode(t, w, &body)
	if body.Total != 0 || body.TotalPages != 1 {
		t.Errorf("total: got %d pages %d", body.Total, body.TotalPages)
	}
	if body.Suggestion != "cat" {
		t.Errorf("suggestion: got %q", body.Suggestion)
	}
}

func TestHandleListPosts_BadInput(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, target := range []string{"/api/v1/posts?page=abc", "/api/v1/posts?page_size=-1", "/api/v1/tags?limit=x"} {
		if w := e.do(t, http.MethodGet, target, "", nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, w.Code)
		}
	}
}

func TestHandleGetPost(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t)
	if w := e.do(t, http.MethodGet, "/api/v1/posts/p1", "", nil); w.Code != http.StatusOK {
		t.Errorf("safe post: status %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/posts/p4", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("explicit post anonymously: status %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/posts/p4", token, nil); w.Code != http.StatusOK {
		t.Errorf("explicit post as admin: status %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/posts/missing", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing post: status %d", w.Code)
	}
}

func TestHandleUpdateAndDeletePost(t *testing.T) {
	e := newTestEnv(t, nil)
	update := map[string]interface{}{"rating": "questionable", "tags": []models.Tag{{Name: "kitten"}}}

	if w := e.do(t, http.MethodPatch, "/api/v1/posts/p1", "", update); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous update: status %d, want 401", w.Code)
	}
	token := e.login(t)

	w := e.do(t, http.MethodPatch, "/api/v1/posts/p1", token, update)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", w.Code, w.Body.String())
	}
	var post models.Post
	decode(t, w, &post)
	if post.Rating != models.RatingQuestionable || len(post.Tags) != 1 || post.Tags[0].Name != "kitten" {
		t.Errorf("updated post: %+v", post)
	}

	if w := e.do(t, http.MethodPatch, "/api/v1/posts/p1", token, map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty update: status %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPatch, "/api/v1/posts/p1", token, map[string]string{"rating": "spicy"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad rating: status %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPatch, "/api/v1/posts/nope", token, update); w.Code != http.StatusConflict {
		t.Errorf("update missing: status %d, want 409", w.Code)
	}

	if w := e.do(t, http.MethodDelete, "/api/v1/posts/p2", token, nil); w.Code != http.StatusOK {
		t.Errorf("delete: status %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/posts/p2", token, nil); w.Code != http.StatusConflict {
		t.Errorf("delete again: status %d, want 409", w.Code)
	}
}

func TestHandleListTags(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/v1/tags", "", nil)
	var body struct {
		Tags []models.Tag `json:"tags"`
	}
	decode(t, w, &body)
	if len(body.Tags) == 0 || body.Tags[0].Name != "cat" || body.Tags[0].Count != 2 {
		t.Fatalf("tags: %+v", body.Tags)
	}
	for _, tag := range body.Tags {
		if tag.Name == "lewd" {
			t.Error("explicit-only tag listed for anonymous caller")
		}
	}

	w = e.do(t, http.MethodGet, "/api/v1/tags?limit=1&rating=safe,explicit", e.login(t), nil)
	decode(t, w, &body)
	if len(body.Tags) != 1 || body.Tags[0].Count != 3 {
		t.Errorf("admin tags: %+v", body.Tags)
	}
}

func TestHandleAutocomplete(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/v1/tags/autocomplete?q=dog+-sc", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var body struct {
		Suggestions []suggest.Completion `json:"suggestions"`
	}
	decode(t, w, &body)
	if len(body.Suggestions) != 1 || body.Suggestions[0].Value != "dog -scary" {
		t.Errorf("suggestions: %+v", body.Suggestions)
	}
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	if w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", auth.Credentials{Email: "admin@example.com", Password: "nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password: status %d, want 401", w.Code)
	}
	token := e.login(t)

	var session map[string]interface{}
	decode(t, e.do(t, http.MethodGet, "/api/v1/auth/session", token, nil), &session)
	if session["authenticated"] != true || session["email"] != "admin@example.com" {
		t.Errorf("session: %v", session)
	}

	if w := e.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil); w.Code != http.StatusOK {
		t.Errorf("logout: status %d", w.Code)
	}
	session = nil
	decode(t, e.do(t, http.MethodGet, "/api/v1/auth/session", token, nil), &session)
	if session["authenticated"] != false {
		t.Errorf("session after logout: %v", session)
	}
}

func TestHandleStatus(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/v1/status", "", nil)
	var body map[string]interface{}
	decode(t, w, &body)
	if body["posts"] != float64(4) || body["tags"] != float64(5) {
		t.Errorf("status: %v", body)
	}
}

func TestUnconfiguredRepository(t *testing.T) {
	e := newTestEnv(t, storage.Unconfigured{})
	for _, target := range []string{"/api/v1/posts", "/api/v1/posts?tag=cat", "/api/v1/tags", "/api/v1/status"} {
		if w := e.do(t, http.MethodGet, target, "", nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d, want 503", target, w.Code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrConfiguration, http.StatusServiceUnavailable},
		{fmt.Errorf("post x: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("post x: %w", storage.ErrNoRowsUpdated), http.StatusConflict},
		{&storage.RepositoryError{Op: "list posts", Err: errors.New("database is locked")}, http.StatusBadGateway},
		{errors.New("unknown rating"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
