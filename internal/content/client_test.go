package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func post(id, author, university, visibility string, likes int) map[string]any {
	return map[string]any{
		"id":            id,
		"author_id":     author,
		"university_id": university,
		"visibility":    visibility,
		"likes":         likes,
		"comments":      0,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}
}

func project(id, author, university, visibility string, needs int) map[string]any {
	return map[string]any{
		"id":            id,
		"author_id":     author,
		"university_id": university,
		"visibility":    visibility,
		"open_needs":    needs,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}
}

func TestFetchHomeAggregatesSources(t *testing.T) {
	postSrv := httptest.NewServer(jsonHandler([]map[string]any{
		post("p1", "friend", "uni-1", "public", 3),
		post("p2", "stranger", "uni-1", "university", 1),
		post("p2", "stranger", "uni-1", "university", 1), // duplicate across sub-sources
		post("own", "me", "uni-1", "public", 9),
	}))
	defer postSrv.Close()
	projectSrv := httptest.NewServer(jsonHandler([]map[string]any{
		project("j1", "builder", "uni-1", "public", 2),
	}))
	defer projectSrv.Close()

	c := NewClient(
		WithPostServiceBase(postSrv.URL),
		WithProjectServiceBase(projectSrv.URL),
	)
	req := Requester{ID: "me", UniversityID: "uni-1", Follows: map[string]struct{}{"friend": {}}}

	items, err := c.Fetch(context.Background(), ScopeHome, req, DefaultSourceLimits())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	ids := map[string]int{}
	for _, it := range items {
		ids[string(it.Type)+":"+it.ID]++
		if it.AuthorID == "me" {
			t.Fatal("requester's own content must be excluded")
		}
	}
	for key, n := range ids {
		if n > 1 {
			t.Fatalf("duplicate item %s emitted %d times", key, n)
		}
	}
	if ids["post:p1"] == 0 || ids["project:j1"] == 0 {
		t.Fatalf("expected posts and projects in the mix: %v", ids)
	}
}

func TestFetchPartialFailureReturnsWhatSucceeded(t *testing.T) {
	postSrv := httptest.NewServer(jsonHandler([]map[string]any{
		post("p1", "a", "uni-1", "public", 0),
	}))
	defer postSrv.Close()
	brokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer brokenSrv.Close()

	c := NewClient(
		WithPostServiceBase(postSrv.URL),
		WithProjectServiceBase(brokenSrv.URL),
	)
	req := Requester{ID: "me", UniversityID: "uni-1"}

	items, err := c.Fetch(context.Background(), ScopePublic, req, DefaultSourceLimits())
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "p1" {
		t.Fatalf("expected the surviving sub-source's items, got %+v", items)
	}
}

func TestFetchTotalFailure(t *testing.T) {
	brokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer brokenSrv.Close()

	c := NewClient(
		WithPostServiceBase(brokenSrv.URL),
		WithProjectServiceBase(brokenSrv.URL),
	)
	req := Requester{ID: "me"}

	if _, err := c.Fetch(context.Background(), ScopePublic, req, DefaultSourceLimits()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchInvalidScope(t *testing.T) {
	c := NewClient()
	if _, err := c.Fetch(context.Background(), Scope("trending"), Requester{}, DefaultSourceLimits()); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestHydrateDropsDeletedAndHidden(t *testing.T) {
	postSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/posts/alive":
			jsonHandler(post("alive", "a", "uni-1", "public", 1))(w, r)
		case "/posts/hidden":
			jsonHandler(post("hidden", "a", "uni-1", "private", 1))(w, r)
		case "/posts/other-uni":
			jsonHandler(post("other-uni", "a", "uni-2", "university", 1))(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	defer postSrv.Close()

	c := NewClient(WithPostServiceBase(postSrv.URL))
	req := Requester{ID: "me", UniversityID: "uni-1"}

	refs := []Ref{
		{Type: TypePost, ID: "alive"},
		{Type: TypePost, ID: "deleted"},
		{Type: TypePost, ID: "hidden"},
		{Type: TypePost, ID: "other-uni"},
	}
	items, err := c.Hydrate(context.Background(), refs, req)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(items) != 1 || items[0].ID != "alive" {
		t.Fatalf("expected only the live visible post, got %+v", items)
	}
}

func TestFeedConfigDefaultsOnNotFound(t *testing.T) {
	userSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer userSrv.Close()

	c := NewClient(WithUserServiceBase(userSrv.URL))
	cfg, err := c.FeedConfig(context.Background(), "u1")
	if err != nil {
		t.Fatalf("feed config: %v", err)
	}
	if cfg != DefaultFeedConfig() {
		t.Fatalf("expected default weights, got %+v", cfg)
	}
}

func TestFollowSet(t *testing.T) {
	userSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u1/follows" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[{"user_id":"a"},{"user_id":"b"}]`)
	}))
	defer userSrv.Close()

	c := NewClient(WithUserServiceBase(userSrv.URL))
	set, err := c.FollowSet(context.Background(), "u1")
	if err != nil {
		t.Fatalf("follow set: %v", err)
	}
	if _, ok := set["a"]; !ok {
		t.Fatalf("missing followed user: %v", set)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 follows, got %d", len(set))
	}
}

func TestParseScope(t *testing.T) {
	for _, valid := range []string{"home", "university", "public"} {
		if _, err := ParseScope(valid); err != nil {
			t.Fatalf("expected %q to parse, got %v", valid, err)
		}
	}
	if _, err := ParseScope("friends"); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}
