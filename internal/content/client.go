package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client fetches candidate content and requester data from the post,
// project and users services.
type Client struct {
	postBase    string
	projectBase string
	userBase    string
	httpClient  *http.Client
}

type Option func(*Client)

func WithPostServiceBase(base string) Option {
	return func(c *Client) { c.postBase = strings.TrimRight(base, "/") }
}

func WithProjectServiceBase(base string) Option {
	return func(c *Client) { c.projectBase = strings.TrimRight(base, "/") }
}

func WithUserServiceBase(base string) Option {
	return func(c *Client) { c.userBase = strings.TrimRight(base, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type postPayload struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id"`
	UniversityID string    `json:"university_id"`
	Visibility   string    `json:"visibility"`
	Likes        int       `json:"likes"`
	Comments     int       `json:"comments"`
	CreatedAt    time.Time `json:"created_at"`
}

type projectPayload struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id"`
	UniversityID string    `json:"university_id"`
	Visibility   string    `json:"visibility"`
	OpenNeeds    int       `json:"open_needs"`
	CreatedAt    time.Time `json:"created_at"`
}

type followPayload struct {
	UserID string `json:"user_id"`
}

type profilePayload struct {
	ID           string `json:"id"`
	UniversityID string `json:"university_id"`
}

type subSource struct {
	name  string
	limit int
	fetch func(ctx context.Context) ([]Item, error)
}

// Fetch gathers candidate content for one feed scope. Each sub-source
// is capped and fetched independently: a failing sub-source contributes
// nothing instead of failing the whole fetch. Only when every
// sub-source fails does Fetch return ErrSourceUnavailable. The
// requester's own content is always dropped.
func (c *Client) Fetch(ctx context.Context, scope Scope, req Requester, limits SourceLimits) ([]Item, error) {
	var sources []subSource
	switch scope {
	case ScopeHome:
		followed := followedIDs(req)
		if len(followed) > 0 {
			sources = append(sources, subSource{"followed_posts", limits.FollowedPosts, func(ctx context.Context) ([]Item, error) {
				return c.listPosts(ctx, url.Values{
					"authors": {strings.Join(followed, ",")},
					"limit":   {fmt.Sprint(limits.FollowedPosts)},
				})
			}})
		}
		sources = append(sources,
			subSource{"university_posts", limits.UniversityPosts, func(ctx context.Context) ([]Item, error) {
				return c.listPosts(ctx, url.Values{
					"university_id":   {req.UniversityID},
					"exclude_authors": {strings.Join(followed, ",")},
					"limit":           {fmt.Sprint(limits.UniversityPosts)},
				})
			}},
			subSource{"public_posts", limits.PublicPosts, func(ctx context.Context) ([]Item, error) {
				return c.listPosts(ctx, url.Values{
					"visibility": {string(VisibilityPublic)},
					"limit":      {fmt.Sprint(limits.PublicPosts)},
				})
			}},
			subSource{"university_projects", limits.UniversityProjects, func(ctx context.Context) ([]Item, error) {
				return c.listProjects(ctx, url.Values{
					"university_id": {req.UniversityID},
					"limit":         {fmt.Sprint(limits.UniversityProjects)},
				})
			}},
			subSource{"public_projects", limits.PublicProjects, func(ctx context.Context) ([]Item, error) {
				return c.listProjects(ctx, url.Values{
					"visibility": {string(VisibilityPublic)},
					"limit":      {fmt.Sprint(limits.PublicProjects)},
				})
			}},
		)
	case ScopeUniversity:
		sources = append(sources,
			subSource{"university_posts", limits.UniversityPosts, func(ctx context.Context) ([]Item, error) {
				return c.listPosts(ctx, url.Values{
					"university_id": {req.UniversityID},
					"limit":         {fmt.Sprint(limits.UniversityPosts)},
				})
			}},
			subSource{"university_projects", limits.UniversityProjects, func(ctx context.Context) ([]Item, error) {
				return c.listProjects(ctx, url.Values{
					"university_id": {req.UniversityID},
					"limit":         {fmt.Sprint(limits.UniversityProjects)},
				})
			}},
		)
	case ScopePublic:
		sources = append(sources,
			subSource{"public_posts", limits.PublicPosts, func(ctx context.Context) ([]Item, error) {
				return c.listPosts(ctx, url.Values{
					"visibility": {string(VisibilityPublic)},
					"limit":      {fmt.Sprint(limits.PublicPosts)},
				})
			}},
			subSource{"public_projects", limits.PublicProjects, func(ctx context.Context) ([]Item, error) {
				return c.listProjects(ctx, url.Values{
					"visibility": {string(VisibilityPublic)},
					"limit":      {fmt.Sprint(limits.PublicProjects)},
				})
			}},
		)
	default:
		return nil, ErrInvalidScope
	}

	var (
		items  []Item
		failed int
	)
	for _, src := range sources {
		got, err := src.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("content: sub-source %s failed: %v", src.name, err)
			failed++
			continue
		}
		// Caps hold even when a source over-returns.
		if src.limit > 0 && len(got) > src.limit {
			got = got[:src.limit]
		}
		items = append(items, got...)
	}
	if failed == len(sources) && len(sources) > 0 {
		return nil, ErrSourceUnavailable
	}

	return dedupe(items, req.ID), nil
}

// Hydrate re-reads full bodies for cached references, dropping content
// that has been deleted or is no longer visible to the requester.
func (c *Client) Hydrate(ctx context.Context, refs []Ref, req Requester) ([]Item, error) {
	var (
		items  []Item
		failed int
	)
	for _, ref := range refs {
		item, err := c.getItem(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrNotFound) {
				continue
			}
			log.Printf("content: hydrate %s/%s failed: %v", ref.Type, ref.ID, err)
			failed++
			continue
		}
		if !visibleTo(item, req) {
			continue
		}
		items = append(items, item)
	}
	if failed == len(refs) && len(refs) > 0 {
		return nil, ErrSourceUnavailable
	}
	return items, nil
}

func (c *Client) FollowSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	var follows []followPayload
	if err := c.getJSON(ctx, fmt.Sprintf("%s/users/%s/follows", c.userBase, userID), &follows); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(follows))
	for _, f := range follows {
		set[f.UserID] = struct{}{}
	}
	return set, nil
}

func (c *Client) Profile(ctx context.Context, userID string) (Requester, error) {
	var p profilePayload
	if err := c.getJSON(ctx, fmt.Sprintf("%s/users/%s", c.userBase, userID), &p); err != nil {
		return Requester{}, err
	}
	return Requester{ID: p.ID, UniversityID: p.UniversityID}, nil
}

// FeedConfig returns the user's scoring weights, falling back to the
// defaults when the users service has none.
func (c *Client) FeedConfig(ctx context.Context, userID string) (FeedConfig, error) {
	var cfg FeedConfig
	err := c.getJSON(ctx, fmt.Sprintf("%s/users/%s/feed-config", c.userBase, userID), &cfg)
	if errors.Is(err, ErrNotFound) {
		return DefaultFeedConfig(), nil
	}
	if err != nil {
		return FeedConfig{}, err
	}
	return cfg, nil
}

func (c *Client) listPosts(ctx context.Context, q url.Values) ([]Item, error) {
	var raws []json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("%s/posts?%s", c.postBase, q.Encode()), &raws); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		var p postPayload
		if json.Unmarshal(raw, &p) != nil {
			continue
		}
		items = append(items, Item{
			Type:         TypePost,
			ID:           p.ID,
			AuthorID:     p.AuthorID,
			UniversityID: p.UniversityID,
			Visibility:   Visibility(p.Visibility),
			CreatedAt:    p.CreatedAt,
			Likes:        p.Likes,
			Comments:     p.Comments,
			Raw:          raw,
		})
	}
	return items, nil
}

func (c *Client) listProjects(ctx context.Context, q url.Values) ([]Item, error) {
	var raws []json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("%s/projects?%s", c.projectBase, q.Encode()), &raws); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		var p projectPayload
		if json.Unmarshal(raw, &p) != nil {
			continue
		}
		items = append(items, Item{
			Type:         TypeProject,
			ID:           p.ID,
			AuthorID:     p.AuthorID,
			UniversityID: p.UniversityID,
			Visibility:   Visibility(p.Visibility),
			CreatedAt:    p.CreatedAt,
			OpenNeeds:    p.OpenNeeds,
			Raw:          raw,
		})
	}
	return items, nil
}

func (c *Client) getItem(ctx context.Context, ref Ref) (Item, error) {
	var path string
	switch ref.Type {
	case TypePost:
		path = fmt.Sprintf("%s/posts/%s", c.postBase, ref.ID)
	case TypeProject:
		path = fmt.Sprintf("%s/projects/%s", c.projectBase, ref.ID)
	default:
		return Item{}, fmt.Errorf("unknown content type %q", ref.Type)
	}

	var raw json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return Item{}, err
	}

	if ref.Type == TypePost {
		var p postPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Item{}, err
		}
		return Item{
			Type: TypePost, ID: p.ID, AuthorID: p.AuthorID,
			UniversityID: p.UniversityID, Visibility: Visibility(p.Visibility),
			CreatedAt: p.CreatedAt, Likes: p.Likes, Comments: p.Comments, Raw: raw,
		}, nil
	}
	var p projectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Item{}, err
	}
	return Item{
		Type: TypeProject, ID: p.ID, AuthorID: p.AuthorID,
		UniversityID: p.UniversityID, Visibility: Visibility(p.Visibility),
		CreatedAt: p.CreatedAt, OpenNeeds: p.OpenNeeds, Raw: raw,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("source returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func followedIDs(req Requester) []string {
	ids := make([]string, 0, len(req.Follows))
	for id := range req.Follows {
		ids = append(ids, id)
	}
	return ids
}

func visibleTo(item Item, req Requester) bool {
	switch item.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityUniversity:
		return item.UniversityID == req.UniversityID || req.FollowsAuthor(item.AuthorID)
	default:
		return false
	}
}

func dedupe(items []Item, requesterID string) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.AuthorID == requesterID {
			continue
		}
		key := string(it.Type) + ":" + it.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
