package feed

import (
	"errors"
	"net/http"

	"timeline-service/internal/content"
	"timeline-service/internal/shared/httpx"
)

type Handler struct {
	svc             Service
	defaultPageSize int
	maxPageSize     int
}

func NewHandler(svc Service, defaultPageSize, maxPageSize int) *Handler {
	if defaultPageSize < 1 {
		defaultPageSize = 20
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &Handler{svc: svc, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// Protected: curated feed of the current user
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	feedType := r.URL.Query().Get("type")
	if feedType == "" {
		feedType = string(content.ScopeHome)
	}
	page := httpx.QueryInt(r, "page", 1)
	pageSize := httpx.QueryInt(r, "page_size", h.defaultPageSize)
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}

	res, err := h.svc.GetFeed(r.Context(), uid, feedType, page, pageSize)
	if err != nil {
		return h.writeFeedError(w, err)
	}
	httpx.WriteJSON(w, res, http.StatusOK)
	return nil
}

// Protected: best-effort interaction telemetry; always acks on
// well-formed input.
func (h *Handler) TrackInteraction(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	in, err := httpx.Decode[TrackInteractionRequest](r)
	if err != nil {
		return err
	}
	if in.FeedItemID == "" || in.Action == "" {
		return errors.New("feed_item_id and action are required")
	}
	h.svc.TrackInteraction(r.Context(), uid, in)
	httpx.WriteJSON(w, map[string]string{"status": "accepted"}, http.StatusAccepted)
	return nil
}

// Protected, rate-limited: force a rebuild of one feed scope
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) error {
	uid, err := httpx.UserFromCtx(r)
	if err != nil {
		return err
	}
	feedType := r.URL.Query().Get("type")
	if feedType == "" {
		feedType = string(content.ScopeHome)
	}
	if err := h.svc.Rebuild(r.Context(), uid, feedType); err != nil {
		return h.writeFeedError(w, err)
	}
	httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	return nil
}

// Protected: drop cached timelines for a user (admin clear); simple
// auth gate, tighten to admin if roles are added later
func (h *Handler) InvalidateFeed(w http.ResponseWriter, r *http.Request) error {
	if _, err := httpx.UserFromCtx(r); err != nil {
		return err
	}
	uid := r.PathValue("user_id")
	if uid == "" {
		return errors.New("user_id is required")
	}
	feedType := r.URL.Query().Get("type")

	var err error
	if feedType == "" {
		err = h.svc.InvalidateAll(r.Context(), uid)
	} else {
		err = h.svc.Invalidate(r.Context(), uid, feedType)
	}
	if err != nil {
		return h.writeFeedError(w, err)
	}
	httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	return nil
}

func (h *Handler) writeFeedError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, content.ErrInvalidScope):
		httpx.WriteError(w, http.StatusBadRequest, err, "bad_feed_type")
		return nil
	case errors.Is(err, ErrFeedUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, err, "retry_later")
		return nil
	}
	return err
}
