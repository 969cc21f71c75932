package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/httpx"
	"github.com/kalitka1293/instagram-scan/internal/services"
)

// AnalysisHandlers exposes the analysis session and its feed to the viewer.
type AnalysisHandlers struct {
	analysis services.AnalysisService
	limiter  rateLimiter
}

// AnalysisOption customises analysis handlers.
type AnalysisOption func(*AnalysisHandlers)

// WithSubmitRateLimit caps analysis submissions per viewer.
func WithSubmitRateLimit(perMinute, burst int, clock func() time.Time) AnalysisOption {
	return func(h *AnalysisHandlers) {
		h.limiter = newRateLimiter(perMinute, burst, clock)
	}
}

// NewAnalysisHandlers constructs analysis handlers.
func NewAnalysisHandlers(analysis services.AnalysisService, opts ...AnalysisOption) *AnalysisHandlers {
	h := &AnalysisHandlers{analysis: analysis}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers analysis endpoints under the provided router.
func (h *AnalysisHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submit)
	r.Get("/", h.snapshot)
	r.Get("/feed", h.feed)
	r.Get("/metrics", h.metrics)
}

type submitAnalysisRequest struct {
	Handle string `json:"handle"`
}

type profilePayload struct {
	Username    string        `json:"username"`
	FullName    string        `json:"fullName,omitempty"`
	Biography   string        `json:"biography,omitempty"`
	AvatarURL   string        `json:"avatarUrl,omitempty"`
	PostsCount  int64         `json:"postsCount"`
	Followers   int64         `json:"followers"`
	Following   int64         `json:"following"`
	IsVerified  bool          `json:"isVerified"`
	IsPrivate   bool          `json:"isPrivate"`
	IsBusiness  bool          `json:"isBusiness"`
	ExternalURL string        `json:"externalUrl,omitempty"`
	RecentPosts []postPayload `json:"recentPosts,omitempty"`
}

type postPayload struct {
	Shortcode    string `json:"shortcode"`
	URL          string `json:"url,omitempty"`
	Caption      string `json:"caption,omitempty"`
	Likes        int64  `json:"likes"`
	Comments     int64  `json:"comments"`
	IsVideo      bool   `json:"isVideo"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	TakenAt      string `json:"takenAt,omitempty"`
}

type sessionPayload struct {
	Handle       string          `json:"handle,omitempty"`
	Status       string          `json:"status"`
	PollStatus   string          `json:"pollStatus,omitempty"`
	PollAttempt  int             `json:"pollAttempt"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Profile      *profilePayload `json:"profile,omitempty"`
	StartedAt    string          `json:"startedAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
}

// itemPayload never carries provenance; real and synthetic rows look alike to the viewer.
type itemPayload struct {
	Username        string `json:"username"`
	DisplayName     string `json:"displayName,omitempty"`
	Avatar          string `json:"avatar,omitempty"`
	Action          string `json:"action,omitempty"`
	Status          string `json:"status,omitempty"`
	Text            string `json:"text,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	EngagementCount *int64 `json:"engagementCount,omitempty"`
	Placeholder     bool   `json:"placeholder,omitempty"`
}

type gatePayload struct {
	Visible  bool   `json:"visible"`
	Blurred  bool   `json:"blurred"`
	CTA      string `json:"cta"`
	CTALabel string `json:"ctaLabel,omitempty"`
}

type sectionPayload struct {
	Kind         string        `json:"kind"`
	Title        string        `json:"title"`
	State        string        `json:"state"`
	LoadingLabel string        `json:"loadingLabel,omitempty"`
	EmptyLabel   string        `json:"emptyLabel,omitempty"`
	Items        []itemPayload `json:"items"`
	Gate         gatePayload   `json:"gate"`
}

type feedResponse struct {
	Tab      string           `json:"tab"`
	Session  sessionPayload   `json:"session"`
	Sections []sectionPayload `json:"sections"`
}

type metricPayload struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Value     int64  `json:"value"`
	Formatted string `json:"formatted"`
}

type metricsResponse struct {
	Session     sessionPayload  `json:"session"`
	Metrics     []metricPayload `json:"metrics"`
	RecentPosts []postPayload   `json:"recentPosts"`
}

func (h *AnalysisHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(viewer) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many analysis requests", http.StatusTooManyRequests))
		return
	}

	var req submitAnalysisRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	snapshot, err := h.analysis.Submit(ctx, viewer, req.Handle)
	if err != nil {
		writeAnalysisError(ctx, w, err, snapshot)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, toSessionPayload(snapshot))
}

func (h *AnalysisHandlers) snapshot(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	snapshot, err := h.analysis.Snapshot(viewer)
	if err != nil {
		writeAnalysisError(r.Context(), w, err, snapshot)
		return
	}
	writeJSONResponse(w, http.StatusOK, toSessionPayload(snapshot))
}

func (h *AnalysisHandlers) feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	tab, ok := domain.ParseTab(r.URL.Query().Get("tab"))
	if !ok || tab == domain.TabPopular {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_tab", "tab must be one of likes, comments, connections, chats, watchers, posts", http.StatusBadRequest))
		return
	}

	sections, snapshot, err := h.analysis.Feed(ctx, viewer, tab)
	if err != nil {
		writeAnalysisError(ctx, w, err, snapshot)
		return
	}

	resp := feedResponse{
		Tab:      string(tab),
		Session:  toSessionPayload(snapshot),
		Sections: make([]sectionPayload, 0, len(sections)),
	}
	for _, section := range sections {
		resp.Sections = append(resp.Sections, toSectionPayload(section))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AnalysisHandlers) metrics(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	snapshot, err := h.analysis.Snapshot(viewer)
	if err != nil {
		writeAnalysisError(r.Context(), w, err, snapshot)
		return
	}

	metrics := services.PopularMetrics(snapshot)
	posts := services.RecentPosts(snapshot)
	resp := metricsResponse{
		Session:     toSessionPayload(snapshot),
		Metrics:     make([]metricPayload, 0, len(metrics)),
		RecentPosts: make([]postPayload, 0, len(posts)),
	}
	for _, metric := range metrics {
		resp.Metrics = append(resp.Metrics, metricPayload{
			Key:       metric.Key,
			Label:     metric.Label,
			Value:     metric.Value,
			Formatted: metric.Formatted,
		})
	}
	for _, post := range posts {
		resp.RecentPosts = append(resp.RecentPosts, toPostPayload(post))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func writeAnalysisError(ctx context.Context, w http.ResponseWriter, err error, snapshot services.SessionSnapshot) {
	message := snapshot.ErrorMessage
	switch {
	case errors.Is(err, services.ErrAnalysisInvalidHandle):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_handle", "handle must not be blank", http.StatusBadRequest))
	case errors.Is(err, services.ErrAnalysisProfileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", message, http.StatusNotFound))
	case errors.Is(err, services.ErrAnalysisProfileInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("profile_invalid", message, http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrAnalysisUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", message, http.StatusBadGateway))
	case errors.Is(err, services.ErrWorkspaceViewerRequired):
		httpx.WriteError(ctx, w, httpx.NewError("viewer_required", "viewer identity required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrWorkspaceClosed), errors.Is(err, services.ErrAnalysisSessionClosed):
		httpx.WriteError(ctx, w, httpx.NewError("shutting_down", "service is shutting down", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("analysis_error", "failed to process analysis request", http.StatusInternalServerError))
	}
}

func toSessionPayload(snapshot services.SessionSnapshot) sessionPayload {
	payload := sessionPayload{
		Handle:       snapshot.Handle,
		Status:       string(snapshot.Status),
		PollStatus:   string(snapshot.PollStatus),
		PollAttempt:  snapshot.PollAttempt,
		ErrorMessage: snapshot.ErrorMessage,
		StartedAt:    formatTime(snapshot.StartedAt),
		UpdatedAt:    formatTime(snapshot.UpdatedAt),
	}
	if payload.Status == "" {
		payload.Status = string(domain.AnalysisIdle)
	}
	if p := snapshot.Profile; p != nil {
		profile := profilePayload{
			Username:    p.Username,
			FullName:    p.FullName,
			Biography:   p.Biography,
			AvatarURL:   p.AvatarURL,
			PostsCount:  p.PostsCount,
			Followers:   p.Followers,
			Following:   p.Following,
			IsVerified:  p.IsVerified,
			IsPrivate:   p.IsPrivate,
			IsBusiness:  p.IsBusiness,
			ExternalURL: p.ExternalURL,
		}
		for _, post := range p.RecentPosts {
			profile.RecentPosts = append(profile.RecentPosts, toPostPayload(post))
		}
		payload.Profile = &profile
	}
	return payload
}

func toPostPayload(post domain.Post) postPayload {
	return postPayload{
		Shortcode:    post.Shortcode,
		URL:          post.URL,
		Caption:      post.Caption,
		Likes:        post.Likes,
		Comments:     post.Comments,
		IsVideo:      post.IsVideo,
		ThumbnailURL: post.ThumbnailURL,
		TakenAt:      formatTime(post.TakenAt),
	}
}

func toSectionPayload(section services.Section) sectionPayload {
	payload := sectionPayload{
		Kind:         string(section.Kind),
		Title:        section.Title,
		State:        string(section.State),
		LoadingLabel: section.LoadingLabel,
		EmptyLabel:   section.EmptyLabel,
		Items:        make([]itemPayload, 0, len(section.Items)),
		Gate: gatePayload{
			Visible:  section.Gate.Visible,
			Blurred:  section.Gate.Blurred,
			CTA:      string(section.Gate.CTA),
			CTALabel: section.CTALabel,
		},
	}
	for _, item := range section.Items {
		entry := itemPayload{
			Username:    item.Username,
			DisplayName: item.DisplayName,
			Avatar:      item.AvatarRef,
			Action:      item.ActionLabel,
			Status:      item.StatusLabel,
			Text:        item.Text,
			Timestamp:   formatTime(item.Timestamp),
			Placeholder: item.Placeholder,
		}
		if section.ShowsEngagement {
			entry.EngagementCount = item.EngagementCount
		}
		payload.Items = append(payload.Items, entry)
	}
	return payload
}
