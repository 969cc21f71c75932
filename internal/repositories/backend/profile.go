package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/textutil"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type profileCheckRequest struct {
	Username string `json:"username"`
	UserID   string `json:"user_id,omitempty"`
}

// FetchProfile calls POST /api/profile/check. A reply with success=false is reported as not found
// carrying the back-end message.
func (c *Client) FetchProfile(ctx context.Context, handle, viewer string) (domain.ProfileResult, error) {
	const op = "backend.profile.check"
	body, err := c.do(ctx, op, http.MethodPost, "/api/profile/check", profileCheckRequest{
		Username: handle,
		UserID:   strings.TrimSpace(viewer),
	})
	if err != nil {
		return domain.ProfileResult{}, err
	}
	doc, err := parseJSON(op, body)
	if err != nil {
		return domain.ProfileResult{}, err
	}

	profile := doc.Get("profile")
	if !doc.Get("success").Bool() || !profile.IsObject() {
		return domain.ProfileResult{}, repositories.NewNotFoundError(op, strings.TrimSpace(doc.Get("message").String()))
	}

	result := domain.ProfileResult{
		Profile:  decodeProfile(profile, doc.Get("posts_data")),
		Comments: decodeComments(doc.Get("comments_data")),
	}
	if activities := doc.Get("user_activities"); activities.IsObject() {
		bundle := decodeActivityBundle(activities)
		result.SeedActivities = &bundle
	}
	if sub := doc.Get("has_active_subscription"); sub.Exists() {
		result.EntitlementKnown = true
		result.EntitlementActive = sub.Bool()
	}
	return result, nil
}

// PollEnrichment calls GET /api/profile/{handle}/followers. Unknown statuses are reported as failed.
func (c *Client) PollEnrichment(ctx context.Context, handle string) (domain.EnrichmentResult, error) {
	const op = "backend.profile.followers"
	body, err := c.do(ctx, op, http.MethodGet, "/api/profile/"+url.PathEscape(handle)+"/followers", nil)
	if err != nil {
		return domain.EnrichmentResult{}, err
	}
	doc, err := parseJSON(op, body)
	if err != nil {
		return domain.EnrichmentResult{}, err
	}

	result := domain.EnrichmentResult{
		Status:  domain.EnrichmentStatus(strings.ToLower(strings.TrimSpace(doc.Get("status").String()))),
		Message: strings.TrimSpace(doc.Get("message").String()),
	}
	switch result.Status {
	case domain.EnrichmentPending, domain.EnrichmentProcessing, domain.EnrichmentFailed:
	case domain.EnrichmentCompleted:
		rows := doc.Get("mutual_followers")
		if !rows.IsArray() {
			rows = doc.Get("followers")
		}
		result.MutualConnections = decodeConnections(rows)
	default:
		result.Status = domain.EnrichmentFailed
	}
	return result, nil
}

func decodeProfile(profile, topLevelPosts gjson.Result) domain.ProfileSnapshot {
	posts := topLevelPosts
	if !posts.IsArray() {
		posts = profile.Get("posts_data")
	}
	snapshot := domain.ProfileSnapshot{
		Username:    strings.TrimSpace(profile.Get("username").String()),
		FullName:    textutil.SanitizeText(profile.Get("full_name").String()),
		Biography:   textutil.SanitizeText(profile.Get("biography").String()),
		AvatarURL:   strings.TrimSpace(profile.Get("profile_pic_url").String()),
		PostsCount:  profile.Get("posts_count").Int(),
		Followers:   profile.Get("followers_count").Int(),
		Following:   profile.Get("following_count").Int(),
		IsVerified:  profile.Get("is_verified").Bool(),
		IsPrivate:   profile.Get("is_private").Bool(),
		IsBusiness:  profile.Get("is_business").Bool(),
		ExternalURL: strings.TrimSpace(profile.Get("external_url").String()),
	}
	snapshot.LastScrapedAt = parseTimestamp(profile.Get("last_scraped").String())
	for _, post := range posts.Array() {
		snapshot.RecentPosts = append(snapshot.RecentPosts, domain.Post{
			Shortcode:    post.Get("shortcode").String(),
			URL:          post.Get("url").String(),
			Caption:      textutil.SanitizeText(post.Get("caption").String()),
			Likes:        post.Get("likes").Int(),
			Comments:     post.Get("comments").Int(),
			IsVideo:      post.Get("is_video").Bool(),
			ThumbnailURL: post.Get("thumbnail_url").String(),
			TakenAt:      parseTimestamp(post.Get("timestamp").String()),
		})
	}
	return snapshot
}

func decodeComments(rows gjson.Result) []domain.Comment {
	var comments []domain.Comment
	for _, row := range rows.Array() {
		comments = append(comments, domain.Comment{
			ID:           row.Get("id").String(),
			Text:         textutil.SanitizeText(row.Get("text").String()),
			Username:     strings.TrimSpace(row.Get("username").String()),
			FullName:     textutil.SanitizeText(row.Get("full_name").String()),
			AvatarURL:    row.Get("profile_pic_url").String(),
			PostURL:      row.Get("post_url").String(),
			PostImageURL: row.Get("post_image_url").String(),
		})
	}
	return comments
}

func decodeActivityBundle(doc gjson.Result) domain.ActivityBundle {
	return domain.ActivityBundle{
		RecentLikes:    decodeActivities(doc.Get("recent_likes")),
		RecentFollows:  decodeActivities(doc.Get("recent_follows")),
		RecentComments: decodeActivities(doc.Get("recent_comments")),
		RecentMessages: decodeActivities(doc.Get("recent_messages")),
	}
}

func decodeActivities(rows gjson.Result) []domain.ActivityItem {
	var items []domain.ActivityItem
	for _, row := range rows.Array() {
		username := strings.TrimSpace(row.Get("username").String())
		display := textutil.SanitizeText(row.Get("full_name").String())
		if display == "" {
			display = username
		}
		items = append(items, domain.ActivityItem{
			Username:    username,
			DisplayName: display,
			AvatarRef:   row.Get("profile_pic_url").String(),
			ActionLabel: row.Get("action").String(),
			StatusLabel: row.Get("status").String(),
			Timestamp:   parseTimestamp(row.Get("timestamp").String()),
			Provenance:  domain.ProvenanceReal,
		})
	}
	return items
}

func decodeConnections(rows gjson.Result) []domain.MutualConnection {
	connections := make([]domain.MutualConnection, 0, len(rows.Array()))
	for _, row := range rows.Array() {
		username := strings.TrimSpace(row.Get("username").String())
		if username == "" {
			continue
		}
		connections = append(connections, domain.MutualConnection{
			ID:         row.Get("follower_pk").String(),
			Username:   username,
			FullName:   textutil.SanitizeText(row.Get("full_name").String()),
			AvatarURL:  row.Get("profile_pic_url").String(),
			IsVerified: row.Get("is_verified").Bool(),
			IsPrivate:  row.Get("is_private").Bool(),
		})
	}
	return connections
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
