package domain

import "time"

// AnalysisStatus describes where an analysis session is in its lifecycle.
type AnalysisStatus string

const (
	// AnalysisIdle indicates no analysis is running for the viewer.
	AnalysisIdle AnalysisStatus = "idle"
	// AnalysisProfileLoading indicates the profile fetch is in flight.
	AnalysisProfileLoading AnalysisStatus = "profile_loading"
	// AnalysisProfileReady indicates the profile arrived and enrichment has not started yet.
	AnalysisProfileReady AnalysisStatus = "profile_ready"
	// AnalysisPollingEnrichment indicates the enrichment job is being polled.
	AnalysisPollingEnrichment AnalysisStatus = "polling_enrichment"
	// AnalysisEnrichmentReady indicates the enrichment job completed and activities are assembled.
	AnalysisEnrichmentReady AnalysisStatus = "enrichment_ready"
	// AnalysisEnrichmentFailed indicates the enrichment job failed or the poll budget ran out.
	AnalysisEnrichmentFailed AnalysisStatus = "enrichment_failed"
)

// Settled reports whether the status is not going to change without operator input.
func (s AnalysisStatus) Settled() bool {
	switch s {
	case AnalysisProfileLoading, AnalysisProfileReady, AnalysisPollingEnrichment:
		return false
	default:
		return true
	}
}

// EnrichmentStatus mirrors the status reported by the enrichment job.
type EnrichmentStatus string

const (
	EnrichmentPending    EnrichmentStatus = "pending"
	EnrichmentProcessing EnrichmentStatus = "processing"
	EnrichmentCompleted  EnrichmentStatus = "completed"
	EnrichmentFailed     EnrichmentStatus = "failed"
)

// InProgress reports whether the job is still running and should be polled again.
func (s EnrichmentStatus) InProgress() bool {
	return s == EnrichmentPending || s == EnrichmentProcessing
}

// Post is a recent publication attached to a profile.
type Post struct {
	Shortcode    string
	URL          string
	Caption      string
	Likes        int64
	Comments     int64
	IsVideo      bool
	ThumbnailURL string
	TakenAt      time.Time
}

// ProfileSnapshot is the immutable profile record fetched for a handle.
type ProfileSnapshot struct {
	Username      string
	FullName      string
	Biography     string
	AvatarURL     string
	PostsCount    int64
	Followers     int64
	Following     int64
	IsVerified    bool
	IsPrivate     bool
	IsBusiness    bool
	ExternalURL   string
	RecentPosts   []Post
	LastScrapedAt time.Time
}

// Comment is a comment received on one of the analysed profile's posts.
type Comment struct {
	ID           string
	Text         string
	Username     string
	FullName     string
	AvatarURL    string
	PostURL      string
	PostImageURL string
}

// MutualConnection is a single row of enrichment output.
type MutualConnection struct {
	ID         string
	Username   string
	FullName   string
	AvatarURL  string
	IsVerified bool
	IsPrivate  bool
}

// Provenance records where an activity item came from. It is never exposed to viewers.
type Provenance string

const (
	ProvenanceReal      Provenance = "real"
	ProvenanceSynthetic Provenance = "synthetic"
)

// ActivityItem is one displayable row of a feed section.
type ActivityItem struct {
	Username        string
	DisplayName     string
	AvatarRef       string
	ActionLabel     string
	StatusLabel     string
	Text            string
	Timestamp       time.Time
	EngagementCount *int64
	Placeholder     bool
	Provenance      Provenance
}

// ActivityBundle groups the four real activity slices assembled after enrichment.
type ActivityBundle struct {
	RecentLikes    []ActivityItem
	RecentFollows  []ActivityItem
	RecentComments []ActivityItem
	RecentMessages []ActivityItem
}

// Empty reports whether no slice carries any item.
func (b ActivityBundle) Empty() bool {
	return len(b.RecentLikes) == 0 && len(b.RecentFollows) == 0 &&
		len(b.RecentComments) == 0 && len(b.RecentMessages) == 0
}

// ProfileResult is the payload returned by a successful profile fetch.
type ProfileResult struct {
	Profile           ProfileSnapshot
	SeedActivities    *ActivityBundle
	Comments          []Comment
	EntitlementKnown  bool
	EntitlementActive bool
}

// EnrichmentResult is the payload returned by one enrichment poll.
type EnrichmentResult struct {
	Status            EnrichmentStatus
	Message           string
	MutualConnections []MutualConnection
}

// SessionSnapshot is an immutable view of an analysis session.
type SessionSnapshot struct {
	Token        string
	Viewer       string
	Handle       string
	Status       AnalysisStatus
	Profile      *ProfileSnapshot
	Activities   *ActivityBundle
	Comments     []Comment
	PollAttempt  int
	PollStatus   EnrichmentStatus
	ErrorMessage string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// PostCount returns the analysed profile's post count, or fallback when no profile is loaded.
func (s SessionSnapshot) PostCount(fallback int64) int64 {
	if s.Profile == nil {
		return fallback
	}
	return s.Profile.PostsCount
}

// EngagementKey identifies one cached synthetic engagement count.
type EngagementKey struct {
	Viewer   string
	Seed     int
	Username string
}
