package domain

// Tab groups feed sections the way the analysis screen presents them.
type Tab string

const (
	TabPopular     Tab = "popular"
	TabLikes       Tab = "likes"
	TabComments    Tab = "comments"
	TabConnections Tab = "connections"
	TabChats       Tab = "chats"
	TabWatchers    Tab = "watchers"
	TabPosts       Tab = "posts"
)

// ParseTab resolves a tab name, defaulting to the likes tab.
func ParseTab(value string) (Tab, bool) {
	switch Tab(value) {
	case TabPopular, TabLikes, TabComments, TabConnections, TabChats, TabWatchers, TabPosts:
		return Tab(value), true
	case "":
		return TabLikes, true
	default:
		return "", false
	}
}

// SectionKind identifies a feed section.
type SectionKind string

const (
	SectionActiveProfiles   SectionKind = "active_profiles"
	SectionRecentLikes      SectionKind = "recent_likes"
	SectionSubscriptions    SectionKind = "subscriptions"
	SectionFollowers        SectionKind = "followers"
	SectionActiveChats      SectionKind = "active_chats"
	SectionWatchers         SectionKind = "watchers"
	SectionPostsReels       SectionKind = "posts_reels"
	SectionSentComments     SectionKind = "sent_comments"
	SectionUnsubscribes     SectionKind = "unsubscribes"
	SectionReceivedComments SectionKind = "received_comments"
)

// DataSource states where a section takes its items from.
type DataSource string

const (
	SourceReal      DataSource = "real"
	SourceSynthetic DataSource = "synthetic"
	SourceMixed     DataSource = "mixed"
)

// BundleSlice names a real data slice a section can read.
type BundleSlice string

const (
	SliceLikes    BundleSlice = "likes"
	SliceFollows  BundleSlice = "follows"
	SliceComments BundleSlice = "comments"
)

// SliceSelector picks the half-open range [From, To) of a real slice.
type SliceSelector struct {
	Slice BundleSlice
	From  int
	To    int
}

// SyntheticParams configures filler generation for a section.
type SyntheticParams struct {
	Count        int
	ActionLabel  string
	IncludeStats bool
}

// SectionSpec is one row of the section table.
type SectionSpec struct {
	Kind      SectionKind
	Title     string
	Tab       Tab
	Source    DataSource
	Real      SliceSelector
	Limit     int
	Seed      int
	Synthetic SyntheticParams
}

// RealBacked reports whether the section renders only real enrichment data. Mixed sections are
// topped up with placeholders and never render empty.
func (s SectionSpec) RealBacked() bool {
	return s.Source == SourceReal
}

const (
	receivedCommentsTotal = 5
	receivedCommentsReal  = 2
)

// SectionTable is the declarative mapping from section to data source, in render order.
var SectionTable = []SectionSpec{
	{
		Kind: SectionActiveProfiles, Title: "Активные профили", Tab: TabLikes, Source: SourceReal,
		Real: SliceSelector{Slice: SliceLikes, From: 0, To: 5}, Limit: 5, Seed: 1,
	},
	{
		Kind: SectionRecentLikes, Title: "Последние лайки", Tab: TabLikes, Source: SourceReal,
		Real: SliceSelector{Slice: SliceLikes, From: 5, To: 9}, Limit: 4, Seed: 2,
	},
	{
		Kind: SectionSentComments, Title: "Отправленные комментарии", Tab: TabComments, Source: SourceSynthetic,
		Limit: 4, Seed: 8,
		Synthetic: SyntheticParams{Count: 6, ActionLabel: "комментировал(-а) пост"},
	},
	{
		Kind: SectionReceivedComments, Title: "Комментарии", Tab: TabComments, Source: SourceMixed,
		Real: SliceSelector{Slice: SliceComments, From: 0, To: receivedCommentsReal}, Limit: receivedCommentsTotal, Seed: 10,
		Synthetic: SyntheticParams{Count: receivedCommentsTotal - receivedCommentsReal, ActionLabel: "что-то написал"},
	},
	{
		Kind: SectionSubscriptions, Title: "Последние подписки", Tab: TabConnections, Source: SourceReal,
		Real: SliceSelector{Slice: SliceFollows, From: 0, To: 3}, Limit: 4, Seed: 3,
	},
	{
		Kind: SectionUnsubscribes, Title: "Последние, кто отписался", Tab: TabConnections, Source: SourceSynthetic,
		Limit: 4, Seed: 9,
		Synthetic: SyntheticParams{Count: 6, ActionLabel: "отписался(-лась)"},
	},
	{
		Kind: SectionFollowers, Title: "Последние кто подписался", Tab: TabConnections, Source: SourceReal,
		Real: SliceSelector{Slice: SliceFollows, From: 3, To: 6}, Limit: 4, Seed: 4,
	},
	{
		Kind: SectionActiveChats, Title: "Активные переписки", Tab: TabChats, Source: SourceSynthetic,
		Limit: 4, Seed: 5,
		Synthetic: SyntheticParams{Count: 4, ActionLabel: "активная переписка"},
	},
	{
		Kind: SectionWatchers, Title: "Наблюдатели", Tab: TabWatchers, Source: SourceSynthetic,
		Limit: 4, Seed: 6,
		Synthetic: SyntheticParams{Count: 4, ActionLabel: "наблюдает за профилем", IncludeStats: true},
	},
	{
		Kind: SectionPostsReels, Title: "Посты и Reels", Tab: TabPosts, Source: SourceSynthetic,
		Limit: 4, Seed: 7,
		Synthetic: SyntheticParams{Count: 4, ActionLabel: "оценил(-а) пост"},
	},
}

// SectionsForTab returns the table rows rendered on the tab, in order.
func SectionsForTab(tab Tab) []SectionSpec {
	out := make([]SectionSpec, 0, 4)
	for _, spec := range SectionTable {
		if spec.Tab == tab {
			out = append(out, spec)
		}
	}
	return out
}

// LookupSection returns the table row for kind.
func LookupSection(kind SectionKind) (SectionSpec, bool) {
	for _, spec := range SectionTable {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return SectionSpec{}, false
}

// CTA is the call to action attached to a rendered section.
type CTA string

const (
	CTANone            CTA = "none"
	CTAPaywall         CTA = "paywall"
	CTADataUnavailable CTA = "data_unavailable"
	CTALoadMore        CTA = "load_more"
)

// GateDecision is the entitlement verdict for one section.
type GateDecision struct {
	Visible bool
	Blurred bool
	CTA     CTA
}

// SectionState distinguishes loading placeholders from composed sections.
type SectionState string

const (
	SectionLoading SectionState = "loading"
	SectionReady   SectionState = "ready"
)

// Section is a composed, gated feed section ready for presentation.
type Section struct {
	Kind         SectionKind
	Title        string
	State        SectionState
	LoadingLabel string
	Items        []ActivityItem
	EmptyLabel   string
	Gate         GateDecision
	CTALabel     string

	// ShowsEngagement is set for sections whose every item carries an engagement count.
	ShowsEngagement bool
}

// PopularMetric is one tile of the popular tab metric grid.
type PopularMetric struct {
	Key       string
	Label     string
	Value     int64
	Formatted string
}
