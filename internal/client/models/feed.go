package models

// FeedMode selects which pagination strategy the feed currently uses.
type FeedMode string

const (
	FeedModeBrowse FeedMode = "browse"
	FeedModeSearch FeedMode = "search"
)

// FeedSource is the cursor endpoint backing browse mode.
type FeedSource string

const (
	FeedSourceAll      FeedSource = "all"
	FeedSourceTrending FeedSource = "trending"
)

// FeedState is a snapshot of the caption feed. Items is a copy owned by the
// caller.
type FeedState struct {
	Items []Caption
	Mode  FeedMode

	// Cursor state, meaningful in browse mode.
	Source    FeedSource
	NextToken string
	HasMore   bool
	Limit     int

	// Offset state, meaningful in search mode.
	Query    string
	Page     int
	PageSize int
	Total    int

	Loading bool
	Err     error
}

// SortOrder orders the derived view of the feed.
type SortOrder string

const (
	SortNewest  SortOrder = "newest"
	SortOldest  SortOrder = "oldest"
	SortPopular SortOrder = "popular"
)

// ViewFilter narrows the visible subset of the feed without mutating it.
type ViewFilter struct {
	Text          string
	Tags          []string
	FavoritesOnly bool
	SortBy        SortOrder
}
