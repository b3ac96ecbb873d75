// Package view defines the read-only composites served from the view caches.
// They are assembled by collaborators on a cache miss and have no identity
// beyond the entities they are built from.
package view

import "time"

// Owner is the public projection of a user shown next to content.
type Owner struct {
	ID        int64  `json:"id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// TripRef is the public projection of the trip a post belongs to.
type TripRef struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Destination string `json:"destination,omitempty"`
}

// Media references an uploaded image.
type Media struct {
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// FeedItem is one assembled post in a feed page.
type FeedItem struct {
	PostID       int64     `json:"postId"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Owner        Owner     `json:"owner"`
	Trip         *TripRef  `json:"trip,omitempty"`
	Cover        *Media    `json:"cover,omitempty"`
	CommentCount int64     `json:"commentCount"`
	LikeCount    int64     `json:"likeCount"`
	ViewCount    int64     `json:"viewCount"`
}

// FeedPage is one page of the social feed.
type FeedPage struct {
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Total int64       `json:"total"`
	Items []*FeedItem `json:"items"`
}

// PostDetail is the full view of a single post.
type PostDetail struct {
	FeedItem

	Content string   `json:"content"`
	Images  []*Media `json:"images"`
}

// Comment is one node of a comment tree.
type Comment struct {
	ID        int64      `json:"id"`
	PostID    int64      `json:"postId"`
	Author    Owner      `json:"author"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Replies   []*Comment `json:"replies,omitempty"`
}

// CommentTree holds the top-level comments of a post with nested replies.
type CommentTree struct {
	PostID   int64      `json:"postId"`
	Total    int64      `json:"total"`
	Comments []*Comment `json:"comments"`
}

// UserProfile is the public profile page of a user.
type UserProfile struct {
	Owner

	Bio       string `json:"bio,omitempty"`
	PostCount int64  `json:"postCount"`
	TripCount int64  `json:"tripCount"`
}

// SearchHit is one match in a search result.
type SearchHit struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResult is one page of post or user search results.
type SearchResult struct {
	Keyword string       `json:"keyword"`
	Page    int          `json:"page"`
	Size    int          `json:"size"`
	Total   int64        `json:"total"`
	Hits    []*SearchHit `json:"hits"`
}

// TripSummary is one entry of a user's trip list.
type TripSummary struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Destination string    `json:"destination,omitempty"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Role        string    `json:"role"`
	MemberCount int       `json:"memberCount"`
}

// TripList is every trip a user owns or joined.
type TripList struct {
	UserID int64          `json:"userId"`
	Trips  []*TripSummary `json:"trips"`
}

// RouteInfo is a resolved route between two coordinates from the map provider.
type RouteInfo struct {
	Mode            string  `json:"mode"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	Polyline        string  `json:"polyline,omitempty"`
}

// TransportLeg is the transport option between two consecutive places.
type TransportLeg struct {
	FromPlaceID     string  `json:"fromPlaceId"`
	ToPlaceID       string  `json:"toPlaceId"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// TransportInfo is the transport plan across an ordered list of places.
type TransportInfo struct {
	Mode string          `json:"mode"`
	Legs []*TransportLeg `json:"legs"`
}

// LLMResponse is a cached completion from the language model provider.
type LLMResponse struct {
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
