package cache

import (
	"strconv"
	"time"

	"github.com/tripnest/tripnest/internal/view"
	"github.com/tripnest/tripnest/pkg/utils"
	"go.uber.org/zap"
)

// Scopes of the domain view caches.
const (
	ScopeFeed        = "feed"
	ScopePostDetail  = "post:detail"
	ScopeUserProfile = "user:profile"
	ScopeSearchPost  = "search:post"
	ScopeSearchUser  = "search:user"
	ScopeComments    = "comments:post"
	ScopeTripList    = "trip:list:user"
	ScopeRoute       = "route"
	ScopeTransport   = "transport_info"
	ScopeLLM         = "llm"
)

// Default expiries of the domain view caches.
const (
	FeedTTL        = 5 * time.Minute
	SearchTTL      = 5 * time.Minute
	CommentsTTL    = 10 * time.Minute
	PostDetailTTL  = 15 * time.Minute
	UserProfileTTL = 20 * time.Minute
	TripListTTL    = 30 * time.Minute
)

// TTLs holds the expiry of every non-permanent view cache.
type TTLs struct {
	Feed        time.Duration
	PostDetail  time.Duration
	UserProfile time.Duration
	Search      time.Duration
	Comments    time.Duration
	TripList    time.Duration
}

// DefaultTTLs returns the built-in expiry policy.
func DefaultTTLs() TTLs {
	return TTLs{
		Feed:        FeedTTL,
		PostDetail:  PostDetailTTL,
		UserProfile: UserProfileTTL,
		Search:      SearchTTL,
		Comments:    CommentsTTL,
		TripList:    TripListTTL,
	}
}

// FeedParams selects one feed page.
type FeedParams struct {
	Page int
	Size int
}

// SearchParams selects one page of search results.
type SearchParams struct {
	Keyword string
	Page    int
	Size    int
}

// RouteParams identifies a route lookup. Coordinates are rounded when keyed.
type RouteParams struct {
	Mode        string
	Origin      Coordinate
	Destination Coordinate
}

// TransportParams identifies a transport lookup across ordered places.
type TransportParams struct {
	Mode     string
	PlaceIDs []string
}

// LLMParams identifies a completion request.
type LLMParams struct {
	Model  string
	Prompt string
}

// Services bundles every domain view cache.
type Services struct {
	Feed        *ViewCache[FeedParams, *view.FeedPage]
	PostDetail  *ViewCache[int64, *view.PostDetail]
	UserProfile *ViewCache[int64, *view.UserProfile]
	SearchPost  *ViewCache[SearchParams, *view.SearchResult]
	SearchUser  *ViewCache[SearchParams, *view.SearchResult]
	Comments    *ViewCache[int64, *view.CommentTree]
	TripList    *ViewCache[int64, *view.TripList]
	Route       *ViewCache[RouteParams, *view.RouteInfo]
	Transport   *ViewCache[TransportParams, *view.TransportInfo]
	LLM         *ViewCache[LLMParams, *view.LLMResponse]
}

// NewServices creates every domain view cache over store.
func NewServices(store Store, ttls TTLs, metrics *Metrics, logger *zap.Logger) *Services {
	return &Services{
		Feed: NewViewCache(store, Options[FeedParams, *view.FeedPage]{
			Scope:     ScopeFeed,
			Class:     Short,
			TTL:       ttls.Feed,
			Key:       feedKey,
			Versioned: true,
			Metrics:   metrics,
		}, logger),
		PostDetail: NewViewCache(store, Options[int64, *view.PostDetail]{
			Scope:   ScopePostDetail,
			Class:   Medium,
			TTL:     ttls.PostDetail,
			Key:     idKey,
			Metrics: metrics,
		}, logger),
		UserProfile: NewViewCache(store, Options[int64, *view.UserProfile]{
			Scope:   ScopeUserProfile,
			Class:   Medium,
			TTL:     ttls.UserProfile,
			Key:     idKey,
			Metrics: metrics,
		}, logger),
		SearchPost: NewViewCache(store, Options[SearchParams, *view.SearchResult]{
			Scope:     ScopeSearchPost,
			Class:     Short,
			TTL:       ttls.Search,
			Key:       searchKey,
			Versioned: true,
			Metrics:   metrics,
		}, logger),
		SearchUser: NewViewCache(store, Options[SearchParams, *view.SearchResult]{
			Scope:     ScopeSearchUser,
			Class:     Short,
			TTL:       ttls.Search,
			Key:       searchKey,
			Versioned: true,
			Metrics:   metrics,
		}, logger),
		Comments: NewViewCache(store, Options[int64, *view.CommentTree]{
			Scope:   ScopeComments,
			Class:   Medium,
			TTL:     ttls.Comments,
			Key:     idKey,
			Metrics: metrics,
		}, logger),
		TripList: NewViewCache(store, Options[int64, *view.TripList]{
			Scope:   ScopeTripList,
			Class:   Long,
			TTL:     ttls.TripList,
			Key:     idKey,
			Metrics: metrics,
		}, logger),
		Route: NewViewCache(store, Options[RouteParams, *view.RouteInfo]{
			Scope:   ScopeRoute,
			Class:   Permanent,
			Key:     routeKey,
			Metrics: metrics,
		}, logger),
		Transport: NewViewCache(store, Options[TransportParams, *view.TransportInfo]{
			Scope:   ScopeTransport,
			Class:   Permanent,
			Key:     transportKey,
			Metrics: metrics,
		}, logger),
		LLM: NewViewCache(store, Options[LLMParams, *view.LLMResponse]{
			Scope:   ScopeLLM,
			Class:   Permanent,
			Key:     llmKey,
			Metrics: metrics,
		}, logger),
	}
}

// Namespaces returns every cache as an admin namespace.
func (s *Services) Namespaces() []Namespace {
	return []Namespace{
		s.Feed, s.PostDetail, s.UserProfile, s.SearchPost, s.SearchUser,
		s.Comments, s.TripList, s.Route, s.Transport, s.LLM,
	}
}

func feedKey(p FeedParams) string {
	return PlainKey("page", p.Page, "size", p.Size)
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func searchKey(p SearchParams) string {
	return Digest(normalizeKeyword(p.Keyword), p.Page, p.Size)
}

func routeKey(p RouteParams) string {
	return Digest(p.Mode, p.Origin, p.Destination)
}

func transportKey(p TransportParams) string {
	return p.Mode + keySeparator + Digest(p.PlaceIDs)
}

func llmKey(p LLMParams) string {
	return Digest(p.Model, p.Prompt)
}

// normalizeKeyword folds case, width and whitespace so equivalent searches share an entry.
func normalizeKeyword(keyword string) string {
	return utils.NormalizeText(keyword)
}
