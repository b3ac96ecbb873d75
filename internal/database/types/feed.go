package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Post is a travel note published by a user, optionally attached to a trip.
type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        int64     `bun:",pk,autoincrement"                  json:"id"`
	UserID    int64     `bun:",notnull"                           json:"userId"`
	TripID    int64     `bun:",nullzero"                          json:"tripId,omitempty"`
	Title     string    `bun:",notnull"                           json:"title"`
	Summary   string    `bun:",nullzero"                          json:"summary,omitempty"`
	Content   string    `bun:",notnull"                           json:"content"`
	IsDeleted bool      `bun:",notnull,default:false"             json:"isDeleted"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:",notnull,default:current_timestamp" json:"updatedAt"`

	// Total is filled by paged queries with the full row count.
	Total int64 `bun:"total,scanonly" json:"-"`
}

// User is the public part of an account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:",pk,autoincrement"                  json:"id"`
	Nickname  string    `bun:",notnull"                           json:"nickname"`
	AvatarURL string    `bun:",nullzero"                          json:"avatarUrl,omitempty"`
	Bio       string    `bun:",nullzero"                          json:"bio,omitempty"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"`
}

// Trip is a planned journey owned by a user.
type Trip struct {
	bun.BaseModel `bun:"table:trips,alias:t"`

	ID          int64     `bun:",pk,autoincrement"                  json:"id"`
	OwnerID     int64     `bun:",notnull"                           json:"ownerId"`
	Title       string    `bun:",notnull"                           json:"title"`
	Destination string    `bun:",nullzero"                          json:"destination,omitempty"`
	StartDate   time.Time `bun:",nullzero"                          json:"startDate"`
	EndDate     time.Time `bun:",nullzero"                          json:"endDate"`
	CreatedAt   time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"`
}

// PostImage is an uploaded image of a post. Position 0 is the cover.
type PostImage struct {
	bun.BaseModel `bun:"table:post_images,alias:pi"`

	ID        int64     `bun:",pk,autoincrement"                  json:"id"`
	PostID    int64     `bun:",notnull"                           json:"postId"`
	URL       string    `bun:",notnull"                           json:"url"`
	Position  int       `bun:",notnull,default:0"                 json:"position"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"`
}

// PostComment is a comment on a post. ParentID is zero for top-level comments.
type PostComment struct {
	bun.BaseModel `bun:"table:post_comments,alias:pcm"`

	ID        int64     `bun:",pk,autoincrement"                  json:"id"`
	PostID    int64     `bun:",notnull"                           json:"postId"`
	UserID    int64     `bun:",notnull"                           json:"userId"`
	ParentID  int64     `bun:",nullzero"                          json:"parentId,omitempty"`
	Content   string    `bun:",notnull"                           json:"content"`
	IsDeleted bool      `bun:",notnull,default:false"             json:"isDeleted"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"`
}
