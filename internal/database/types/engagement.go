package types

import (
	"time"

	"github.com/uptrace/bun"
)

// PostLike is the like relation between a user and a post.
// Unliking soft-deletes the row so a later like revives it.
type PostLike struct {
	bun.BaseModel `bun:"table:post_likes,alias:pl"`

	PostID    int64     `bun:",pk,notnull"                        json:"postId"`
	UserID    int64     `bun:",pk,notnull"                        json:"userId"`
	IsDeleted bool      `bun:",notnull,default:false"             json:"isDeleted"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:",notnull,default:current_timestamp" json:"updatedAt"`
}

// PostCounter is the durable summary of a post's fast counters.
type PostCounter struct {
	bun.BaseModel `bun:"table:post_counters,alias:pc"`

	PostID    int64     `bun:",pk,notnull" json:"postId"`
	LikeCount int64     `bun:",notnull"    json:"likeCount"`
	ViewCount int64     `bun:",notnull"    json:"viewCount"`
	UpdatedAt time.Time `bun:",notnull"    json:"updatedAt"`
}

// PostCount pairs a post with an aggregated count.
type PostCount struct {
	PostID int64 `bun:"post_id"`
	Count  int64 `bun:"count"`
}
