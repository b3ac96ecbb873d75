package counter

import (
	"strconv"
	"strings"
)

// LikeCountField is the hash field holding the like count in a like key.
// The key also tracks in-flight writes so seeding never races a writer.
const LikeCountField = "count"

// epochField changes on every like write that begins or finishes.
const epochField = "epoch"

const (
	likeKeyPrefix   = "counter:like:post:"
	viewKeyPrefix   = "counter:view:post:"
	markerKeyPrefix = "counter:view_seen:post:"
)

// LikeKey returns the fast like counter hash of a post.
func LikeKey(postID int64) string {
	return likeKeyPrefix + strconv.FormatInt(postID, 10)
}

// ViewKey returns the fast view counter key of a post.
func ViewKey(postID int64) string {
	return viewKeyPrefix + strconv.FormatInt(postID, 10)
}

// MarkerKey returns the view dedup marker key of a post and viewer.
func MarkerKey(postID, viewerID int64) string {
	return markerKeyPrefix + strconv.FormatInt(postID, 10) + ":" + strconv.FormatInt(viewerID, 10)
}

// parsePostID extracts the post ID from a counter key with the given prefix.
func parsePostID(key, prefix string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func viewKeys(postIDs []int64) []string {
	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = ViewKey(id)
	}
	return keys
}
