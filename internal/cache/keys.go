package cache

import (
	"crypto/md5" //nolint:gosec // key derivation only, not a security boundary
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	// keySeparator joins a scope and its discriminator.
	keySeparator = ":"

	// partSeparator joins the canonical parts before hashing.
	partSeparator = "|"

	// coordinatePrecision rounds coordinates so near-identical geographic
	// queries share one cache entry.
	coordinatePrecision = 4
)

// Coordinate is a latitude/longitude pair used in route and place lookups.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Key hashes parts into a fixed-width MD5 hex digest prefixed with scope.
// The same logical input always yields the same key.
func Key(scope string, parts ...any) string {
	return scope + keySeparator + Digest(parts...)
}

// Digest returns the 32 character hex MD5 of the canonical form of parts.
func Digest(parts ...any) string {
	sum := md5.Sum([]byte(Canonical(parts...))) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// PlainKey joins scope and parts verbatim, e.g. PlainKey("post:detail", 42)
// yields "post:detail:42". Only use it for parts without separators.
func PlainKey(scope string, parts ...any) string {
	var b strings.Builder

	b.WriteString(scope)

	for _, part := range parts {
		b.WriteString(keySeparator)
		b.WriteString(canonicalPart(part))
	}

	return b.String()
}

// Canonical renders parts into the delimiter-joined string that Key hashes.
func Canonical(parts ...any) string {
	rendered := make([]string, len(parts))
	for i, part := range parts {
		rendered[i] = canonicalPart(part)
	}

	return strings.Join(rendered, partSeparator)
}

// SortedIDs returns a sorted copy of ids for keys where order carries no meaning.
func SortedIDs(ids []int64) []int64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return sorted
}

// canonicalPart renders one primitive part deterministically.
func canonicalPart(part any) string {
	switch v := part.(type) {
	case nil:
		return ""
	case string:
		return escapePart(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return formatCoordinate(float64(v))
	case float64:
		return formatCoordinate(v)
	case Coordinate:
		return formatCoordinate(v.Lat) + "," + formatCoordinate(v.Lng)
	case []Coordinate:
		points := make([]string, len(v))
		for i, c := range v {
			points[i] = canonicalPart(c)
		}
		return strings.Join(points, ";")
	case []int64:
		ids := make([]string, len(v))
		for i, id := range v {
			ids[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(ids, ",")
	case []string:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = escapePart(item)
		}
		return strings.Join(items, ",")
	case fmt.Stringer:
		return escapePart(v.String())
	default:
		return escapePart(fmt.Sprint(v))
	}
}

// partEscaper backslash-escapes the separators of the canonical form so
// free-text parts cannot shift a boundary.
var partEscaper = strings.NewReplacer(`\`, `\\`, partSeparator, `\`+partSeparator, ",", `\,`, ";", `\;`)

func escapePart(s string) string {
	return partEscaper.Replace(s)
}

// formatCoordinate rounds to a fixed number of decimals and normalizes negative zero.
func formatCoordinate(v float64) string {
	s := strconv.FormatFloat(v, 'f', coordinatePrecision, 64)
	if s == "-0.0000" {
		return "0.0000"
	}
	return s
}
