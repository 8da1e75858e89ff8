package entity

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrDuplicate is returned by stores when a unique key already exists
var ErrDuplicate = errors.New("duplicate entry")

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// PairKey identifies the one-to-one conversation between two users.
// Format: {min(userA,userB)}:{max(userA,userB)}
// ":" separates the ids so ids containing "_" stay unambiguous.
func PairKey(userA, userB string) string {
	users := []string{userA, userB}
	slices.Sort(users)
	return strings.Join(users, ":")
}
