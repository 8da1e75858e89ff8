package feed

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidUserId is returned for ids that cannot be used as a channel name
var ErrInvalidUserId = errors.New("feed: invalid user id")

// Feed carries "your conversations changed" signals to every instance.
// Publishers name the affected users; subscribers recount on each signal.
type Feed interface {
	Publish(ctx context.Context, userIds ...string) error
	// Subscribe calls fn after signals for userId. Bursts are coalesced, so
	// fn may run once for several signals. fn never runs concurrently with itself.
	Subscribe(ctx context.Context, userId string, fn func()) (cancel func(), err error)
	Close() error
}

func validUserId(userId string) bool {
	return userId != "" && !strings.ContainsAny(userId, ".*> \t\r\n")
}
