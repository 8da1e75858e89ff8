package feed

import (
	"context"
	"errors"
)

// ErrClosed is returned by a closed feed
var ErrClosed = errors.New("feed: closed")

// LocalFeed delivers signals inside one process
type LocalFeed struct {
	hub *hub
}

// NewLocalFeed creates an in-process feed for single instance deployments
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{hub: newHub()}
}

func (f *LocalFeed) Publish(_ context.Context, userIds ...string) error {
	for _, userId := range userIds {
		if !validUserId(userId) {
			return ErrInvalidUserId
		}
		f.hub.dispatch(userId)
	}
	return nil
}

func (f *LocalFeed) Subscribe(_ context.Context, userId string, fn func()) (func(), error) {
	if !validUserId(userId) {
		return nil, ErrInvalidUserId
	}
	return f.hub.add(userId, fn)
}

func (f *LocalFeed) Close() error {
	f.hub.close()
	return nil
}
