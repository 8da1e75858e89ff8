package feed

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
)

// WatchList turns feed signals for userId into fresh listings. list runs once
// before WatchList returns and again after every signal, each call bounded by timeout.
// onChange is not called after cancel.
func WatchList(ctx context.Context, f Feed, userId string, timeout time.Duration,
	list func(ctx context.Context) ([]string, error), onChange func(ids []string)) (cancel func(), err error) {
	watchCtx, cancelWatch := context.WithCancel(ctx)
	relist := func() {
		if watchCtx.Err() != nil {
			return
		}
		opCtx, cancel := context.WithTimeout(watchCtx, timeout)
		defer cancel()
		ids, err := list(opCtx)
		if err != nil {
			log.CtxWarn(opCtx, "relist after feed signal failed: user_id=%s, error=%v", userId, err)
			return
		}
		if watchCtx.Err() == nil {
			onChange(ids)
		}
	}

	unsubscribe, err := f.Subscribe(watchCtx, userId, relist)
	if err != nil {
		cancelWatch()
		return nil, err
	}

	relist()
	return func() {
		cancelWatch()
		unsubscribe()
	}, nil
}
