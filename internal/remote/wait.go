// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/nestctl/internal/remote/rpc"
)

// DefaultPlaybackWait is how long WaitForPlayback waits for Player.OnPlay.
const DefaultPlaybackWait = 4 * time.Second

// WaitForNotification waits for the next notification named method from s.
// The subscription is removed on every return path.
func WaitForNotification(ctx context.Context, s Subscriber, method string, timeout time.Duration) (rpc.Notification, error) {
	return Expect(s, method)(ctx, timeout)
}

// Expect subscribes to the next notification named method immediately and
// returns a function that waits for it. Subscribing before a command is sent
// guarantees a fast reply is not missed. The returned function must be
// called exactly once; it removes the subscription.
func Expect(s Subscriber, method string) func(ctx context.Context, timeout time.Duration) (rpc.Notification, error) {
	got := make(chan rpc.Notification, 1)
	unsubscribe := s.Subscribe(ObserverFuncs{
		OnNotification: func(n rpc.Notification) {
			if n.Method != method {
				return
			}
			select {
			case got <- n:
			default:
			}
		},
	})

	return func(ctx context.Context, timeout time.Duration) (rpc.Notification, error) {
		defer unsubscribe()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case n := <-got:
			return n, nil
		case <-timer.C:
			return rpc.Notification{}, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, method, timeout)
		case <-ctx.Done():
			return rpc.Notification{}, ctx.Err()
		}
	}
}

// WaitForPlayback waits up to DefaultPlaybackWait for the player to report
// that playback started.
func WaitForPlayback(ctx context.Context, s Subscriber) (rpc.Notification, error) {
	return WaitForNotification(ctx, s, NotifyPlay, DefaultPlaybackWait)
}
