// Package throttle paces the messages a dispatcher sends, so a fast dispatcher
// cannot flood slow links or remote workers.
package throttle

import (
	"context"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common"
)

// Transport rate limits Send on an inner transport. Everything else passes
// through unchanged.
type Transport struct {
	farm.Transport
	limiter *common.RateLimiter
}

// waitingTransport additionally forwards WaitReady.
type waitingTransport struct {
	*Transport
	waiter farm.ReadyWaiter
}

func (w waitingTransport) WaitReady(ctx context.Context) error { return w.waiter.WaitReady(ctx) }

// Wrap returns inner paced to rps sends per second. A non-positive rps returns
// inner untouched. The result implements farm.ReadyWaiter whenever inner does.
func Wrap(inner farm.Transport, rps float64, burst int) farm.Transport {
	if rps <= 0 {
		return inner
	}
	t := &Transport{Transport: inner, limiter: common.NewRateLimiter(rps, burst)}
	if w, ok := inner.(farm.ReadyWaiter); ok {
		return waitingTransport{Transport: t, waiter: w}
	}
	return t
}

// Send waits for the limiter, then sends.
func (t *Transport) Send(ctx context.Context, to farm.WorkerID, msg farm.Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Transport.Send(ctx, to, msg)
}
