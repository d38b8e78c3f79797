package gateway

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/sheepgate/gateway/internal/cluster"
	"github.com/sheepgate/gateway/internal/transport"
	"github.com/sheepgate/gateway/internal/wire"
)

// waiter blocks until every leg in a forward-context has completed or
// the request's retry budget is exhausted, reducing per-leg outcomes
// into one Result, exactly as spec.md §4.D describes. Grounded in
// original_source/sheep/gateway.c's wait_forward_request and in
// widaT-netpoll's defaultPoll.Wait readiness loop (same "poll, handle
// ready fds, repeat" shape), using golang.org/x/sys/unix.Poll in place
// of the source's raw poll(2) call.
type waiter struct {
	membership *cluster.Membership
	pool       connPool
}

func newWaiter(membership *cluster.Membership, pool connPool) *waiter {
	return &waiter{membership: membership, pool: pool}
}

// fatalPollError is panicked when poll itself returns an OS error other
// than EINTR — spec §4.D step 4, §7's only fatal condition. The server
// loop recovers this per connection rather than crashing the process,
// since multi-tenant Go servers cannot abort on one misbehaving
// connection the way the single-process C source does.
type fatalPollError struct{ err error }

func (e fatalPollError) Error() string { return "gateway: fatal poll error: " + e.err.Error() }

// wait drains fc until nr_sent reaches zero, returning the worst
// observed per-leg Result. epoch is the epoch the request was admitted
// under (spec §4.D step 2, §5's "epoch-bounded wait").
func (w *waiter) wait(ctx context.Context, fc *forwardContext, epoch uint32) wire.Result {
	result := wire.Success
	retryBudget := transport.MaxRetryCount

	for fc.nrSent() > 0 {
		pollfds := fc.snapshotPollFDs()
		n, err := unix.Poll(pollfds, int(transport.PollTimeout.Milliseconds()))

		switch {
		case errors.Is(err, unix.EINTR):
			// Interrupted by signal: resume with no state change, no
			// budget consumed (spec §4.D step 3).
			continue

		case err != nil:
			panic(fatalPollError{err})

		case n == 0:
			// Timeout. While the epoch is unchanged, membership has not
			// declared anyone dead, so keep retrying within budget (spec
			// §4.D step 2).
			if retryBudget > 0 && w.membership.NeedRetry(epoch) {
				retryBudget--
				continue
			}
			// Budget exhausted or the view moved on: evict every
			// outstanding socket and report NETWORK_ERROR.
			for i := fc.nrSent() - 1; i >= 0; i-- {
				fc.retireErr(i, w.pool)
			}
			return wire.Reduce(result, wire.NetworkError)

		default:
			result = wire.Reduce(result, w.drainOne(pollfds, fc, epoch))
		}

		select {
		case <-ctx.Done():
			for i := fc.nrSent() - 1; i >= 0; i-- {
				fc.retireErr(i, w.pool)
			}
			return wire.Reduce(result, wire.NetworkError)
		default:
		}
	}
	return result
}

// drainOne finds the first leg with nonzero revents and retires it,
// returning its outcome. Only one leg is drained per iteration — the
// loop re-polls so the order legs complete in matches the order the OS
// reported them ready (spec §4.D step 5).
func (w *waiter) drainOne(pollfds []unix.PollFd, fc *forwardContext, epoch uint32) wire.Result {
	for i, pfd := range pollfds {
		if pfd.Revents == 0 {
			continue
		}

		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			fc.retireErr(i, w.pool)
			return wire.NetworkError
		}

		needRetry := func(e uint32) bool { return w.membership.NeedRetry(e) }
		resp, err := transport.ReadResponse(fc.legs[i].conn, epoch, needRetry)
		if err != nil {
			fc.retireErr(i, w.pool)
			return wire.NetworkError
		}

		if resp.Header.Result != wire.Success {
			fc.retireErr(i, w.pool)
			return resp.Header.Result
		}
		fc.retireOK(i, w.pool)
		return wire.Success
	}
	return wire.Success
}
