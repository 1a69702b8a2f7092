// Package resolver implements the asynchronous name->addresses task
// (spec.md §4.1.C): given a host, port and protocol, it yields an ordered
// list of peer addresses (IPv4 and IPv6, in the order the system resolver
// returned them) without blocking the scheduler while the lookup is in
// flight.
package resolver

import (
	"context"
	"net"
	"time"

	"github.com/gonzalop/xfer/scheduler"
)

// Resolver is a scheduler.Task (and scheduler.Waitable) that looks up Host
// in the background and exposes the result once ready.
type Resolver struct {
	scheduler.NoSignal

	Host string
	Port string
	// Proto is carried through only for logging/cache-keying; resolution
	// itself doesn't vary by protocol.
	Proto string

	done chan struct{}
	addrs []net.IP
	err   error
	delivered bool
}

// New starts resolving host in the background immediately.
func New(ctx context.Context, host, port, proto string) *Resolver {
	r := &Resolver{Host: host, Port: port, Proto: proto, done: make(chan struct{})}
	go r.lookup(ctx)
	return r
}

func (r *Resolver) lookup(ctx context.Context) {
	defer close(r.done)
	if ip := net.ParseIP(r.Host); ip != nil {
		r.addrs = []net.IP{ip}
		return
	}
	ipAddrs, err := net.DefaultResolver.LookupIPAddr(ctx, r.Host)
	if err != nil {
		r.err = err
		return
	}
	for _, a := range ipAddrs {
		r.addrs = append(r.addrs, a.IP)
	}
}

// Do reports Moved exactly once, on the step the lookup result first
// becomes visible, and WantDie on every step after that; Ready and Result
// expose the outcome.
func (r *Resolver) Do() scheduler.Status {
	select {
	case <-r.done:
		if !r.delivered {
			r.delivered = true
			return scheduler.Moved
		}
		return scheduler.WantDie
	default:
		return scheduler.Stall
	}
}

// Wait exposes the completion channel so Scheduler.Run can sleep on it
// instead of busy-polling.
func (r *Resolver) Wait() scheduler.Waiter {
	return scheduler.Waiter{Ready: r.done, Deadline: time.Time{}}
}

// Ready reports whether the lookup has finished (successfully or not).
func (r *Resolver) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Result returns the ordered address list once Ready, or an error if the
// lookup failed. Calling it before Ready returns (nil, nil).
func (r *Resolver) Result() ([]net.IP, error) {
	if !r.Ready() {
		return nil, nil
	}
	return r.addrs, r.err
}

// Addr formats the idx'th address with Port for net.Dial.
func (r *Resolver) Addr(idx int) string {
	addrs, _ := r.Result()
	if idx < 0 || idx >= len(addrs) {
		return ""
	}
	return net.JoinHostPort(addrs[idx].String(), r.Port)
}
