// Package ratelimit throttles transfer bandwidth (spec.md §4.1.D): a token
// bucket per direction (send/receive), optionally scoped per host (§6.4's
// "net:limit-rate" setting applies separately to each remote host).
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with a burst equal to one
// second of traffic at the configured rate, matching lftp's own token
// bucket sizing for `net:limit-rate`.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a Limiter admitting bytesPerSecond bytes/sec, or nil (meaning
// unlimited) if bytesPerSecond is not positive.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))}
}

// SetLimit changes the rate of an existing Limiter (spec.md §6.4 allows
// `net:limit-rate` to be changed while a transfer is in progress).
func (l *Limiter) SetLimit(bytesPerSecond int64) {
	if l == nil {
		return
	}
	l.rl.SetLimit(rate.Limit(bytesPerSecond))
	l.rl.SetBurst(int(bytesPerSecond))
}

// wait blocks until n tokens are available, capping n to the burst size so
// a single large chunk doesn't wait for more tokens than the bucket can
// ever hold at once.
func (l *Limiter) wait(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	burst := l.rl.Burst()
	for n > burst {
		if err := l.rl.WaitN(ctx, burst); err != nil {
			return err
		}
		n -= burst
	}
	return l.rl.WaitN(ctx, n)
}

// reader applies a Limiter to an io.Reader's output, token cost paid before
// the underlying Read so a stalled limiter produces backpressure rather
// than buffering unthrottled data.
type reader struct {
	ctx context.Context
	r   io.Reader
	l   *Limiter
}

// NewReader rate-limits reads from r. A nil limiter returns r unchanged.
func NewReader(ctx context.Context, r io.Reader, l *Limiter) io.Reader {
	if l == nil {
		return r
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &reader{ctx: ctx, r: r, l: l}
}

func (rr *reader) Read(p []byte) (int, error) {
	const maxChunk = 32 * 1024
	if len(p) > maxChunk {
		p = p[:maxChunk]
	}
	if err := rr.l.wait(rr.ctx, len(p)); err != nil {
		return 0, err
	}
	return rr.r.Read(p)
}

// writer applies a Limiter to an io.Writer's input.
type writer struct {
	ctx context.Context
	w   io.Writer
	l   *Limiter
}

// NewWriter rate-limits writes to w. A nil limiter returns w unchanged.
func NewWriter(ctx context.Context, w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &writer{ctx: ctx, w: w, l: l}
}

func (ww *writer) Write(p []byte) (int, error) {
	const maxChunk = 32 * 1024
	written := 0
	for written < len(p) {
		end := written + maxChunk
		if end > len(p) {
			end = len(p)
		}
		if err := ww.l.wait(ww.ctx, end-written); err != nil {
			return written, err
		}
		n, err := ww.w.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
