package resource

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent background jobs.
	// If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec is the maximum IO throughput for background tasks.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller gates the engine's shared, cross-transaction resources: the
// page-cache memory budget, the single-writer slot a Group hands out for
// BeginWrite, and the rate at which the allocator is allowed to extend the
// backing file. A nil *Controller is a valid, unlimited controller — every
// method is nil-safe.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	bgSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes against the page-cache budget, blocking until
// they become available or ctx is done. A reservation larger than the whole
// budget can never fit and returns ErrMemoryLimitExceeded at once, without
// blocking.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return ErrMemoryLimitExceeded
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve bytes against the page-cache budget
// without blocking, returning false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireBackground attempts to reserve a background worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// ReleaseBackground releases a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
// Returns true if tokens were acquired, false otherwise.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}

// TryAcquireBackground attempts to reserve a background worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// RateLimitedWriter wraps an io.Writer so every Write is metered through a
// Controller's IO limiter before being passed through.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// NewRateLimitedWriter returns a writer that gates w behind c's IO limiter,
// using ctx to bound how long a Write may wait for tokens.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, c *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, c: c}
}

func (rw *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := rw.c.AcquireIO(rw.ctx, len(p)); err != nil {
		return 0, err
	}
	return rw.w.Write(p)
}

// Seek delegates to the wrapped writer if it implements io.Seeker.
func (rw *RateLimitedWriter) Seek(offset int64, whence int) (int64, error) {
	s, ok := rw.w.(io.Seeker)
	if !ok {
		return 0, errors.New("resource: underlying writer does not support Seek")
	}
	return s.Seek(offset, whence)
}

// RateLimitedReader wraps an io.Reader so every Read is metered through a
// Controller's IO limiter before being served.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewRateLimitedReader returns a reader that gates r behind c's IO limiter,
// using ctx to bound how long a Read may wait for tokens.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, c: c}
}

func (rr *RateLimitedReader) Read(p []byte) (int, error) {
	if err := rr.c.AcquireIO(rr.ctx, len(p)); err != nil {
		return 0, err
	}
	return rr.r.Read(p)
}
