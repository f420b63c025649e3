// Package resource implements the admission control shared across a Group:
// the page-cache memory budget, the single-writer slot handed out by
// BeginWrite, and the rate at which the allocator may extend the backing
// file.
//
// A Controller manages three independent gates:
//
//   - Memory: track and cap page-cache bytes in flight (blocking or fail-fast)
//   - Background: limit concurrent background writers to the single-writer slot
//   - IO: rate-limit backing-file extension and other bulk transfers
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        Controller                            │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Budget  │  Writer Slot    │  IO Rate Limiter        │
//	│  (semaphore)    │  (semaphore)    │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  AcquireMemory  │  AcquireBack-   │  AcquireIO              │
//	│  TryAcquireMem  │  ground         │  RateLimitedWriter      │
//	│  ReleaseMemory  │  TryAcquire     │  RateLimitedReader      │
//	│  MemoryUsage    │  Release        │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Memory Budget
//
// Memory tracking uses a weighted semaphore for hard limits and atomic
// counters for usage tracking. AcquireMemory blocks until bytes are
// available or ctx is done; TryAcquireMemory is the fail-fast variant:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB page-cache budget
//	})
//
//	if err := rc.AcquireMemory(ctx, 1024*1024); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(1024 * 1024)
//
// # Single-Writer Slot
//
// A Group hands this slot to exactly one write transaction at a time:
//
//	rc := resource.NewController(resource.Config{
//	    MaxBackgroundWorkers: 1,
//	})
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # IO Rate Limiting
//
// A token bucket throttles how fast the allocator's backing-region
// extension may run, and doubles as the gate behind RateLimitedWriter/
// RateLimitedReader for any other bulk transfer that needs the same limit:
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 * 1024 * 1024, // 100MB/s
//	})
//
//	if err := rc.AcquireIO(ctx, 4096); err != nil {
//	    return err
//	}
//
//	writer := resource.NewRateLimitedWriter(ctx, file, rc)
//	reader := resource.NewRateLimitedReader(ctx, file, rc)
//
// # Thread Safety
//
// All Controller methods are safe for concurrent use. The underlying
// implementations use atomic operations and sync primitives.
//
// # Nil Safety
//
// All methods handle a nil *Controller gracefully — they become no-ops (or,
// for Try* variants, report success). This lets callers thread an optional
// *Controller through without nil checks everywhere.
package resource
