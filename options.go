package packdb

import (
	"log/slog"
	"time"

	"github.com/packdb/packdb/internal/pagecodec"
)

// DurabilityMode controls how aggressively a commit forces bytes to stable
// storage before the version-slot flip is considered final.
type DurabilityMode int

const (
	// DurabilityFull calls fsync on the mapped file after every commit,
	// before the active-slot flip is made visible to new readers.
	DurabilityFull DurabilityMode = iota
	// DurabilityAsync flips the active slot immediately and fsyncs in the
	// background; a crash can lose the most recent commit(s) but never
	// corrupts the file, since the previous slot remains intact.
	DurabilityAsync
	// DurabilityMemOnly never calls fsync. Intended for scratch/ephemeral
	// databases backed by a tmpfs-mounted file.
	DurabilityMemOnly
)

// PageTranslator is the interface for a page-level byte transform such as
// at-rest encryption. packdb ships no implementation of its own, and no read
// or write path calls one (see WithPageTranslator).
type PageTranslator interface {
	Encode(dst, src []byte)
	Decode(dst, src []byte)
}

type options struct {
	maxLeafSize            int
	pageTranslator         PageTranslator
	pageCodec              pagecodec.Algorithm
	enableMetrics          bool
	durability             DurabilityMode
	readOnly               bool
	allowFileFormatUpgrade bool
	lockTimeout            time.Duration
	logger                 *Logger
	metricsCollector       MetricsCollector
	ioLimitBytesPerSec     int64
}

// Option configures Open/Create behavior.
//
// Breaking changes are expected while packdb is pre-1.0.
type Option func(*options)

// WithMaxLeafSize sets the maximum number of entries per B+-tree leaf before
// it splits. If n <= 0, the default of 1000 is used (spec.md §4.3).
func WithMaxLeafSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLeafSize = n
		}
	}
}

// WithPageTranslator records a PageTranslator in the Group's options. The
// translator is not applied to any page: nodes are read and written directly
// in the mapped file, so the bytes on disk are the same with or without it.
// Pass nil to clear it (the default).
func WithPageTranslator(t PageTranslator) Option {
	return func(o *options) {
		o.pageTranslator = t
	}
}

// WithPageCodec selects the compression algorithm Group.WriteBackupTo uses
// for each chunk of a backup stream. It has no effect on the live backing
// file: spec.md's single-mmap-file model addresses every node by a fixed
// byte offset, and a node's on-disk size must match its allocation exactly
// for that addressing to work, so pages are never compressed in place.
// Chunks that don't compress well are stored verbatim automatically. The
// default, pagecodec.None, stores backup chunks uncompressed.
func WithPageCodec(algo pagecodec.Algorithm) Option {
	return func(o *options) {
		o.pageCodec = algo
	}
}

// WithMetrics enables QueryStats collection for every scan (spec.md §4.2)
// and installs collector as the sink. Pass nil to disable metrics.
func WithMetrics(collector MetricsCollector) Option {
	return func(o *options) {
		o.enableMetrics = collector != nil
		if collector != nil {
			o.metricsCollector = collector
		}
	}
}

// WithDurability selects the fsync policy applied at commit. Defaults to
// DurabilityFull.
func WithDurability(mode DurabilityMode) Option {
	return func(o *options) {
		o.durability = mode
	}
}

// WithReadOnly opens the file without acquiring the single-writer slot.
// BeginWrite on a read-only Group returns ErrReadOnlyViolation.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithAllowFileFormatUpgrade makes Open pass a file whose format version
// differs from the current one to upgradeFileFormat instead of rejecting it
// at once. This build has no upgrade path for any other version, so Open on
// such a file returns ErrInvalidFormat with or without this option, and the
// file is not rewritten.
func WithAllowFileFormatUpgrade() Option {
	return func(o *options) {
		o.allowFileFormatUpgrade = true
	}
}

// WithLockTimeout bounds how long BeginWrite waits for the single-writer
// slot before returning ErrLockTimeout. Zero (the default) waits forever.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithLogger configures structured logging for commit, rollback, lock-wait
// and background-sync events. Pass nil to disable logging.
//
//	logger := packdb.NewJSONLogger(slog.LevelInfo)
//	g, _ := packdb.Open(ctx, path, packdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithIOThrottle caps how many bytes per second the allocator may spend
// extending the backing region (spec.md §4.1's file extension policy),
// smoothing bursty growth under sustained insert-heavy load. Zero (the
// default) leaves extension unthrottled.
func WithIOThrottle(bytesPerSecond int64) Option {
	return func(o *options) {
		o.ioLimitBytesPerSec = bytesPerSecond
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxLeafSize:      1000,
		durability:       DurabilityFull,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
