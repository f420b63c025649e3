package packdb

import (
	"sync"
	"time"

	"github.com/packdb/packdb/codec"
)

// QueryStats describes one completed scan (find/count/sum/min/max) when
// metrics are enabled via WithMetrics.
type QueryStats struct {
	// Description is a short human-readable summary of the query, e.g.
	// "price Equal(42) act=FindAll".
	Description string
	Duration    time.Duration
	RowsScanned int64
	Matches     int64
}

// TransactionStats describes one completed write transaction.
type TransactionStats struct {
	Version    uint64
	Duration   time.Duration
	DirtyBytes int64
	Committed  bool
}

// MetricsCollector receives QueryStats/TransactionStats when enabled.
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	RecordQuery(QueryStats)
	RecordTransaction(TransactionStats)
}

// NoopMetricsCollector discards everything. It is the default collector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuery(QueryStats)             {}
func (NoopMetricsCollector) RecordTransaction(TransactionStats) {}

// RingMetricsCollector retains the most recent N records of each kind,
// discarding the oldest once full. This mirrors a bounded metrics ring
// rather than an unbounded log, so long-lived processes don't leak memory
// just because metrics are enabled.
type RingMetricsCollector struct {
	mu           sync.Mutex
	capacity     int
	queries      []QueryStats
	transactions []TransactionStats

	// Codec encodes the MetricsSnapshot produced by Export. Nil selects
	// codec.Default.
	Codec codec.Codec
}

// NewRingMetricsCollector creates a collector retaining up to capacity
// records of each kind. If capacity <= 0, it defaults to 1000.
func NewRingMetricsCollector(capacity int) *RingMetricsCollector {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingMetricsCollector{capacity: capacity}
}

func (c *RingMetricsCollector) RecordQuery(s QueryStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = appendBounded(c.queries, s, c.capacity)
}

func (c *RingMetricsCollector) RecordTransaction(s TransactionStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions = appendBounded(c.transactions, s, c.capacity)
}

// TakeQueries returns and clears the accumulated query stats.
func (c *RingMetricsCollector) TakeQueries() []QueryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queries
	c.queries = nil
	return out
}

// TakeTransactions returns and clears the accumulated transaction stats.
func (c *RingMetricsCollector) TakeTransactions() []TransactionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.transactions
	c.transactions = nil
	return out
}

// MetricsSnapshot is the shape Export encodes: everything accumulated
// since the previous Export or Take* call.
type MetricsSnapshot struct {
	Queries      []QueryStats
	Transactions []TransactionStats
}

// Export drains the accumulated queries and transactions and encodes them
// as one MetricsSnapshot through Codec, so a caller can ship metrics to a
// log file or external collector without depending on packdb's Go types.
func (c *RingMetricsCollector) Export() ([]byte, error) {
	snap := MetricsSnapshot{
		Queries:      c.TakeQueries(),
		Transactions: c.TakeTransactions(),
	}
	enc := c.Codec
	if enc == nil {
		enc = codec.Default
	}
	return enc.Marshal(snap)
}

func appendBounded[T any](s []T, v T, capacity int) []T {
	s = append(s, v)
	if len(s) > capacity {
		s = s[len(s)-capacity:]
	}
	return s
}
