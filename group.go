package packdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/packdb/packdb/internal/alloc"
	"github.com/packdb/packdb/internal/fs"
	"github.com/packdb/packdb/internal/resource"
	"github.com/packdb/packdb/internal/txnset"
)

// headerSize is the fixed reserved region at the start of every packdb file:
// two 8-byte top-ref slots, a 1-byte active-slot selector, a 1-byte format
// version, and 6 trailing bytes: the magic bytes 'p','d' followed by 4 zero
// bytes (spec.md §6).
const headerSize = 24

// currentFormatVersion is the on-disk format version this build writes, and
// the only one it opens: Open rejects any other version with
// ErrInvalidFormat, with or without WithAllowFileFormatUpgrade.
const currentFormatVersion = 1

const (
	headerMagic0 = 'p'
	headerMagic1 = 'd'
)

type fileHeader struct {
	slotA, slotB  uint64
	active        byte
	formatVersion byte
}

func encodeFileHeader(dst []byte, h fileHeader) {
	binary.LittleEndian.PutUint64(dst[0:8], h.slotA)
	binary.LittleEndian.PutUint64(dst[8:16], h.slotB)
	dst[16] = h.active
	dst[17] = h.formatVersion
	dst[18] = headerMagic0
	dst[19] = headerMagic1
	dst[20], dst[21], dst[22], dst[23] = 0, 0, 0, 0
}

func decodeFileHeader(src []byte) (fileHeader, error) {
	if len(src) < headerSize {
		return fileHeader{}, &FormatError{Offset: 0, Reason: "file shorter than header"}
	}
	if src[18] != headerMagic0 || src[19] != headerMagic1 {
		return fileHeader{}, &FormatError{Offset: 18, Reason: "bad magic bytes"}
	}
	return fileHeader{
		slotA:         binary.LittleEndian.Uint64(src[0:8]),
		slotB:         binary.LittleEndian.Uint64(src[8:16]),
		active:        src[16],
		formatVersion: src[17],
	}, nil
}

// Group is the top-level handle on one packdb file: the MVCC root that hands
// out ReadTxn snapshots and serializes WriteTxns through a single-writer
// slot. A Group is safe for concurrent use by multiple goroutines.
type Group struct {
	path string
	opts options

	alloc   *alloc.Allocator
	lockCtl *resource.Controller
	tracker *txnset.Tracker
	openSF  singleflight.Group

	logger  *Logger
	metrics MetricsCollector

	instanceID uuid.UUID

	// version and topRef describe the most recently committed snapshot.
	// Both are only ever advanced by finalizeCommit, under commitMu.
	commitMu sync.Mutex
	version  atomic.Uint64
	topRef   atomic.Uint64

	// asyncSyncMu serializes the background fsyncs DurabilityAsync schedules,
	// and asyncSyncWG lets Close wait for the last of them to land before the
	// backing file is unmapped.
	asyncSyncMu sync.Mutex
	asyncSyncWG sync.WaitGroup

	closed atomic.Bool
}

// Open opens (or creates, if it does not exist) the packdb file at path.
// Pass "" for an in-memory, non-durable Group regardless of DurabilityMode.
func Open(ctx context.Context, path string, optFns ...Option) (*Group, error) {
	opts := applyOptions(optFns)

	memOnly := path == "" || opts.durability == DurabilityMemOnly
	var backing alloc.Backing
	isNew := true

	if memOnly {
		backing = alloc.NewHeapBacked(headerSize)
	} else {
		if fi, err := os.Stat(path); err == nil {
			isNew = fi.Size() == 0
		} else if !os.IsNotExist(err) {
			return nil, err
		}
		if isNew && opts.readOnly {
			return nil, fmt.Errorf("%w: cannot create %q read-only", ErrInvalidFormat, path)
		}
		var err error
		backing, err = alloc.NewFileBacked(path, headerSize)
		if err != nil {
			return nil, err
		}
	}

	g := &Group{
		path:  path,
		opts:  opts,
		alloc: alloc.NewAllocator(backing, headerSize),
		lockCtl: resource.NewController(resource.Config{
			MaxBackgroundWorkers: 1,
			IOLimitBytesPerSec:   opts.ioLimitBytesPerSec,
		}),
		tracker: txnset.New(1),
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}
	g.alloc.SetIOController(g.lockCtl)

	if isNew {
		if err := g.initializeEmpty(); err != nil {
			return nil, err
		}
	} else if err := g.loadExisting(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Group) initializeEmpty() error {
	g.instanceID = uuid.New()
	instanceIDRef, err := newNameArray(g.alloc, 1, string(g.instanceID[:]))
	if err != nil {
		return err
	}
	tableNamesRef, err := newRefArray(g.alloc, 1, nil)
	if err != nil {
		return err
	}
	tablesRef, err := newRefArray(g.alloc, 1, nil)
	if err != nil {
		return err
	}
	freePositionsRef, err := newValueArray(g.alloc, 1, nil)
	if err != nil {
		return err
	}
	freeSizesRef, err := newValueArray(g.alloc, 1, nil)
	if err != nil {
		return err
	}
	freeVersionsRef, err := newValueArray(g.alloc, 1, nil)
	if err != nil {
		return err
	}
	topRef, err := buildTopNode(g.alloc, 1, tableNamesRef, tablesRef, freePositionsRef, freeSizesRef, freeVersionsRef, 1, instanceIDRef)
	if err != nil {
		return err
	}

	g.alloc.SetWatermark(g.alloc.NextOffset())
	g.version.Store(1)
	g.topRef.Store(topRef)

	hdrBuf := make([]byte, headerSize)
	encodeFileHeader(hdrBuf, fileHeader{slotA: topRef, slotB: 0, active: 0, formatVersion: currentFormatVersion})
	dst, err := g.alloc.Translate(0, headerSize)
	if err != nil {
		return err
	}
	copy(dst, hdrBuf)
	if g.opts.durability != DurabilityMemOnly {
		return g.alloc.Sync()
	}
	return nil
}

func (g *Group) loadExisting(ctx context.Context) error {
	hdrBytes, err := g.alloc.Translate(0, headerSize)
	if err != nil {
		return translateError(err)
	}
	h, err := decodeFileHeader(hdrBytes)
	if err != nil {
		return err
	}

	if h.formatVersion != currentFormatVersion {
		if !g.opts.allowFileFormatUpgrade {
			return &FormatError{Offset: 17, Reason: fmt.Sprintf("file format version %d unsupported (want %d)", h.formatVersion, currentFormatVersion)}
		}
		if err := g.upgradeFileFormat(ctx, h); err != nil {
			return err
		}
		hdrBytes, err = g.alloc.Translate(0, headerSize)
		if err != nil {
			return translateError(err)
		}
		h, err = decodeFileHeader(hdrBytes)
		if err != nil {
			return err
		}
	}

	topRef := h.slotA
	if h.active == 1 {
		topRef = h.slotB
	}

	top, err := decodeTopNode(g.alloc, topRef)
	if err != nil {
		return err
	}
	g.instanceID = top.instanceID
	g.version.Store(top.version)
	g.topRef.Store(topRef)
	g.alloc.LoadFreeList(top.freePositions, top.freeSizes, top.freeVersions, g.alloc.NextOffset())
	return nil
}

// upgradeFileFormat is called by loadExisting when the header's format
// version differs from currentFormatVersion and WithAllowFileFormatUpgrade
// is set. This build reads no format other than currentFormatVersion, so it
// always returns a *FormatError (matching ErrInvalidFormat) and leaves the
// file unchanged; it does not call rewriteFileAtomically.
func (g *Group) upgradeFileFormat(ctx context.Context, h fileHeader) error {
	_ = ctx
	return &FormatError{Offset: 17, Reason: fmt.Sprintf("no upgrade path from format version %d", h.formatVersion)}
}

// rewriteFileAtomically is the primitive an eventual format-upgrade path
// uses: write contents to a temp file in dir, fsync it, then rename over
// path. On POSIX, rename is atomic, so a crash during the write leaves the
// original path untouched.
func rewriteFileAtomically(ffs fs.FileSystem, path string, contents []byte) error {
	tmp := path + ".upgrade.tmp"
	f, err := ffs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(contents); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return ffs.Rename(tmp, path)
}

// Close releases the Group's resources. It does not fail out held read or
// write transactions; the caller is responsible for closing those first.
func (g *Group) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	g.asyncSyncWG.Wait()
	return g.alloc.Backing().Close()
}

// RecentQueries returns and clears the metrics collector's buffered
// QueryStats, if it is a *RingMetricsCollector. It returns nil otherwise.
func (g *Group) RecentQueries() []QueryStats {
	if r, ok := g.metrics.(*RingMetricsCollector); ok {
		return r.TakeQueries()
	}
	return nil
}

// RecentTransactions returns and clears the metrics collector's buffered
// TransactionStats, if it is a *RingMetricsCollector. It returns nil
// otherwise.
func (g *Group) RecentTransactions() []TransactionStats {
	if r, ok := g.metrics.(*RingMetricsCollector); ok {
		return r.TakeTransactions()
	}
	return nil
}

// InstanceID returns the UUID stamped into the file the first time it was
// created. It is stable across process restarts and Open calls.
func (g *Group) InstanceID() uuid.UUID { return g.instanceID }

// BeginRead opens a read-only snapshot pinned to the most recently committed
// version. The snapshot remains stable even as concurrent writers commit
// further versions; call Close when done to let that version's garbage be
// reclaimed.
func (g *Group) BeginRead(ctx context.Context) (*ReadTxn, error) {
	if g.closed.Load() {
		return nil, ErrTransactionClosed
	}
	v := g.version.Load()
	ref := g.topRef.Load()
	g.tracker.Acquire(v)

	// Concurrent BeginRead calls that land on the same not-yet-superseded
	// version share one decode of its (read-only, by construction) top
	// node rather than each re-walking the table/column metadata tree.
	key := fmt.Sprintf("%d:%d", v, ref)
	result, err, _ := g.openSF.Do(key, func() (any, error) {
		return decodeTopNode(g.alloc, ref)
	})
	if err != nil {
		g.tracker.Release(v)
		return nil, err
	}
	return &ReadTxn{g: g, version: v, top: result.(*topNode)}, nil
}

// Read runs fn against a fresh ReadTxn, closing it afterward regardless of
// fn's return value.
func (g *Group) Read(ctx context.Context, fn func(*ReadTxn) error) error {
	rt, err := g.BeginRead(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// BeginWrite acquires the single-writer slot (waiting up to WithLockTimeout,
// or forever if unset) and returns a WriteTxn staged from the most recently
// committed version. Exactly one WriteTxn may be open at a time; call Commit
// or Rollback to release the slot.
func (g *Group) BeginWrite(ctx context.Context) (*WriteTxn, error) {
	if g.closed.Load() {
		return nil, ErrTransactionClosed
	}
	if g.opts.readOnly {
		return nil, ErrReadOnlyViolation
	}

	waitCtx := ctx
	cancel := func() {}
	if g.opts.lockTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, g.opts.lockTimeout)
	}
	start := time.Now()
	err := g.lockCtl.AcquireBackground(waitCtx)
	cancel()
	waited := time.Since(start)
	if err != nil {
		g.logger.LogLockWait(ctx, waited.Milliseconds(), true)
		return nil, &LockTimeoutError{WaitedMillis: waited.Milliseconds(), cause: ErrLockTimeout}
	}
	g.logger.LogLockWait(ctx, waited.Milliseconds(), false)

	baseVersion := g.version.Load()
	top, err := decodeTopNode(g.alloc, g.topRef.Load())
	if err != nil {
		g.lockCtl.ReleaseBackground()
		return nil, err
	}
	top.origTableCount = len(top.tables)
	for _, tm := range top.tables {
		tm.origColumnCount = len(tm.columns)
		for _, cm := range tm.columns {
			cm.origRoot = cm.root
		}
	}

	return &WriteTxn{
		g:           g,
		baseVersion: baseVersion,
		top:         top,
		started:     start,
		startOffset: g.alloc.NextOffset(),
	}, nil
}

// Write runs fn against a fresh WriteTxn, committing on a nil return and
// rolling back otherwise (including when fn panics, after re-panicking).
func (g *Group) Write(ctx context.Context, fn func(*WriteTxn) error) (err error) {
	wt, err := g.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = wt.Rollback()
			panic(p)
		}
	}()
	if err := fn(wt); err != nil {
		_ = wt.Rollback()
		return err
	}
	return wt.Commit(ctx)
}

func (g *Group) releaseWrite() { g.lockCtl.ReleaseBackground() }
