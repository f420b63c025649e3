package packdb

import (
	"context"
	"fmt"
	"time"

	"github.com/packdb/packdb/column"
)

// ReadTxn is a read-only snapshot pinned to the version that was current
// when it was opened. It is not safe for concurrent use by multiple
// goroutines, matching column/array's own single-accessor contract, but
// distinct ReadTxns (and a concurrent WriteTxn) may run in parallel.
type ReadTxn struct {
	g       *Group
	version uint64
	top     *topNode
	closed  bool
}

// Close releases the pinned version, letting the allocator eventually
// reclaim garbage that a writer freed at or before it.
func (rt *ReadTxn) Close() error {
	if rt.closed {
		return ErrTransactionClosed
	}
	rt.closed = true
	rt.g.tracker.Release(rt.version)
	return nil
}

// Version returns the commit version this snapshot is pinned to.
func (rt *ReadTxn) Version() uint64 { return rt.version }

// Table opens a read-only view of the named table.
func (rt *ReadTxn) Table(name string) (*Table, error) {
	if rt.closed {
		return nil, ErrTransactionClosed
	}
	tm := findTable(rt.top.tables, name)
	if tm == nil {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return newReadTable(rt.g, rt.version, tm)
}

// TableNames lists every table in the snapshot, in creation order.
func (rt *ReadTxn) TableNames() []string {
	names := make([]string, len(rt.top.tables))
	for i, tm := range rt.top.tables {
		names[i] = tm.name
	}
	return names
}

// WriteTxn is the single outstanding write transaction a Group allows at a
// time. All mutations apply immediately to the underlying column trees
// (with copy-on-write against anything below the allocator's watermark, so concurrent readers on the prior version are unaffected);
// Commit publishes the accumulated top-node changes atomically, and
// Rollback simply never publishes them.
type WriteTxn struct {
	g           *Group
	baseVersion uint64
	top         *topNode
	started     time.Time
	startOffset uint64
	dirtyBytes  int64
	closed      bool
}

func (wt *WriteTxn) checkOpen() error {
	if wt.closed {
		return ErrTransactionClosed
	}
	return nil
}

// CreateTable adds a new, empty table to the transaction's staged snapshot.
func (wt *WriteTxn) CreateTable(name string) (*Table, error) {
	if err := wt.checkOpen(); err != nil {
		return nil, err
	}
	if findTable(wt.top.tables, name) != nil {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}
	tm := &tableMeta{name: name}
	wt.top.tables = append(wt.top.tables, tm)
	return newWriteTable(wt, tm)
}

// Table opens the named table for reading and writing within this
// transaction.
func (wt *WriteTxn) Table(name string) (*Table, error) {
	if err := wt.checkOpen(); err != nil {
		return nil, err
	}
	tm := findTable(wt.top.tables, name)
	if tm == nil {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return newWriteTable(wt, tm)
}

// TableNames lists every table visible in the transaction, including ones
// created earlier in the same transaction.
func (wt *WriteTxn) TableNames() []string {
	names := make([]string, len(wt.top.tables))
	for i, tm := range wt.top.tables {
		names[i] = tm.name
	}
	return names
}

func findTable(tables []*tableMeta, name string) *tableMeta {
	for _, tm := range tables {
		if tm.name == name {
			return tm
		}
	}
	return nil
}

// Commit publishes the transaction's changes as a new version, visible to
// every ReadTxn opened afterward, via the five-step protocol spec.md §4.4
// describes: finalize the copy-on-write mutations already applied to the
// column trees, flush the new regions, publish the new top-ref into the
// currently-inactive header slot, flip the active-slot byte (the
// linearization point), then sweep the free-list and release the writer
// slot.
func (wt *WriteTxn) Commit(ctx context.Context) error {
	if err := wt.checkOpen(); err != nil {
		return err
	}
	wt.closed = true
	defer wt.g.releaseWrite()

	newTopRef, err := wt.stageCommit()
	wt.dirtyBytes = int64(wt.g.alloc.NextOffset()) - int64(wt.startOffset)
	if err != nil {
		wt.g.logger.LogCommit(ctx, wt.baseVersion, wt.dirtyBytes, err)
		wt.g.metrics.RecordTransaction(TransactionStats{Version: wt.baseVersion, Duration: time.Since(wt.started), DirtyBytes: wt.dirtyBytes, Committed: false})
		return translateError(err)
	}

	newVersion := wt.baseVersion + 1
	if err := wt.g.finalizeCommit(newTopRef, newVersion); err != nil {
		wt.g.logger.LogCommit(ctx, newVersion, wt.dirtyBytes, err)
		wt.g.metrics.RecordTransaction(TransactionStats{Version: newVersion, Duration: time.Since(wt.started), DirtyBytes: wt.dirtyBytes, Committed: false})
		return err
	}

	wt.g.logger.LogCommit(ctx, newVersion, wt.dirtyBytes, nil)
	wt.g.metrics.RecordTransaction(TransactionStats{Version: newVersion, Duration: time.Since(wt.started), DirtyBytes: wt.dirtyBytes, Committed: true})
	return nil
}

// Rollback discards the transaction's staged top node without publishing
// it, and releases the writer slot. No version is ever pinned to the
// mutations a rolled-back transaction applied to the underlying column
// trees, so they remain unreachable from any snapshot; they are not swept
// back into the free list, a deliberate trade against the complexity of an
// in-place undo log (see DESIGN.md).
func (wt *WriteTxn) Rollback() error {
	if err := wt.checkOpen(); err != nil {
		return err
	}
	wt.closed = true
	wt.g.releaseWrite()
	wt.g.logger.LogRollback(context.Background(), wt.baseVersion, wt.dirtyBytes)
	return nil
}

// stageCommit performs commit steps 1-3: it re-encodes only the metadata
// wrapper levels whose contents actually changed during the transaction,
// frees their superseded refs (and the superseded top node) at
// wt.baseVersion, writes the freshly built top-node ref into the header's
// inactive slot, and returns it. It never changes the active-slot byte, so a
// crash after this point but before finalizeCommit leaves the previously
// committed version active (spec.md §8 scenario 5).
func (wt *WriteTxn) stageCommit() (uint64, error) {
	a := wt.g.alloc
	base := wt.baseVersion
	top := wt.top

	tablesChanged := len(top.tables) != top.origTableCount
	for _, tm := range top.tables {
		if err := wt.stageTable(tm); err != nil {
			return 0, err
		}
		if tm.changedThisCommit {
			tablesChanged = true
		}
	}

	if tablesChanged {
		recordRefs := make([]uint64, len(top.tables))
		for i, tm := range top.tables {
			recordRefs[i] = tm.recordRef
		}
		newTablesRef, err := newRefArray(a, base, recordRefs)
		if err != nil {
			return 0, err
		}
		if err := freeNode(a, top.tablesRef, base); err != nil {
			return 0, err
		}
		top.tablesRef = newTablesRef
	}

	if len(top.tables) != top.origTableCount {
		nameRefs := make([]uint64, len(top.tables))
		for i, tm := range top.tables {
			if tm.nameRef == 0 {
				ref, err := newNameArray(a, base, tm.name)
				if err != nil {
					return 0, err
				}
				tm.nameRef = ref
			}
			nameRefs[i] = tm.nameRef
		}
		newTableNamesRef, err := newRefArray(a, base, nameRefs)
		if err != nil {
			return 0, err
		}
		if err := freeNode(a, top.tableNamesRef, base); err != nil {
			return 0, err
		}
		top.tableNamesRef = newTableNamesRef
	}

	positions, sizes, versions := a.FreeListSnapshot()
	newPositionsRef, err := newValueArray(a, base, positions)
	if err != nil {
		return 0, err
	}
	newSizesRef, err := newValueArray(a, base, sizes)
	if err != nil {
		return 0, err
	}
	newVersionsRef, err := newValueArray(a, base, versions)
	if err != nil {
		return 0, err
	}
	if err := freeNode(a, top.freePositionsRef, base); err != nil {
		return 0, err
	}
	if err := freeNode(a, top.freeSizesRef, base); err != nil {
		return 0, err
	}
	if err := freeNode(a, top.freeVersionsRef, base); err != nil {
		return 0, err
	}
	top.freePositionsRef, top.freeSizesRef, top.freeVersionsRef = newPositionsRef, newSizesRef, newVersionsRef

	if err := freeNode(a, top.ref, base); err != nil {
		return 0, err
	}
	newVersion := base + 1
	newTopRef, err := buildTopNode(a, base, top.tableNamesRef, top.tablesRef, top.freePositionsRef, top.freeSizesRef, top.freeVersionsRef, newVersion, top.instanceIDRef)
	if err != nil {
		return 0, err
	}

	a.SetWatermark(a.NextOffset())

	if wt.g.opts.durability != DurabilityMemOnly {
		if err := a.Sync(); err != nil {
			return 0, err
		}
	}

	hdrBytes, err := a.Translate(0, headerSize)
	if err != nil {
		return 0, translateError(err)
	}
	h, err := decodeFileHeader(hdrBytes)
	if err != nil {
		return 0, err
	}
	inactive := 1 - h.active
	if inactive == 0 {
		h.slotA = newTopRef
	} else {
		h.slotB = newTopRef
	}
	encodeFileHeader(hdrBytes, h)
	if wt.g.opts.durability == DurabilityFull {
		if err := a.Sync(); err != nil {
			return 0, err
		}
	}

	return newTopRef, nil
}

// stageTable re-encodes a table's wrapper levels if anything under it
// changed, in-place on tm.
func (wt *WriteTxn) stageTable(tm *tableMeta) error {
	a := wt.g.alloc
	base := wt.baseVersion

	columnsChanged := len(tm.columns) != tm.origColumnCount || tm.recordRef == 0
	for _, cm := range tm.columns {
		if cm.root != cm.origRoot {
			columnsChanged = true
		}
	}
	tm.changedThisCommit = columnsChanged

	if !columnsChanged {
		return nil
	}

	roots := make([]uint64, len(tm.columns))
	flags := make([]uint64, len(tm.columns))
	for i, cm := range tm.columns {
		roots[i] = cm.root
		if cm.nullable {
			flags[i] = 1
		}
	}
	newColumnsRef, err := newRefArray(a, base, roots)
	if err != nil {
		return err
	}
	if err := freeNode(a, tm.columnsRef, base); err != nil {
		return err
	}
	tm.columnsRef = newColumnsRef

	newFlagsRef, err := newValueArray(a, base, flags)
	if err != nil {
		return err
	}
	if err := freeNode(a, tm.columnFlagsRef, base); err != nil {
		return err
	}
	tm.columnFlagsRef = newFlagsRef

	if len(tm.columns) != tm.origColumnCount || tm.columnNamesRef == 0 {
		nameRefs := make([]uint64, len(tm.columns))
		for i, cm := range tm.columns {
			if cm.nameRef == 0 {
				ref, err := newNameArray(a, base, cm.name)
				if err != nil {
					return err
				}
				cm.nameRef = ref
			}
			nameRefs[i] = cm.nameRef
		}
		newColumnNamesRef, err := newRefArray(a, base, nameRefs)
		if err != nil {
			return err
		}
		if err := freeNode(a, tm.columnNamesRef, base); err != nil {
			return err
		}
		tm.columnNamesRef = newColumnNamesRef
	}

	newRecordRef, err := buildTableRecord(a, base, tm.columnNamesRef, tm.columnsRef, tm.columnFlagsRef, tm.rowCount)
	if err != nil {
		return err
	}
	if err := freeNode(a, tm.recordRef, base); err != nil {
		return err
	}
	tm.recordRef = newRecordRef
	return nil
}

// finalizeCommit performs commit steps 4-5: it flips the active-slot byte
// (the instant the new version becomes visible to new ReadTxns), then
// sweeps the free-list up to the oldest version any live reader still pins.
//
// DurabilityFull fsyncs the flip before returning, so a successful Commit
// guarantees the new version survives a crash. DurabilityAsync flips the
// slot and publishes the version immediately, scheduling the fsync on a
// background goroutine instead of waiting for it (spec.md §4.4's async
// mode): a crash before that fsync lands can lose the commit, but never
// corrupts the file, since the previous slot's bytes are untouched.
func (g *Group) finalizeCommit(newTopRef, newVersion uint64) error {
	g.commitMu.Lock()
	defer g.commitMu.Unlock()

	hdrBytes, err := g.alloc.Translate(0, headerSize)
	if err != nil {
		return translateError(err)
	}
	h, err := decodeFileHeader(hdrBytes)
	if err != nil {
		return err
	}
	h.active = 1 - h.active
	encodeFileHeader(hdrBytes, h)

	switch g.opts.durability {
	case DurabilityFull:
		if err := g.alloc.Sync(); err != nil {
			return err
		}
	case DurabilityAsync:
		g.scheduleAsyncSync(newVersion)
	case DurabilityMemOnly:
	}

	g.version.Store(newVersion)
	g.topRef.Store(newTopRef)

	g.alloc.Reclaim(g.tracker.MinLive(newVersion))
	return nil
}

// scheduleAsyncSync runs alloc.Sync in the background, serialized against
// any other pending async sync so overlapping commits under
// DurabilityAsync never issue concurrent msync calls on the same mapping.
// Close waits on g.asyncSyncWG before unmapping the backing file, so a
// scheduled sync is never abandoned mid-flight.
func (g *Group) scheduleAsyncSync(version uint64) {
	g.asyncSyncWG.Add(1)
	go func() {
		defer g.asyncSyncWG.Done()
		g.asyncSyncMu.Lock()
		defer g.asyncSyncMu.Unlock()
		err := g.alloc.Sync()
		g.logger.LogAsyncSync(context.Background(), version, err)
	}()
}

// openColumn binds a *column.Column accessor to cm at version.
func openColumn(g *Group, cm *columnMeta, version uint64) *column.Column {
	return column.Open(g.alloc, cm.root, version, g.opts.maxLeafSize, cm.nullable)
}
