package packdb

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/packdb/packdb/array"
	"github.com/packdb/packdb/internal/alloc"
)

// columnMeta is the in-memory staging record for one column, decoded from
// (or destined for) a table's column-list arrays. origRoot is the root the
// column had when the enclosing transaction began; it is 0 for a column
// created within the transaction, letting commit tell "unchanged" columns
// apart from ones needing their wrapper arrays rebuilt.
type columnMeta struct {
	name     string
	nameRef  uint64
	nullable bool
	root     uint64
	origRoot uint64
}

// tableMeta is the in-memory staging record for one table.
type tableMeta struct {
	name    string
	nameRef uint64

	recordRef      uint64
	columnNamesRef uint64
	columnsRef     uint64
	columnFlagsRef uint64

	rowCount int64
	columns  []*columnMeta

	origColumnCount   int
	changedThisCommit bool
}

// topNode is the in-memory staging record for the group's root node: the
// 6-element structure spec.md §3 describes, extended with a seventh
// instance-id slot (SPEC_FULL.md §11).
type topNode struct {
	ref uint64

	tableNamesRef    uint64
	tablesRef        uint64
	freePositionsRef uint64
	freeSizesRef     uint64
	freeVersionsRef  uint64

	version       uint64
	instanceIDRef uint64
	instanceID    uuid.UUID

	tables []*tableMeta

	freePositions, freeSizes, freeVersions []uint64

	origTableCount int
}

// buildTopNode allocates a fresh 7-element top node.
func buildTopNode(a *alloc.Allocator, version uint64, tableNamesRef, tablesRef, freePositionsRef, freeSizesRef, freeVersionsRef, versionCounter, instanceIDRef uint64) (uint64, error) {
	return newRefArray(a, version, []uint64{
		tableNamesRef,
		tablesRef,
		freePositionsRef,
		freeSizesRef,
		freeVersionsRef,
		uint64(tagInt(int64(versionCounter))),
		instanceIDRef,
	})
}

// buildTableRecord allocates a fresh 4-element table record:
// [columnNamesRef, columnsRef, columnFlagsRef, rowCountTagged].
func buildTableRecord(a *alloc.Allocator, version uint64, columnNamesRef, columnsRef, columnFlagsRef uint64, rowCount int64) (uint64, error) {
	return newRefArray(a, version, []uint64{
		columnNamesRef,
		columnsRef,
		columnFlagsRef,
		uint64(tagInt(rowCount)),
	})
}

// freeNode frees ref's own allocation (not any children it may reference),
// tagging the pending-free entry with version so it becomes reclaimable once
// no live reader can still see version.
func freeNode(a *alloc.Allocator, ref uint64, version uint64) error {
	if ref == 0 {
		return nil
	}
	ar, err := array.Open(a, ref, version, false)
	if err != nil {
		return err
	}
	ar.Destroy(nil)
	return nil
}

// decodeTopNode reads a top node and everything reachable below it
// (table records, column lists, names) into an in-memory topNode.
func decodeTopNode(a *alloc.Allocator, ref uint64) (*topNode, error) {
	wrapper, err := array.Open(a, ref, 0, false)
	if err != nil {
		return nil, translateError(err)
	}
	if wrapper.Size() != 7 {
		return nil, &FormatError{Reason: fmt.Sprintf("top node %d has %d fields, want 7", ref, wrapper.Size())}
	}

	tableNamesRef := uint64(wrapper.Get(0))
	tablesRef := uint64(wrapper.Get(1))
	freePositionsRef := uint64(wrapper.Get(2))
	freeSizesRef := uint64(wrapper.Get(3))
	freeVersionsRef := uint64(wrapper.Get(4))
	version := uint64(untagInt(wrapper.Get(5)))
	instanceIDRef := uint64(wrapper.Get(6))

	tableNameRefs, err := readRefArray(a, tableNamesRef)
	if err != nil {
		return nil, err
	}
	tableRecordRefs, err := readRefArray(a, tablesRef)
	if err != nil {
		return nil, err
	}
	if len(tableNameRefs) != len(tableRecordRefs) {
		return nil, &FormatError{Reason: "table name/record list length mismatch"}
	}

	tables := make([]*tableMeta, len(tableRecordRefs))
	for i, recRef := range tableRecordRefs {
		tm, err := decodeTableRecord(a, recRef)
		if err != nil {
			return nil, err
		}
		name, err := readNameArray(a, tableNameRefs[i])
		if err != nil {
			return nil, err
		}
		tm.name = name
		tm.nameRef = tableNameRefs[i]
		tables[i] = tm
	}

	freePositions, err := readValueArray(a, freePositionsRef)
	if err != nil {
		return nil, err
	}
	freeSizes, err := readValueArray(a, freeSizesRef)
	if err != nil {
		return nil, err
	}
	freeVersions, err := readValueArray(a, freeVersionsRef)
	if err != nil {
		return nil, err
	}

	idBytes, err := readNameArray(a, instanceIDRef)
	if err != nil {
		return nil, err
	}
	var id uuid.UUID
	copy(id[:], idBytes)

	return &topNode{
		ref:              ref,
		tableNamesRef:    tableNamesRef,
		tablesRef:        tablesRef,
		freePositionsRef: freePositionsRef,
		freeSizesRef:     freeSizesRef,
		freeVersionsRef:  freeVersionsRef,
		version:          version,
		instanceIDRef:    instanceIDRef,
		instanceID:       id,
		tables:           tables,
		freePositions:    freePositions,
		freeSizes:        freeSizes,
		freeVersions:     freeVersions,
		origTableCount:   len(tables),
	}, nil
}

func decodeTableRecord(a *alloc.Allocator, ref uint64) (*tableMeta, error) {
	rec, err := array.Open(a, ref, 0, false)
	if err != nil {
		return nil, translateError(err)
	}
	if rec.Size() != 4 {
		return nil, &FormatError{Reason: fmt.Sprintf("table record %d has %d fields, want 4", ref, rec.Size())}
	}
	columnNamesRef := uint64(rec.Get(0))
	columnsRef := uint64(rec.Get(1))
	columnFlagsRef := uint64(rec.Get(2))
	rowCount := untagInt(rec.Get(3))

	colNameRefs, err := readRefArray(a, columnNamesRef)
	if err != nil {
		return nil, err
	}
	colRoots, err := readRefArray(a, columnsRef)
	if err != nil {
		return nil, err
	}
	colFlags, err := readValueArray(a, columnFlagsRef)
	if err != nil {
		return nil, err
	}
	if len(colNameRefs) != len(colRoots) || len(colRoots) != len(colFlags) {
		return nil, &FormatError{Reason: fmt.Sprintf("table record %d column list length mismatch", ref)}
	}

	columns := make([]*columnMeta, len(colRoots))
	for i := range columns {
		name, err := readNameArray(a, colNameRefs[i])
		if err != nil {
			return nil, err
		}
		columns[i] = &columnMeta{
			name:     name,
			nameRef:  colNameRefs[i],
			nullable: colFlags[i] != 0,
			root:     colRoots[i],
			origRoot: colRoots[i],
		}
	}

	return &tableMeta{
		recordRef:       ref,
		columnNamesRef:  columnNamesRef,
		columnsRef:      columnsRef,
		columnFlagsRef:  columnFlagsRef,
		rowCount:        rowCount,
		columns:         columns,
		origColumnCount: len(columns),
	}, nil
}
