package packdb

import (
	"fmt"

	"github.com/packdb/packdb/column"
	"github.com/packdb/packdb/internal/conv"
)

// Table is a named collection of same-length columns. A Table obtained from
// a ReadTxn is read-only; one obtained from a WriteTxn allows AddColumn,
// AddNullableColumn, and AddRow in addition to the read-only methods.
type Table struct {
	g        *Group
	version  uint64
	writable bool

	wt   *WriteTxn // non-nil on the write path
	meta *tableMeta

	columns []*Column
}

func newReadTable(g *Group, version uint64, tm *tableMeta) (*Table, error) {
	t := &Table{g: g, version: version, meta: tm}
	for _, cm := range tm.columns {
		t.columns = append(t.columns, &Column{g: g, name: cm.name, col: openColumn(g, cm, version)})
	}
	return t, nil
}

func newWriteTable(wt *WriteTxn, tm *tableMeta) (*Table, error) {
	t := &Table{g: wt.g, version: wt.baseVersion, writable: true, wt: wt, meta: tm}
	for _, cm := range tm.columns {
		t.columns = append(t.columns, &Column{g: wt.g, name: cm.name, col: openColumn(wt.g, cm, wt.baseVersion), meta: cm, writable: true})
	}
	return t, nil
}

// Name returns the table's name.
func (t *Table) Name() string { return t.meta.name }

// RowCount returns the number of rows every column in the table holds.
func (t *Table) RowCount() int64 { return t.meta.rowCount }

// Column returns the named column, or ErrColumnNotFound.
func (t *Table) Column(name string) (*Column, error) {
	for _, c := range t.columns {
		if c.name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// ColumnNames lists every column on the table, in creation order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

func (t *Table) addColumn(name string, nullable bool) (*Column, error) {
	if !t.writable {
		return nil, ErrReadOnlyViolation
	}
	for _, c := range t.columns {
		if c.name == name {
			return nil, fmt.Errorf("%w: %q", ErrColumnExists, name)
		}
	}
	col, err := column.New(t.g.alloc, t.wt.baseVersion, t.g.opts.maxLeafSize, nullable)
	if err != nil {
		return nil, translateError(err)
	}
	for i := int64(0); i < t.meta.rowCount; i++ {
		idx, err := conv.Uint64ToInt(uint64(i))
		if err != nil {
			return nil, fmt.Errorf("packdb: row index out of range: %w", err)
		}
		if err := col.Insert(idx, 0); err != nil {
			return nil, translateError(err)
		}
	}
	cm := &columnMeta{name: name, nullable: nullable, root: col.Root()}
	t.meta.columns = append(t.meta.columns, cm)
	c := &Column{g: t.g, name: name, col: col, meta: cm, writable: true}
	t.columns = append(t.columns, c)
	return c, nil
}

// AddColumn adds a new non-nullable column, backfilling zero for every
// existing row, and returns it.
func (t *Table) AddColumn(name string) (*Column, error) { return t.addColumn(name, false) }

// AddNullableColumn adds a new nullable column, backfilling null for every
// existing row, and returns it.
func (t *Table) AddNullableColumn(name string) (*Column, error) { return t.addColumn(name, true) }

// AddRow appends a new row (zero, or null for nullable columns, in every
// existing column) and returns its index.
func (t *Table) AddRow() (int64, error) {
	if !t.writable {
		return 0, ErrReadOnlyViolation
	}
	row := t.meta.rowCount
	idx, err := conv.Uint64ToInt(uint64(row))
	if err != nil {
		return 0, fmt.Errorf("packdb: row index out of range: %w", err)
	}
	for _, c := range t.columns {
		if err := c.col.Insert(idx, 0); err != nil {
			return 0, translateError(err)
		}
		c.meta.root = c.col.Root()
	}
	t.meta.rowCount++
	return row, nil
}

// Column wraps one column's B+-tree accessor with the transaction/metadata
// bookkeeping needed to keep the enclosing table's on-disk record in sync.
// A Column obtained from a read-only Table rejects every mutating method
// with ErrReadOnlyViolation.
type Column struct {
	g        *Group
	name     string
	col      *column.Column
	meta     *columnMeta // nil on the read path
	writable bool
}

// Name returns the column's name.
func (c *Column) Name() string { return c.name }

// Size returns the number of rows in the column.
func (c *Column) Size() int { return c.col.Size() }

// Get returns the value at logical row i. Panics if i is out of range.
func (c *Column) Get(i int) int64 { return c.col.Get(i) }

// IsNull reports whether row i holds the nullable-column sentinel.
func (c *Column) IsNull(i int) bool { return c.col.IsNull(i) }

func (c *Column) syncRoot() { c.meta.root = c.col.Root() }

// Set writes v at row i.
func (c *Column) Set(i int, v int64) error {
	if !c.writable {
		return ErrReadOnlyViolation
	}
	if err := c.col.Set(i, v); err != nil {
		return translateError(err)
	}
	c.syncRoot()
	return nil
}

// Insert shifts rows [i,Size()) down by one and writes v at i.
func (c *Column) Insert(i int, v int64) error {
	if !c.writable {
		return ErrReadOnlyViolation
	}
	if err := c.col.Insert(i, v); err != nil {
		return translateError(err)
	}
	c.syncRoot()
	return nil
}

// Erase removes the half-open row range [b,e).
func (c *Column) Erase(b, e int) error {
	if !c.writable {
		return ErrReadOnlyViolation
	}
	if err := c.col.Erase(b, e); err != nil {
		return translateError(err)
	}
	c.syncRoot()
	return nil
}

// Truncate erases [n, Size()).
func (c *Column) Truncate(n int) error {
	if !c.writable {
		return ErrReadOnlyViolation
	}
	if err := c.col.Truncate(n); err != nil {
		return translateError(err)
	}
	c.syncRoot()
	return nil
}
