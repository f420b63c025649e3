// Package packdb provides an embeddable, single-file object database engine.
//
// packdb stores everything — bit-packed integer arrays, B+-tree columns, and
// their MVCC version history — inside one memory-mapped file. There is no
// separate WAL file and no external manifest: durability comes from a
// two-slot commit protocol at the head of the file, and copy-on-write
// allocation keeps prior versions reachable from readers that started before
// the newest commit.
//
// # Quick start
//
//	g, err := packdb.Open(ctx, "./data.db")
//	if err != nil { ... }
//	defer g.Close()
//
//	err = g.Write(ctx, func(txn *packdb.WriteTxn) error {
//	    tbl, err := txn.CreateTable("events")
//	    if err != nil { return err }
//	    col, err := tbl.AddColumn("value")
//	    if err != nil { return err }
//	    return col.Insert(0, 42)
//	})
//
//	err = g.Read(ctx, func(txn *packdb.ReadTxn) error {
//	    tbl, _ := txn.Table("events")
//	    col, _ := tbl.Column("value")
//	    n, err := col.Find(packdb.Equal, int64(42))
//	    _ = n
//	    return err
//	})
//
// # Concurrency model
//
// A Group allows any number of concurrent ReadTxns plus at most one
// concurrent WriteTxn. Readers never block writers and vice versa: a reader
// pins the version it opened with and continues to see it even while a
// writer commits new versions underneath it.
//
// # Durability model
//
// Every WriteTxn commit is either fully visible or not visible at all: the
// active-slot pointer near the start of the file is only updated after every
// dirty page has reached the backing store, subject to the configured
// DurabilityMode.
package packdb
