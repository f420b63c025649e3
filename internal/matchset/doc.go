// Package matchset implements kernel.Collector over a Roaring bitmap, so a
// FindAll scan that matches a large fraction of a column accumulates a
// compressed match set instead of a Go slice growing one append at a time.
package matchset
