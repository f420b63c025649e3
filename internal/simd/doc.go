// Package simd exposes runtime CPU capability detection used to gate the
// array scan kernel's wide-block comparison path.
//
// # Supported platforms
//
//   - x86-64: SSE4.2, AVX2, AVX-512
//   - ARM64: NEON, SVE2
//
// Runtime CPU feature detection selects the best ISA once at init time.
// Set PACKDB_SIMD to force a specific ISA (falls back to auto-detection if
// the requested ISA isn't available on the current CPU).
package simd
