// Package types defines the public vocabulary shared by the guarded
// allocator, its diagnoser and the crash-reporting side: slot lifecycle
// states, allocation placements, captured call traces and the diagnostic
// Report produced for a faulting address.
//
// Types in this package are fixed-size values so a Report can be built
// inside a fault handler without allocating. Formatting helpers (FormatText,
// FormatJSON) do allocate and are meant to run after the fault is handled.
package types
