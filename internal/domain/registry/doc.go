// Package registry provides the terminal session registry.
//
// The registry is the single source of truth for which sessions exist, their
// order, which one is active and what connection each is bound to. It also
// holds the process-wide zoom level and the search bar state.
//
// Invariants:
//   - exactly min(1, count) sessions are active
//   - display names are unique among live sessions ("shell", "shell (1)", ...)
//   - ids are never reused
//
// The Manager has no I/O capability and no lock. It is owned by the control
// loop; every method must be called from a loop closure.
//
// Example Usage:
//
//	reg := registry.NewManager()
//	a := reg.Create("", "/proj", "")
//	b := reg.Create("", "/proj", "")   // named "shell (1)", now active
//	reg.Close(b)                       // a is active again
package registry
