// Package types provides shared data structures for termhub.
//
// Core Types:
//   - Session: a terminal tab and its backend binding
//   - SessionPatch: partial session update
//   - SearchState: search bar state
//   - Event: output, error or termination of a backend connection
//   - OpenRequest: parameters for opening a connection
//   - ConnectionInfo: live connection description
package types
