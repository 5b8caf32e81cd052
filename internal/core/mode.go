// Package core is the orchestration layer.  It composes the UDP
// transport and capabilities into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	session  →  transport  →  capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of udpmux (listen or
// connect).  Each mode owns its full lifecycle from socket setup to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}
