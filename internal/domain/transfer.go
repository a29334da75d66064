package domain

import "context"

// Invocation describes one transfer-tool run.
type Invocation struct {
	Source      string
	Destination string
	// ConfigPath points at a rendered tool configuration holding the
	// provider credentials. The caller owns its lifecycle.
	ConfigPath string
	Flags      []string
}

// Result captures the observable outcome of a transfer-tool run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Transferer invokes the external storage transfer tool. The returned
// error covers spawn failures only; a non-zero exit is reported through
// Result.ExitCode.
type Transferer interface {
	Transfer(ctx context.Context, inv Invocation) (Result, error)
}
