// Package rclone invokes the external rclone binary to perform the actual
// data transfer for a backup job.
package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transferer runs rclone as a subprocess and implements domain.Transferer.
type Transferer struct {
	binary  string
	timeout time.Duration // 0 means no timeout
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewTransferer creates a subprocess-backed transferer. binary is the path
// to the rclone executable.
func NewTransferer(binary string, timeout time.Duration, logger *slog.Logger) *Transferer {
	return &Transferer{
		binary:  binary,
		timeout: timeout,
		logger:  logger.With("component", "rclone"),
		tracer:  otel.Tracer("backupd-rclone"),
	}
}

// Transfer spawns the tool and waits for it to exit. The returned error
// covers spawn failures only; a non-zero exit comes back in Result.
func (t *Transferer) Transfer(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	ctx, span := t.tracer.Start(ctx, "rclone.Transfer",
		trace.WithAttributes(
			attribute.String("transfer.source", inv.Source),
			attribute.String("transfer.destination", inv.Destination),
		))
	defer span.End()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(inv.Flags)+6)
	subcommand := "copy"
	if containsFlag(inv.Flags, flagSync) {
		subcommand = "sync"
	}
	args = append(args, subcommand, inv.Source, inv.Destination)
	if inv.ConfigPath != "" {
		args = append(args, "--config", inv.ConfigPath)
	}
	for _, f := range inv.Flags {
		if f != flagSync {
			args = append(args, f)
		}
	}

	t.logger.Info("invoking transfer tool", "binary", t.binary, "args", args)

	cmd := exec.CommandContext(ctx, t.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := domain.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			span.SetStatus(codes.Error, "transfer tool exited non-zero")
			span.SetAttributes(attribute.Int("transfer.exit_code", res.ExitCode))
			return res, nil
		}
		// Spawn failure: binary missing, context canceled before start, etc.
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to spawn transfer tool")
		return res, fmt.Errorf("failed to spawn transfer tool: %w", err)
	}

	res.ExitCode = 0
	return res, nil
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
