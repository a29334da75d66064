package rclone

import (
	"fmt"
	"strings"

	"github.com/pablopunk/bucky-sub000/internal/domain"
)

// flagSync is a pseudo-flag: it selects the sync subcommand (mirror
// deletions on the destination) instead of copy. It is consumed by
// Transfer and never passed to the binary.
const flagSync = "--sync"

// DestinationURI composes the remote target as
// <providerID>:<bucket><remotePath>, with remotePath normalized to exactly
// one leading slash. The composition is idempotent.
func DestinationURI(p *domain.Provider, remotePath string) string {
	remotePath = "/" + strings.TrimLeft(remotePath, "/")
	if remotePath == "/" {
		remotePath = ""
	}
	return fmt.Sprintf("%s:%s%s", p.ID, p.Bucket, remotePath)
}

// Flags derives tool flags from the job's backup options.
func Flags(opts domain.BackupOptions) []string {
	var flags []string
	if opts.Compress {
		flags = append(flags, "--compress")
	}
	if opts.TransferConcurrency > 0 {
		flags = append(flags, fmt.Sprintf("--transfers=%d", opts.TransferConcurrency))
	}
	if opts.DeleteExtraneous {
		flags = append(flags, flagSync)
	}
	return flags
}
