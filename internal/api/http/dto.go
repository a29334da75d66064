package http

import (
	"github.com/pablopunk/bucky-sub000/internal/domain"
)

// OptionsRequest is the DTO for per-job backup options.
type OptionsRequest struct {
	Compress            bool `json:"compress"`
	TransferConcurrency int  `json:"transfer_concurrency"`
	DeleteExtraneous    bool `json:"delete_extraneous"`
}

// SaveJobRequest is the Data Transfer Object for creating/updating a job.
type SaveJobRequest struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	SourcePath    string         `json:"source_path"`
	RemotePath    string         `json:"remote_path"`
	ProviderID    string         `json:"provider_id"`
	Schedule      string         `json:"schedule"`
	RetentionDays int            `json:"retention_days"`
	Options       OptionsRequest `json:"options"`
}

// ToDomainJob converts a SaveJobRequest DTO to a domain.Job object.
func (r *SaveJobRequest) ToDomainJob() *domain.Job {
	return &domain.Job{
		ID:            r.ID,
		Name:          r.Name,
		SourcePath:    r.SourcePath,
		RemotePath:    r.RemotePath,
		ProviderID:    r.ProviderID,
		Schedule:      r.Schedule,
		RetentionDays: r.RetentionDays,
		Options: domain.BackupOptions{
			Compress:            r.Options.Compress,
			TransferConcurrency: r.Options.TransferConcurrency,
			DeleteExtraneous:    r.Options.DeleteExtraneous,
		},
	}
}
