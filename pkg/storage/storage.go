// Package storage keeps the files of each processing job under their own directory.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job or one of its files does not exist.
var ErrNotFound = errors.New("not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Path    string    `json:"path"` // Absolute path on the backing filesystem
	ModTime time.Time `json:"mod_time"`
}

// JobInfo describes one job directory.
type JobInfo struct {
	ID         uuid.UUID `json:"id"`
	SourceName string    `json:"source_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Storage defines the interface for job-scoped file storage
type Storage interface {
	// CreateJob registers a new job directory and records its metadata
	CreateJob(ctx context.Context, jobID uuid.UUID, sourceName string) (*JobInfo, error)

	// Put atomically stores r as name inside the job directory
	Put(ctx context.Context, jobID uuid.UUID, name string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for a stored file
	Open(ctx context.Context, jobID uuid.UUID, name string) (io.ReadCloser, *FileInfo, error)

	// Delete removes a single file; a missing file is not an error
	Delete(ctx context.Context, jobID uuid.UUID, name string) error

	// GetJob returns the metadata of a job
	GetJob(ctx context.Context, jobID uuid.UUID) (*JobInfo, error)

	// ListJobs returns all known jobs
	ListJobs(ctx context.Context) ([]*JobInfo, error)

	// DeleteJob removes a job directory with everything in it
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}

// Config holds storage configuration
type Config struct {
	LocalPath string
}

// New creates the Storage implementation for cfg
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath)
}
