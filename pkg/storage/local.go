package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaFile = ".job.json"

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath string
	now      func() time.Time
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath, now: time.Now}, nil
}

// CreateJob creates the job directory and saves its metadata
func (s *LocalStorage) CreateJob(ctx context.Context, jobID uuid.UUID, sourceName string) (*JobInfo, error) {
	if err := os.MkdirAll(s.jobDir(jobID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	info := &JobInfo{
		ID:         jobID,
		SourceName: sourceName,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.saveMetadata(info); err != nil {
		return nil, err
	}
	return info, nil
}

// Put writes to a temp file in the job directory and renames it into place,
// so readers never observe a partially written file.
func (s *LocalStorage) Put(ctx context.Context, jobID uuid.UUID, name string, r io.Reader) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	filePath, err := s.filePath(jobID, name)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(dir, filePath, r); err != nil {
		return nil, err
	}

	return statFile(filePath)
}

// Open retrieves a file of a job
func (s *LocalStorage) Open(ctx context.Context, jobID uuid.UUID, name string) (io.ReadCloser, *FileInfo, error) {
	filePath, err := s.filePath(jobID, name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("file %s of job %s: %w", name, jobID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := statFile(filePath)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Delete removes a file of a job
func (s *LocalStorage) Delete(ctx context.Context, jobID uuid.UUID, name string) error {
	filePath, err := s.filePath(jobID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetJob returns job metadata. Directories without metadata report their
// modification time as creation time.
func (s *LocalStorage) GetJob(ctx context.Context, jobID uuid.UUID) (*JobInfo, error) {
	dir := s.jobDir(jobID)
	stat, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat job directory: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &JobInfo{ID: jobID, CreatedAt: stat.ModTime().UTC()}, nil
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

// ListJobs returns every job directory under the base path
func (s *LocalStorage) ListJobs(ctx context.Context) ([]*JobInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*JobInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}

		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}

		info, err := s.GetJob(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, info)
	}

	return jobs, nil
}

// DeleteJob removes a job directory
func (s *LocalStorage) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

func (s *LocalStorage) jobDir(jobID uuid.UUID) string {
	return filepath.Join(s.basePath, jobID.String())
}

func (s *LocalStorage) filePath(jobID uuid.UUID, name string) (string, error) {
	safe := sanitizeFilename(name)
	if safe == "" || safe == metaFile {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(s.jobDir(jobID), safe), nil
}

// saveMetadata saves job metadata to a JSON file
func (s *LocalStorage) saveMetadata(info *JobInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dir := s.jobDir(info.ID)
	if err := writeAtomic(dir, filepath.Join(dir, metaFile), strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func writeAtomic(dir, target string, r io.Reader) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName) // Cleanup on error
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func statFile(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &FileInfo{
		Name:    filepath.Base(path),
		Size:    stat.Size(),
		Path:    path,
		ModTime: stat.ModTime(),
	}, nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
