// Package queue implements the directory-backed job mailbox shared by
// the desktop application and the native-messaging bridge host. All
// cross-process mutation happens through atomic renames and
// create-exclusive opens; no in-memory locking spans the process
// boundary.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

// Queue directory layout under the root.
const (
	DirPending    = "pending"
	DirInFlight   = "in-flight"
	DirResolved   = "resolved"
	DirDeadLetter = "dead-letter"

	LockFileName = "lock"
	LogFileName  = "host.log"
)

// Store is a crash-safe mailbox with three live areas (pending,
// in-flight, resolved) plus a dead-letter quarantine. Jobs move
// between areas only by rename, so a reader never observes a partial
// file and concurrent claimers race safely.
type Store struct {
	root string
	log  *slog.Logger
}

// NewStore opens the mailbox at root, creating the area directories
// if needed.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	for _, dir := range []string{DirPending, DirInFlight, DirResolved, DirDeadLetter} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating queue dir %s: %w", dir, err)
		}
	}
	return &Store{root: root, log: logger}, nil
}

// Root returns the queue root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) dir(area string) string {
	return filepath.Join(s.root, area)
}

// Enqueue serializes the job into the pending area via temp-write then
// rename, so no claimant can ever read a partially written job.
func (s *Store) Enqueue(job model.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("refusing to enqueue invalid job: %w", err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", job.ID, err)
	}

	final := filepath.Join(s.dir(DirPending), job.ID+".json")
	if err := s.writeAtomic(final, data); err != nil {
		return fmt.Errorf("enqueuing job %s: %w", job.ID, err)
	}

	s.log.Info("job enqueued", "id", job.ID, "to", job.Payload.To)
	return nil
}

// Claim transfers one pending job into the in-flight area and returns
// it. Losing a rename race to another claimant is benign; the
// candidate is skipped silently. Returns (nil, nil) when nothing is
// claimable. Candidates that fail to parse or validate are quarantined.
func (s *Store) Claim() (*model.Job, error) {
	entries, err := os.ReadDir(s.dir(DirPending))
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		id := strings.TrimSuffix(name, ".json")
		src := filepath.Join(s.dir(DirPending), name)
		dst := filepath.Join(s.dir(DirInFlight), name)

		// A pending file whose resolution already exists must not be
		// forwarded again (e.g. it failed locally on a previous pass).
		if res, resErr := s.Resolution(id); resErr == nil && res != nil {
			s.Quarantine(src, "job already has a resolution")
			continue
		}

		err := withRetry(func() error { return os.Rename(src, dst) })
		if errors.Is(err, fs.ErrNotExist) {
			// Another claimant renamed it first.
			continue
		}
		if errors.Is(err, ErrFileLockTimeout) {
			// Budget exhausted: fail the job locally and leave the
			// original file in place for manual inspection.
			s.log.Error("claim exhausted retry budget", "id", id, "error", err)
			if rerr := s.Resolve(id, model.Resolution{
				Success: false,
				Error:   "file lock timeout while claiming job",
			}); rerr != nil {
				s.log.Error("failed to record lock-timeout failure", "id", id, "error", rerr)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("claiming %s: %w", name, err)
		}

		job, err := s.readJob(dst)
		if err != nil {
			s.Quarantine(dst, err.Error())
			continue
		}

		s.log.Info("job claimed", "id", job.ID)
		return job, nil
	}

	return nil, nil
}

// Resolve writes the terminal record for a job into the resolved area
// and removes its in-flight file. Writing a resolution twice is
// deterministic (last write wins) and logged as an anomaly; a missing
// in-flight file is logged but not fatal, since a recovery sweep may
// already have moved it.
func (s *Store) Resolve(id string, res model.Resolution) error {
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}
	res.ID = id

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling resolution %s: %w", id, err)
	}

	final := filepath.Join(s.dir(DirResolved), id+".json")
	if _, statErr := os.Stat(final); statErr == nil {
		s.log.Warn("anomaly: overwriting existing resolution", "id", id)
	}

	if err := s.writeAtomic(final, data); err != nil {
		return fmt.Errorf("writing resolution %s: %w", id, err)
	}

	inflight := filepath.Join(s.dir(DirInFlight), id+".json")
	err = withRetry(func() error { return os.Remove(inflight) })
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("in-flight file already gone at resolve", "id", id)
	} else if err != nil {
		return fmt.Errorf("removing in-flight file for %s: %w", id, err)
	}

	s.log.Info("job resolved", "id", id, "success", res.Success)
	return nil
}

// Resolution loads the terminal record for a job id, or (nil, nil) if
// none has been written yet.
func (s *Store) Resolution(id string) (*model.Resolution, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(DirResolved), id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading resolution %s: %w", id, err)
	}

	var res model.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing resolution %s: %w", id, err)
	}
	return &res, nil
}

// Quarantine moves an unprocessable file into the dead-letter area and
// records the reason in a sidecar file. Nothing is ever deleted;
// quarantined artifacts are kept for inspection until a human prunes
// them.
func (s *Store) Quarantine(path, reason string) {
	name := filepath.Base(path)
	dst := filepath.Join(s.dir(DirDeadLetter), name)

	if err := withRetry(func() error { return os.Rename(path, dst) }); err != nil {
		s.log.Error("failed to quarantine file", "path", path, "error", err)
		return
	}

	note := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), reason)
	if err := os.WriteFile(dst+".reason", []byte(note), 0o644); err != nil {
		s.log.Error("failed to write quarantine reason", "path", dst, "error", err)
	}

	s.log.Warn("file quarantined", "name", name, "reason", reason)
}

// Recover sweeps jobs stranded in the in-flight area by a crashed host
// back into pending so they become claimable again. Returns the number
// of jobs recovered.
func (s *Store) Recover() (int, error) {
	entries, err := os.ReadDir(s.dir(DirInFlight))
	if err != nil {
		return 0, fmt.Errorf("listing in-flight jobs: %w", err)
	}

	recovered := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		src := filepath.Join(s.dir(DirInFlight), name)
		dst := filepath.Join(s.dir(DirPending), name)

		err := withRetry(func() error { return os.Rename(src, dst) })
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("recovering %s: %w", name, err)
		}

		recovered++
		s.log.Info("recovered stranded job", "name", name)
	}

	return recovered, nil
}

// ListJobs returns the parsed jobs in the given area (DirPending or
// DirInFlight), skipping files that do not parse.
func (s *Store) ListJobs(area string) ([]model.Job, error) {
	entries, err := os.ReadDir(s.dir(area))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", area, err)
	}

	var jobs []model.Job
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := s.readJob(filepath.Join(s.dir(area), entry.Name()))
		if err != nil {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// ListResolutions returns all resolutions currently retained.
func (s *Store) ListResolutions() ([]model.Resolution, error) {
	entries, err := os.ReadDir(s.dir(DirResolved))
	if err != nil {
		return nil, fmt.Errorf("listing resolutions: %w", err)
	}

	var out []model.Resolution
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		res, err := s.Resolution(strings.TrimSuffix(name, ".json"))
		if err != nil || res == nil {
			continue
		}
		out = append(out, *res)
	}
	return out, nil
}

// ListDeadLetter returns the names of quarantined artifacts (reason
// sidecars excluded).
func (s *Store) ListDeadLetter() ([]string, error) {
	entries, err := os.ReadDir(s.dir(DirDeadLetter))
	if err != nil {
		return nil, fmt.Errorf("listing dead-letter: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".reason") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// writeAtomic writes data to a temp file in the destination directory
// and renames it into place, so the final path only ever holds a
// complete file.
func (s *Store) writeAtomic(final string, data []byte) error {
	dir := filepath.Dir(final)
	tmp, err := os.CreateTemp(dir, filepath.Base(final)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := withRetry(func() error { return os.Rename(tmp.Name(), final) }); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// readJob parses and validates a job file.
func (s *Store) readJob(path string) (*model.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job file: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job file: %w", err)
	}
	return &job, nil
}
