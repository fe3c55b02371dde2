// Package videostore places a completed job's MP4 at a predictable path
// and mints the absolute URLs returned in the job Result (§6.1, §6.2
// RAILWAY_PUBLIC_DOMAIN / generateVideoUrl / generateDownloadUrl). The spec
// leaves final-video storage to a blob-store collaborator (§1 out of
// scope) — this is the minimal local-filesystem implementation of that
// collaborator's interface, with retention handled separately by
// internal/retention (DESIGN.md Open Question 2).
package videostore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes finished MP4s under a single directory, one file per job.
type Store struct {
	dir          string
	publicDomain string
}

func New(dir, publicDomain string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create video storage dir: %w", err)
	}
	return &Store{dir: dir, publicDomain: strings.TrimSuffix(publicDomain, "/")}, nil
}

func (s *Store) path(jobID uuid.UUID) string {
	return filepath.Join(s.dir, jobID.String()+".mp4")
}

// Place moves the muxer's output file into the store at its predictable
// per-job path, returning the file size and the final path.
func (s *Store) Place(jobID uuid.UUID, tempPath string) (finalPath string, sizeBytes int64, err error) {
	dest := s.path(jobID)
	if err := moveFile(tempPath, dest); err != nil {
		return "", 0, fmt.Errorf("place video for job %s: %w", jobID, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return "", 0, fmt.Errorf("stat placed video: %w", err)
	}
	return dest, info.Size(), nil
}

// moveFile renames when possible and falls back to copy+remove across
// filesystem boundaries (the clip temp dir and the video store directory
// are not guaranteed to share a device).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Open returns a reader for a completed job's video and its size, for the
// download handler to stream.
func (s *Store) Open(jobID uuid.UUID) (*os.File, int64, error) {
	f, err := os.Open(s.path(jobID))
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// VideoURL and DownloadURL mint absolute URLs per §6.2's
// generateVideoUrl/generateDownloadUrl contract. They're identical today —
// one predictable per-job path served by the download endpoint — kept as
// two methods because the spec names them as two distinct fields.
func (s *Store) VideoURL(jobID uuid.UUID) string {
	return s.urlFor(jobID)
}

func (s *Store) DownloadURL(jobID uuid.UUID) string {
	return s.urlFor(jobID)
}

func (s *Store) urlFor(jobID uuid.UUID) string {
	if s.publicDomain == "" {
		return "/api/download-video/" + jobID.String()
	}
	scheme := "https://"
	if strings.HasPrefix(s.publicDomain, "http://") || strings.HasPrefix(s.publicDomain, "https://") {
		scheme = ""
	}
	return fmt.Sprintf("%s%s/api/download-video/%s", scheme, s.publicDomain, jobID.String())
}
