package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"takeoff-backend/internal/shared/storage/object"
	"takeoff-backend/internal/shared/telemetry"
)

// ItemPurger removes extracted items owned by a file.
type ItemPurger interface {
	DeleteByFile(ctx context.Context, projectID, fileID string) error
}

// BusyChecker reports whether a file has a job queued or processing.
type BusyChecker interface {
	FileBusy(ctx context.Context, fileID string) (bool, error)
}

// Notifier is told when project state visible to clients changed.
type Notifier interface {
	Notify(ctx context.Context, projectID string)
}

// Service contains file upload and removal logic.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	Items    ItemPurger
	Jobs     BusyChecker
	Notifier Notifier
}

// Upload stores the payload and records the file.
func (s *Service) Upload(ctx context.Context, projectID string, kind Kind, fileName string, r io.Reader) (File, error) {
	if strings.TrimSpace(projectID) == "" {
		return File{}, errors.New("projectID is required")
	}
	if s.Store == nil {
		return File{}, errors.New("object store not configured")
	}
	key, size, mimeType, err := s.Store.Save(ctx, projectID, fileName, r)
	if err != nil {
		return File{}, fmt.Errorf("store file: %w", err)
	}
	file := File{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Kind:       kind,
		FileName:   strings.TrimSpace(fileName),
		MimeType:   mimeType,
		SizeBytes:  size,
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, file); err != nil {
		_ = s.Store.Delete(context.Background(), key)
		return File{}, err
	}
	telemetry.Info("file.uploaded", map[string]any{
		"project_id": projectID,
		"file_id":    file.ID,
		"kind":       string(kind),
		"size_bytes": size,
	})
	s.notify(ctx, projectID)
	return file, nil
}

// List returns a project's files oldest first.
func (s *Service) List(ctx context.Context, projectID string) ([]File, error) {
	return s.Repo.ListByProject(ctx, projectID)
}

// Delete removes the file, its extracted items and the stored payload. It
// fails with ErrFileBusy while an extraction of the file is in flight.
func (s *Service) Delete(ctx context.Context, projectID, fileID string) error {
	file, err := s.Repo.Get(ctx, projectID, fileID)
	if err != nil {
		return err
	}
	if s.Jobs != nil {
		busy, err := s.Jobs.FileBusy(ctx, fileID)
		if err != nil {
			return fmt.Errorf("check file jobs: %w", err)
		}
		if busy {
			return ErrFileBusy
		}
	}
	if s.Items != nil {
		if err := s.Items.DeleteByFile(ctx, projectID, fileID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
	}
	if err := s.Repo.Delete(ctx, projectID, fileID); err != nil {
		return err
	}
	if s.Store != nil {
		if err := s.Store.Delete(ctx, file.StorageKey); err != nil {
			telemetry.Warn("file.delete_object_failed", map[string]any{
				"project_id": projectID,
				"file_id":    fileID,
				"error":      err.Error(),
			})
		}
	}
	s.notify(ctx, projectID)
	return nil
}

func (s *Service) notify(ctx context.Context, projectID string) {
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, projectID)
	}
}
