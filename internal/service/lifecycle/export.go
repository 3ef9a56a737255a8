package lifecycle

import (
	"context"
	"fmt"

	"slumber/internal/model"
	"slumber/pkg/logger"
)

// Export archives the workload volume to the backup store. A running
// workload is hibernated first so the data is consistent, and woken again
// afterwards.
func (s *Service) Export(ctx context.Context, id string) (*model.BackupRef, error) {
	if s.backups == nil {
		return nil, ErrBackupDisabled
	}
	ctx = logger.WithWorkload(ctx, id)

	ref, wasActive, err := s.exportLocked(ctx, id)
	if wasActive {
		if _, werr := s.Wake(ctx, id); werr != nil {
			logger.WarnCtx(ctx, "failed to wake after export: %v", werr)
		}
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *Service) exportLocked(ctx context.Context, id string) (*model.BackupRef, bool, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	wasActive := isActive(w.State)
	if wasActive {
		if err := s.hibernateLocked(ctx, w, ReasonExport); err != nil {
			return nil, false, err
		}
	}

	rc, err := s.runtime.ExportVolume(ctx, w.VolumeHandle)
	if err != nil {
		return nil, wasActive, fmt.Errorf("export volume: %w", err)
	}
	defer rc.Close()

	createdAt := s.now()
	key := fmt.Sprintf("%s/%s.tar", id, createdAt.Format("20060102T150405Z"))
	location, err := s.backups.Upload(ctx, key, rc)
	if err != nil {
		return nil, wasActive, fmt.Errorf("upload backup: %w", err)
	}

	logger.InfoCtx(ctx, "volume exported to %s", location)
	return &model.BackupRef{WorkloadID: id, Key: key, Location: location, CreatedAt: createdAt}, wasActive, nil
}
