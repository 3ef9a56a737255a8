package docker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"slumber/pkg/constants"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

const exportMountPath = "/export"

// ExportVolume streams the volume as a tar archive. The volume is mounted
// into a created, never started, helper container; the helper is removed
// when the returned reader is closed.
func (r *Runtime) ExportVolume(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := r.PullImage(ctx, r.opts.HelperImage); err != nil {
		return nil, err
	}

	helperID, err := r.CreateContainer(ctx, &interfaces.ContainerSpec{
		Name:   fmt.Sprintf("export-%s-%s", handle, uuid.NewString()[:8]),
		Image:  r.opts.HelperImage,
		Labels: map[string]string{constants.LabelManagedBy: constants.ManagedBySlumber, constants.LabelRole: constants.RoleHelper},
		Mounts: []interfaces.VolumeMount{{VolumeHandle: handle, Target: exportMountPath}},
	})
	if err != nil {
		return nil, err
	}

	// the archive is streamed after this call returns, so no per-call timeout applies
	rc, _, err := r.cli.CopyFromContainer(ctx, helperID, exportMountPath+"/.")
	if err != nil {
		r.removeHelper(helperID)
		return nil, fmt.Errorf("copy from volume %s: %w", handle, err)
	}

	return &helperReader{ReadCloser: rc, cleanup: func() { r.removeHelper(helperID) }}, nil
}

func (r *Runtime) removeHelper(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.CallTimeout)
	defer cancel()
	if err := r.RemoveContainer(ctx, id); err != nil {
		logger.WarnCtx(ctx, "failed to remove export helper %s: %v", id, err)
	}
}

type helperReader struct {
	io.ReadCloser
	once    sync.Once
	cleanup func()
}

func (h *helperReader) Close() error {
	err := h.ReadCloser.Close()
	h.once.Do(h.cleanup)
	return err
}
