package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

// call runs fn with a per-attempt timeout, retrying transient engine failures
// with linear backoff. Not-found is mapped to interfaces.ErrContainerNotFound.
func (r *Runtime) call(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(r.opts.RetryDelay * time.Duration(attempt-1)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%s: %w: %v", op, interfaces.ErrContainerNotFound, err)
		}
		if !isTransient(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		logger.WarnCtx(ctx, "runtime call %q failed (attempt %d/%d): %v", op, attempt, r.opts.MaxRetries, err)
	}
	return fmt.Errorf("%s: %w: %v", op, interfaces.ErrRuntimeUnavailable, err)
}

// isTransient reports whether a failed engine call may succeed when repeated
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errdefs.IsNotFound(err), errdefs.IsConflict(err), errdefs.IsInvalidParameter(err),
		errdefs.IsForbidden(err), errdefs.IsUnauthorized(err), errdefs.IsNotImplemented(err):
		return false
	case errdefs.IsUnavailable(err), errdefs.IsSystem(err), errdefs.IsDeadline(err), errdefs.IsUnknown(err):
		return true
	case client.IsErrConnectionFailed(err):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, interfaces.ErrContainerNotFound) {
		return nil
	}
	return err
}
