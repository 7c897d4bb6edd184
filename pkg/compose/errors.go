package compose

import (
	"errors"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/driver"
	"github.com/cuemby/sdscompose/pkg/registry"
	"github.com/cuemby/sdscompose/pkg/remote"
)

// IsBadRequest reports a structurally invalid request
func IsBadRequest(err error) bool {
	return errdefs.IsInvalidArgument(err)
}

// IsNotFound reports an unknown pool, backend or tier
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// IsDriverMapping reports a backend without a usable driver
func IsDriverMapping(err error) bool {
	return errors.Is(err, driver.ErrDriverMapping)
}

// IsRemoteIO reports a failed host batch. The batch result lists the
// hosts that were rewritten before the failure.
func IsRemoteIO(err error) (*remote.BatchResult, bool) {
	var batchErr *remote.BatchError
	if errors.As(err, &batchErr) {
		return batchErr.Result, true
	}
	return nil, false
}

// IsRegistry reports a pool record persistence failure. Host changes made
// before it are not rolled back.
func IsRegistry(err error) bool {
	var regErr *registry.Error
	return errors.As(err, &regErr)
}
