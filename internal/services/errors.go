package services

import (
	apierrors "github.com/cooper437/commodities-research/internal/errors"
)

// Service errors. These alias the sentinels in internal/errors so the HTTP
// error handler can map a raw service error to the right problem response,
// the same way os.ErrNotExist aliases fs.ErrNotExist.
var (
	// Dataset errors
	ErrDatasetNotFound = apierrors.ErrDatasetNotFound
	ErrDatasetNotBuilt = apierrors.ErrDatasetNotBuilt

	// Operation errors
	ErrOperationNotFound   = apierrors.ErrOperationNotFound
	ErrOperationNotRunning = apierrors.ErrOperationNotRunning
	ErrUnknownStep         = apierrors.ErrUnknownStep

	// General errors
	ErrInvalidInput = apierrors.ErrInvalidInput
)
