package s3

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid s3 storage configuration")
	ErrInvalidPath        = errors.New("invalid object path")
	ErrObjectNotFound     = errors.New("object not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrOperationTimeout   = errors.New("storage operation timed out")
	ErrOperationCanceled  = errors.New("storage operation canceled")
	ErrServiceUnavailable = errors.New("storage service unavailable")
	ErrPresignerNil       = errors.New("presign client is not configured")
)
