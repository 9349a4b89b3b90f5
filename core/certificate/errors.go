package certificate

import "errors"

var (
	// Validation errors: rejected before any state beyond PENDING exists.
	ErrInvalidRequest             = errors.New("invalid generation request")
	ErrRecipientDataRequired      = errors.New("recipient data is required")
	ErrTemplateVersionNotFound    = errors.New("template version not found")
	ErrTemplateNotPublished       = errors.New("template version is not published")
	ErrQuotaExceeded              = errors.New("tenant certificate quota exceeded")
	ErrDuplicateCertificateNumber = errors.New("certificate number already taken")

	ErrCertificateNotFound = errors.New("certificate not found")
	ErrHashRecordNotFound  = errors.New("certificate hash record not found")

	// ErrTenantMismatch is returned when a referenced template version is
	// owned by a different tenant than the active namespace.
	ErrTenantMismatch = errors.New("template version belongs to another tenant")

	// ErrInvalidStateTransition rejects transitions the state machine does
	// not permit; the record is left unchanged.
	ErrInvalidStateTransition = errors.New("invalid certificate state transition")

	// ErrNumberGenerationExhausted is returned when the collision-checked
	// number generator fails to find a free number.
	ErrNumberGenerationExhausted = errors.New("could not generate a unique certificate number")
)
