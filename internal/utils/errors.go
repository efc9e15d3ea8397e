package utils

import "errors"

// Common catalog errors used across services. Handlers map them to API
// error codes with the same text.
var (
	ErrBrandRefRequired    = errors.New("BRAND_REF_REQUIRED")
	ErrBrandCodeRequired   = errors.New("BRAND_CODE_REQUIRED")
	ErrBrandNameRequired   = errors.New("BRAND_NAME_REQUIRED")
	ErrBrandNotFound       = errors.New("BRAND_NOT_FOUND")
	ErrBrandExists         = errors.New("BRAND_EXISTS")
	ErrProductCodeTaken    = errors.New("PRODUCT_CODE_TAKEN")
	ErrUnknownProvider     = errors.New("UNKNOWN_PROVIDER")
	ErrInvalidMergeMode    = errors.New("INVALID_MERGE_MODE")
	ErrRunInProgress       = errors.New("RUN_IN_PROGRESS")
	ErrProviderUnavailable = errors.New("PROVIDER_UNAVAILABLE")
)
