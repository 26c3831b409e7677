package core

import "errors"

// Sentinel errors the API layer maps to response statuses. User-fixable
// conditions carry their own message text; dependency failures are wrapped
// with the cause and logged server-side only.
var (
	ErrInvalidUpload     = errors.New("invalid upload")
	ErrNoExtractableText = errors.New("no text extracted from file")
	ErrNoChunksProduced  = errors.New("no chunks produced")
	ErrLimitExceeded     = errors.New("guest message limit exceeded")
	ErrNotFound          = errors.New("document not found")
)
