package models

import "fmt"

// Step is the discrete workflow step the user is on.
type Step string

const (
	StepSelectGarment Step = "select_garment"
	StepUploadPhoto   Step = "upload_photo"
	StepResult        Step = "result"
)

// SizeCode is one of the fixed clothing sizes. Never a free-form string once
// parsed.
type SizeCode string

const (
	SizeXS  SizeCode = "XS"
	SizeS   SizeCode = "S"
	SizeM   SizeCode = "M"
	SizeL   SizeCode = "L"
	SizeXL  SizeCode = "XL"
	SizeXXL SizeCode = "XXL"
)

// SizeCodes lists all valid sizes. The order is significant: size parsing
// matches against it first-to-last.
var SizeCodes = []SizeCode{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}

// ErrorKind classifies a failed try-on attempt.
type ErrorKind string

const (
	// ErrInvalidCredential marks an authentication or billing problem with the
	// inference backend. Further attempts are pointless until the API key is
	// replaced.
	ErrInvalidCredential ErrorKind = "invalid_credential"
	// ErrImageRead marks a local image that could not be decoded.
	ErrImageRead ErrorKind = "image_read_failure"
	// ErrInference covers generic backend errors, garment image fetch failures
	// and responses missing the expected payload.
	ErrInference ErrorKind = "inference_failure"
)

// TryOnError is a classified failure with a user-facing message.
type TryOnError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *TryOnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
