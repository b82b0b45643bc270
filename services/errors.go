package services

import (
	"errors"
	"strings"

	"google.golang.org/genai"

	"tryonapi/models"
)

// ClassifyError assigns a failed inference attempt to an ErrorKind.
//
// Credential problems are recognized first: a missing key (ErrNoCredential), a
// 400-class backend response, or a message textually signalling a bad key all
// mean further attempts are pointless until the credential is replaced. An
// error already carrying a kind passes through unchanged; everything else is a
// generic inference failure.
func ClassifyError(err error) *models.TryOnError {
	if err == nil {
		return nil
	}

	if isCredentialError(err) {
		return &models.TryOnError{
			Kind:    models.ErrInvalidCredential,
			Message: "Please select an API key with billing enabled.",
		}
	}

	var tryOnErr *models.TryOnError
	if errors.As(err, &tryOnErr) {
		return tryOnErr
	}

	return &models.TryOnError{
		Kind:    models.ErrInference,
		Message: "AI error. Please try a different photo.",
	}
}

func isCredentialError(err error) bool {
	if errors.Is(err, ErrNoCredential) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "400") ||
		strings.Contains(msg, "api key not valid") ||
		strings.Contains(msg, "api_key_invalid")
}
