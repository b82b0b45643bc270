package services_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"tryonapi/models"
	"tryonapi/services"
)

func TestClassifyErrorNil(t *testing.T) {
	assert.Nil(t, services.ClassifyError(nil))
}

func TestClassifyErrorMissingCredential(t *testing.T) {
	classified := services.ClassifyError(fmt.Errorf("attempt failed: %w", services.ErrNoCredential))
	require.NotNil(t, classified)
	assert.Equal(t, models.ErrInvalidCredential, classified.Kind)
}

func TestClassifyErrorBackend400(t *testing.T) {
	classified := services.ClassifyError(genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."})
	require.NotNil(t, classified)
	assert.Equal(t, models.ErrInvalidCredential, classified.Kind)
}

func TestClassifyErrorKeyMessage(t *testing.T) {
	classified := services.ClassifyError(errors.New("rpc failed: API_KEY_INVALID"))
	require.NotNil(t, classified)
	assert.Equal(t, models.ErrInvalidCredential, classified.Kind)
}

func TestClassifyErrorServerFailure(t *testing.T) {
	classified := services.ClassifyError(genai.APIError{Code: 503, Message: "service overloaded"})
	require.NotNil(t, classified)
	assert.Equal(t, models.ErrInference, classified.Kind)
	assert.Equal(t, "AI error. Please try a different photo.", classified.Message)
}

func TestClassifyErrorPassthrough(t *testing.T) {
	original := &models.TryOnError{Kind: models.ErrImageRead, Message: "Could not read the image"}
	classified := services.ClassifyError(fmt.Errorf("normalization: %w", original))
	assert.Same(t, original, classified)
}

func TestClassifyErrorGeneric(t *testing.T) {
	classified := services.ClassifyError(errors.New("connection reset by peer"))
	require.NotNil(t, classified)
	assert.Equal(t, models.ErrInference, classified.Kind)
}
