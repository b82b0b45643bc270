package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryonapi/models"
	"tryonapi/services"
	"tryonapi/test"
)

func TestGarmentImageFromDataURL(t *testing.T) {
	svc, err := services.NewGarmentImageService("http://localhost:1")
	require.NoError(t, err)

	source := services.NewEncodedImage(test.JPEGImage(30, 40))
	garment := models.GarmentDescriptor{ID: "inline", Name: "Inline Set", ImageSource: source.DataURL()}

	img, err := svc.GarmentImage(context.Background(), garment)
	require.NoError(t, err)
	assert.Equal(t, source.Bytes(), img.Bytes())
}

func TestGarmentImageFetchedThroughProxy(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.String()
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(test.JPEGImage(50, 70))
	}))
	defer server.Close()

	svc, err := services.NewGarmentImageService(server.URL)
	require.NoError(t, err)

	garment, ok := models.FindGarment("set-sky-blue")
	require.True(t, ok)

	img, err := svc.GarmentImage(context.Background(), garment)
	require.NoError(t, err)
	assert.False(t, img.IsZero())

	w, h, err := img.Bounds()
	require.NoError(t, err)
	assert.Equal(t, 50, w)
	assert.Equal(t, 70, h)

	assert.Contains(t, requested, "output=jpg")
	assert.Contains(t, requested, "w=1024")
}

func TestGarmentImageFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A relay 400 must never masquerade as a credential problem.
		http.Error(w, "bad upstream", http.StatusBadRequest)
	}))
	defer server.Close()

	svc, err := services.NewGarmentImageService(server.URL)
	require.NoError(t, err)

	garment, ok := models.FindGarment("set-maroon")
	require.True(t, ok)

	_, err = svc.GarmentImage(context.Background(), garment)
	require.Error(t, err)

	classified := services.ClassifyError(err)
	require.NotNil(t, classified)
	assert.Equal(t, models.ErrInference, classified.Kind)
}
