package test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"tryonapi/models"
	"tryonapi/services"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

// JPEGImage builds an opaque in-memory JPEG fixture of the given dimensions.
func JPEGImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		log.Fatalf("failed to encode test jpeg: %s", err)
	}
	return buf.Bytes()
}

// TransparentPNG builds a PNG fixture that is fully transparent, to exercise
// the white flattening path.
func TransparentPNG(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Fatalf("failed to encode test png: %s", err)
	}
	return buf.Bytes()
}

// NewSourceImage is a ready-to-store person photo fixture.
func NewSourceImage() services.EncodedImage {
	return services.NewEncodedImage(JPEGImage(120, 160))
}

// LLMMock implements services.LLMTryOnProcessor with scriptable outcomes. Set
// Block to make calls wait until the channel is closed, which lets tests hold
// an attempt in flight.
type LLMMock struct {
	mu sync.Mutex

	NoKey       bool
	Size        models.SizeCode
	SizeErr     error
	Image       []byte
	GenerateErr error
	Block       chan struct{}

	EstimateCalls int
	GenerateCalls int
}

func (m *LLMMock) HasCredential() bool {
	return !m.NoKey
}

func (m *LLMMock) EstimateSize(ctx context.Context, person services.EncodedImage, garmentName string) (models.SizeCode, error) {
	m.mu.Lock()
	m.EstimateCalls++
	block := m.Block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if m.SizeErr != nil {
		return "", m.SizeErr
	}
	if m.Size == "" {
		return models.SizeM, nil
	}
	return m.Size, nil
}

func (m *LLMMock) GenerateTryOn(ctx context.Context, person, garment services.EncodedImage, garmentName string) (services.EncodedImage, error) {
	m.mu.Lock()
	m.GenerateCalls++
	block := m.Block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if m.GenerateErr != nil {
		return services.EncodedImage{}, m.GenerateErr
	}
	if m.Image == nil {
		return services.NewEncodedImage(JPEGImage(60, 80)), nil
	}
	return services.NewEncodedImage(m.Image), nil
}

func (m *LLMMock) Calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EstimateCalls, m.GenerateCalls
}

// GarmentProviderMock serves a fixed reference image without any network.
type GarmentProviderMock struct {
	mu    sync.Mutex
	Image []byte
	Err   error

	FetchCalls int
}

func (m *GarmentProviderMock) GarmentImage(ctx context.Context, garment models.GarmentDescriptor) (services.EncodedImage, error) {
	m.mu.Lock()
	m.FetchCalls++
	m.mu.Unlock()
	if m.Err != nil {
		return services.EncodedImage{}, m.Err
	}
	if m.Image == nil {
		return services.NewEncodedImage(JPEGImage(40, 60)), nil
	}
	return services.NewEncodedImage(m.Image), nil
}

func (m *GarmentProviderMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FetchCalls
}

// ErrBrokenGarment is a generic provider failure for tests.
var ErrBrokenGarment = errors.New("garment source unavailable")
