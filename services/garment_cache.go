package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"

	"tryonapi/models"
)

// Catalog images are static, so cached reference fetches stay valid for a
// while.
const garmentCacheExpiration = 1 * time.Hour

// Remote garment sources go through an image-resizing relay that also bounds
// the width server-side, which keeps payloads small without local resizing.
const proxyBoundWidth = 1024

// GarmentImageProvider resolves a garment descriptor to its normalized
// reference image.
type GarmentImageProvider interface {
	GarmentImage(ctx context.Context, garment models.GarmentDescriptor) (EncodedImage, error)
}

// GarmentImageService fetches garment reference images through the image
// proxy and keeps them in a Ristretto-backed loadable cache keyed by source
// locator.
type GarmentImageService struct {
	cache *cache.LoadableCache[EncodedImage]
}

// NewGarmentImageService creates the service. proxyBaseURL is the image relay
// base (e.g. https://images.weserv.nl); empty falls back to the
// IMAGE_PROXY_URL environment variable or the default relay.
func NewGarmentImageService(proxyBaseURL string) (*GarmentImageService, error) {
	if proxyBaseURL == "" {
		proxyBaseURL = GetEnv("IMAGE_PROXY_URL", "https://images.weserv.nl")
	}

	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 26, // 64MB of garment JPEGs
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	ristrettoStore := ristretto_store.NewRistretto(ristrettoCache)

	loadFunction := func(ctx context.Context, key any) (EncodedImage, []store.Option, error) {
		source, ok := key.(string)
		if !ok {
			return EncodedImage{}, nil, fmt.Errorf("invalid key type provided to garment cache: expected string, got %T", key)
		}
		log.Printf("CACHE MISS for garment image %s, fetching", source)
		img, err := fetchGarmentImage(ctx, proxyBaseURL, source)
		if err != nil {
			return EncodedImage{}, nil, err
		}
		return img, []store.Option{
			store.WithExpiration(garmentCacheExpiration),
			store.WithCost(int64(len(img.Bytes()))),
		}, nil
	}

	return &GarmentImageService{
		cache: cache.NewLoadable[EncodedImage](
			loadFunction,
			cache.New[EncodedImage](ristrettoStore),
		),
	}, nil
}

func (s *GarmentImageService) GarmentImage(ctx context.Context, garment models.GarmentDescriptor) (EncodedImage, error) {
	img, err := s.cache.Get(ctx, garment.ImageSource)
	if err != nil {
		// Garment reference problems are backend-side from the user's point of
		// view, never an image_read_failure of their own photo.
		return EncodedImage{}, &models.TryOnError{
			Kind:    models.ErrInference,
			Message: fmt.Sprintf("Could not load the garment image for %s.", garment.Name),
		}
	}
	return img, nil
}

// fetchGarmentImage resolves a garment source. An already-encoded data URL is
// final and is used as-is; a remote URL is fetched through the proxy, decoded
// and re-encoded as JPEG at the proxy quality without further resizing.
func fetchGarmentImage(ctx context.Context, proxyBaseURL, source string) (EncodedImage, error) {
	if strings.HasPrefix(source, "data:") {
		return ParseDataURL(source)
	}

	proxied := fmt.Sprintf("%s/?url=%s&w=%d&output=jpg", proxyBaseURL, url.QueryEscape(source), proxyBoundWidth)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxied, nil)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("failed to create garment image request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("failed to fetch garment image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return EncodedImage{}, fmt.Errorf("failed to fetch garment image, status code: %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("failed to read garment image body: %w", err)
	}
	return NormalizeImage(content, 0, ProxyQuality)
}
