package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"tryonapi/models"
)

// LLMModelName is the GenAI model to use for a call.
type LLMModelName int32

const (
	// Flash3 handles the size estimation call (text output).
	Flash3 LLMModelName = iota
	// Pro3Image handles the try-on synthesis call (image output).
	Pro3Image
)

func (t LLMModelName) String() string {
	switch t {
	case Flash3:
		return "gemini-3-flash-preview"
	case Pro3Image:
		return "gemini-3-pro-image-preview"
	default:
		return "gemini-3-flash-preview"
	}
}

// ErrNoCredential is returned before any network call when no usable API key
// is configured. An unset key and the literal string "undefined" are treated
// identically.
var ErrNoCredential = errors.New("no usable API key configured")

// LLMTryOnProcessor issues the two inference calls of a try-on attempt. Both
// operations are pure with respect to session state: inputs in, result or
// error out.
type LLMTryOnProcessor interface {
	HasCredential() bool
	EstimateSize(ctx context.Context, person EncodedImage, garmentName string) (models.SizeCode, error)
	GenerateTryOn(ctx context.Context, person, garment EncodedImage, garmentName string) (EncodedImage, error)
}

// GoogleLLMTryOnProcessor talks to the Gemini API. Model ids are configuration
// passed at construction, not hardcoded per call.
type GoogleLLMTryOnProcessor struct {
	apiKey     string
	textModel  string
	imageModel string
}

// NewGoogleLLMTryOnProcessor builds a processor from the environment:
// GOOGLE_API_KEY plus optional TEXT_MODEL / IMAGE_MODEL overrides.
func NewGoogleLLMTryOnProcessor() *GoogleLLMTryOnProcessor {
	return &GoogleLLMTryOnProcessor{
		apiKey:     GetEnv("GOOGLE_API_KEY", ""),
		textModel:  GetEnv("TEXT_MODEL", Flash3.String()),
		imageModel: GetEnv("IMAGE_MODEL", Pro3Image.String()),
	}
}

func (p *GoogleLLMTryOnProcessor) HasCredential() bool {
	return p.apiKey != "" && p.apiKey != "undefined"
}

func (p *GoogleLLMTryOnProcessor) client(ctx context.Context) (*genai.Client, error) {
	if !p.HasCredential() {
		return nil, ErrNoCredential
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// EstimateSize sends the person photo (re-normalized to the smaller bound)
// with the size instruction and parses the textual answer into a SizeCode.
func (p *GoogleLLMTryOnProcessor) EstimateSize(ctx context.Context, person EncodedImage, garmentName string) (models.SizeCode, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	small, err := NormalizeEncoded(person, SizeEstimateBound, InferenceQuality)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: small.Bytes(), MIMEType: "image/jpeg"}},
		{Text: fmt.Sprintf("Analyze the person's body type and suggest a clothing size (XS, S, M, L, XL, XXL) for %q. Return ONLY the size code.", garmentName)},
	}
	result, err := client.Models.GenerateContent(ctx, p.textModel, []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount: 1,
	})
	if err != nil {
		return "", fmt.Errorf("size estimation call failed: %w", err)
	}
	return ParseSizeCode(result.Text()), nil
}

// ParseSizeCode maps a model answer onto the fixed size set. Matching is by
// substring containment in enumeration order, first match wins; an empty or
// unrecognized answer falls back to M. The fallback is policy: an
// uninterpretable response must never surface as a workflow error.
func ParseSizeCode(text string) models.SizeCode {
	answer := strings.ToUpper(strings.TrimSpace(text))
	if answer == "" {
		return models.SizeM
	}
	for _, code := range models.SizeCodes {
		if strings.Contains(answer, string(code)) {
			return code
		}
	}
	return models.SizeM
}

// GenerateTryOn renders the person wearing the garment. Both images are
// re-normalized to the synthesis bound concurrently before transmission; the
// first inline image part of the response is the result.
func (p *GoogleLLMTryOnProcessor) GenerateTryOn(ctx context.Context, person, garment EncodedImage, garmentName string) (EncodedImage, error) {
	client, err := p.client(ctx)
	if err != nil {
		return EncodedImage{}, err
	}

	var optPerson, optGarment EncodedImage
	var g errgroup.Group
	g.Go(func() error {
		var err error
		optPerson, err = NormalizeEncoded(person, SynthesisBound, InferenceQuality)
		return err
	})
	g.Go(func() error {
		var err error
		optGarment, err = NormalizeEncoded(garment, SynthesisBound, InferenceQuality)
		return err
	})
	if err := g.Wait(); err != nil {
		return EncodedImage{}, err
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: optPerson.Bytes(), MIMEType: "image/jpeg"}},
		{InlineData: &genai.Blob{Data: optGarment.Bytes(), MIMEType: "image/jpeg"}},
		{Text: fmt.Sprintf("Virtual Try-On: Dress the person in IMAGE 1 with the exact clothing set from IMAGE 2 (%s). Face and background must remain the same.", garmentName)},
	}
	result, err := client.Models.GenerateContent(ctx, p.imageModel, []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount: 1,
		ImageConfig:    &genai.ImageConfig{AspectRatio: "3:4"},
	})
	if err != nil {
		return EncodedImage{}, fmt.Errorf("try-on synthesis call failed: %w", err)
	}

	img := FirstInlineImage(result)
	if img == nil {
		return EncodedImage{}, &models.TryOnError{
			Kind:    models.ErrInference,
			Message: "NO_IMAGE: the model returned no image for this photo",
		}
	}
	return NewEncodedImage(img), nil
}

// FirstInlineImage extracts the first inline image payload of a response, or
// nil when no candidate carries one.
func FirstInlineImage(result *genai.GenerateContentResponse) []byte {
	if result == nil {
		return nil
	}
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			if strings.HasPrefix(part.InlineData.MIMEType, "image/") && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
