package workflow

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"tryonapi/models"
	"tryonapi/services"
)

// Session is the mutable root of the workflow, exposed to the presentation
// layer as a snapshot. It is owned exclusively by a Machine.
type Session struct {
	SelectedGarment *models.GarmentDescriptor
	SourceImage     *services.EncodedImage
	ResultImage     *services.EncodedImage
	RecommendedSize *models.SizeCode
	InFlight        bool
	LastError       *models.TryOnError
	Step            models.Step
}

var (
	ErrInvalidStep     = errors.New("operation not valid in the current step")
	ErrNoGarment       = errors.New("a garment must be selected first")
	ErrNoSourceImage   = errors.New("a source photo must be provided first")
	ErrAttemptInFlight = errors.New("a try-on attempt is already in flight")
	ErrNotFailed       = errors.New("no failed attempt to retry")
)

// Machine drives the try-on workflow: select garment → upload photo → result.
// All session mutation goes through its transitions; everything else in the
// pipeline is stateless.
//
// Attempts run on their own goroutine and commit through a generation counter:
// a Reset (or a newer attempt) bumps the counter, so a stale completion finds
// its token outdated and discards its outcome instead of overwriting the
// session.
type Machine struct {
	mu      sync.Mutex
	session Session
	attempt uint64

	llm      services.LLMTryOnProcessor
	garments services.GarmentImageProvider

	// onInvalidCredential invalidates the credential-validity cell owned by
	// the application shell whenever an attempt fails with invalid_credential.
	onInvalidCredential func()
}

func NewMachine(llm services.LLMTryOnProcessor, garments services.GarmentImageProvider, onInvalidCredential func()) *Machine {
	return &Machine{
		session:             initialSession(),
		llm:                 llm,
		garments:            garments,
		onInvalidCredential: onInvalidCredential,
	}
}

func initialSession() Session {
	return Session{Step: models.StepSelectGarment}
}

// Snapshot returns a copy of the current session for rendering.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// SelectGarment records the chosen garment. The user may change the selection
// any number of times before advancing.
func (m *Machine) SelectGarment(garment models.GarmentDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Step != models.StepSelectGarment {
		return ErrInvalidStep
	}
	m.session.SelectedGarment = &garment
	return nil
}

// AdvanceToUpload moves to the photo upload step.
func (m *Machine) AdvanceToUpload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Step != models.StepSelectGarment {
		return ErrInvalidStep
	}
	if m.session.SelectedGarment == nil {
		return ErrNoGarment
	}
	m.session.Step = models.StepUploadPhoto
	return nil
}

// SetSourceImage replaces the uploaded photo (nil removes it) and clears any
// stale error.
func (m *Machine) SetSourceImage(img *services.EncodedImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Step != models.StepUploadPhoto {
		return ErrInvalidStep
	}
	m.session.SourceImage = img
	m.session.LastError = nil
	return nil
}

// StartTryOn launches an inference attempt. The transition to the in-flight
// result state happens synchronously; the attempt itself runs on its own
// goroutine and commits through the generation counter. A second StartTryOn
// while in flight is rejected — it would race writes to the session.
func (m *Machine) StartTryOn(ctx context.Context) error {
	m.mu.Lock()
	if m.session.InFlight {
		m.mu.Unlock()
		return ErrAttemptInFlight
	}
	if m.session.SelectedGarment == nil {
		m.mu.Unlock()
		return ErrNoGarment
	}
	if m.session.SourceImage == nil {
		m.mu.Unlock()
		return ErrNoSourceImage
	}

	m.session.InFlight = true
	m.session.LastError = nil
	m.session.ResultImage = nil
	m.session.RecommendedSize = nil
	m.session.Step = models.StepResult

	m.attempt++
	token := m.attempt
	garment := *m.session.SelectedGarment
	source := *m.session.SourceImage
	m.mu.Unlock()

	go m.runAttempt(ctx, token, garment, source)
	return nil
}

// Reset returns the session to its initial state. An in-flight attempt is not
// cancelled; bumping the counter makes its eventual completion a no-op.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	m.session = initialSession()
}

// RetryFromFailure returns to the upload step after a failed attempt, keeping
// the selected garment and the uploaded photo.
func (m *Machine) RetryFromFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Step != models.StepResult || m.session.InFlight || m.session.LastError == nil {
		return ErrNotFailed
	}
	m.session.Step = models.StepUploadPhoto
	m.session.LastError = nil
	return nil
}

func (m *Machine) runAttempt(ctx context.Context, token uint64, garment models.GarmentDescriptor, source services.EncodedImage) {
	result, size, err := m.executeAttempt(ctx, garment, source)

	var classified *models.TryOnError
	if err != nil {
		classified = services.ClassifyError(err)
		sentry.CaptureException(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.attempt {
		log.Printf("[TryOn] Discarding stale attempt %d (current %d)", token, m.attempt)
		return
	}
	m.session.InFlight = false
	if classified != nil {
		if classified.Kind == models.ErrInvalidCredential && m.onInvalidCredential != nil {
			m.onInvalidCredential()
		}
		m.session.LastError = classified
		return
	}
	m.session.ResultImage = &result
	m.session.RecommendedSize = &size
}

// executeAttempt runs one full inference cycle: garment reference fetch, then
// size estimation and synthesis concurrently. The two calls are independent;
// the attempt joins on both and surfaces the first error (join-based model,
// no fail-fast).
func (m *Machine) executeAttempt(ctx context.Context, garment models.GarmentDescriptor, source services.EncodedImage) (services.EncodedImage, models.SizeCode, error) {
	// A missing credential fails the attempt before any network activity,
	// including the garment fetch.
	if !m.llm.HasCredential() {
		return services.EncodedImage{}, "", services.ErrNoCredential
	}

	garmentImage, err := m.garments.GarmentImage(ctx, garment)
	if err != nil {
		return services.EncodedImage{}, "", err
	}

	var result services.EncodedImage
	var size models.SizeCode
	var g errgroup.Group
	g.Go(func() error {
		var err error
		size, err = m.llm.EstimateSize(ctx, source, garment.Name)
		return err
	})
	g.Go(func() error {
		var err error
		result, err = m.llm.GenerateTryOn(ctx, source, garmentImage, garment.Name)
		return err
	})
	if err := g.Wait(); err != nil {
		return services.EncodedImage{}, "", err
	}
	return result, size, nil
}
