package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryonapi/models"
	"tryonapi/test"
)

func selectedGarment(t *testing.T) models.GarmentDescriptor {
	t.Helper()
	garment, ok := models.FindGarment("set-sky-blue")
	require.True(t, ok)
	return garment
}

func machineAtUploadStep(t *testing.T, llm *test.LLMMock, garments *test.GarmentProviderMock, onInvalid func()) *Machine {
	t.Helper()
	m := NewMachine(llm, garments, onInvalid)
	require.NoError(t, m.SelectGarment(selectedGarment(t)))
	require.NoError(t, m.AdvanceToUpload())
	source := test.NewSourceImage()
	require.NoError(t, m.SetSourceImage(&source))
	return m
}

func settled(m *Machine) func() bool {
	return func() bool {
		snap := m.Snapshot()
		return snap.Step == models.StepResult && !snap.InFlight
	}
}

func TestAdvanceRequiresGarment(t *testing.T) {
	m := NewMachine(&test.LLMMock{}, &test.GarmentProviderMock{}, nil)

	require.ErrorIs(t, m.AdvanceToUpload(), ErrNoGarment)

	require.NoError(t, m.SelectGarment(selectedGarment(t)))
	require.NoError(t, m.AdvanceToUpload())

	// Selection is frozen once the upload step is reached.
	require.ErrorIs(t, m.SelectGarment(selectedGarment(t)), ErrInvalidStep)
	require.ErrorIs(t, m.AdvanceToUpload(), ErrInvalidStep)
}

func TestSetSourceImageOnlyInUploadStep(t *testing.T) {
	m := NewMachine(&test.LLMMock{}, &test.GarmentProviderMock{}, nil)
	source := test.NewSourceImage()
	require.ErrorIs(t, m.SetSourceImage(&source), ErrInvalidStep)
}

func TestStartTryOnRequiresSourceImage(t *testing.T) {
	m := NewMachine(&test.LLMMock{}, &test.GarmentProviderMock{}, nil)
	require.NoError(t, m.SelectGarment(selectedGarment(t)))
	require.NoError(t, m.AdvanceToUpload())

	require.ErrorIs(t, m.StartTryOn(context.Background()), ErrNoSourceImage)
}

func TestTryOnSuccess(t *testing.T) {
	llm := &test.LLMMock{Size: models.SizeL}
	garments := &test.GarmentProviderMock{}
	m := machineAtUploadStep(t, llm, garments, nil)

	require.NoError(t, m.StartTryOn(context.Background()))
	snap := m.Snapshot()
	assert.Equal(t, models.StepResult, snap.Step)
	assert.True(t, snap.InFlight)

	require.Eventually(t, settled(m), 2*time.Second, 10*time.Millisecond)

	snap = m.Snapshot()
	require.Nil(t, snap.LastError)
	require.NotNil(t, snap.ResultImage)
	require.NotNil(t, snap.RecommendedSize)
	assert.Equal(t, models.SizeL, *snap.RecommendedSize)
	assert.Equal(t, 1, garments.Calls())
}

func TestStartTryOnRejectedWhileInFlight(t *testing.T) {
	llm := &test.LLMMock{Block: make(chan struct{})}
	m := machineAtUploadStep(t, llm, &test.GarmentProviderMock{}, nil)

	require.NoError(t, m.StartTryOn(context.Background()))
	require.ErrorIs(t, m.StartTryOn(context.Background()), ErrAttemptInFlight)

	close(llm.Block)
	require.Eventually(t, settled(m), 2*time.Second, 10*time.Millisecond)
}

func TestMissingCredentialShortCircuits(t *testing.T) {
	llm := &test.LLMMock{NoKey: true}
	garments := &test.GarmentProviderMock{}
	invalidated := false
	m := machineAtUploadStep(t, llm, garments, func() { invalidated = true })

	require.NoError(t, m.StartTryOn(context.Background()))
	require.Eventually(t, settled(m), 2*time.Second, 10*time.Millisecond)

	snap := m.Snapshot()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, models.ErrInvalidCredential, snap.LastError.Kind)
	assert.True(t, invalidated)

	// The attempt fails before any fetch or inference call is made.
	assert.Equal(t, 0, garments.Calls())
	estimates, generations := llm.Calls()
	assert.Equal(t, 0, estimates)
	assert.Equal(t, 0, generations)
}

func TestInferenceFailureIsClassified(t *testing.T) {
	llm := &test.LLMMock{GenerateErr: &models.TryOnError{
		Kind:    models.ErrInference,
		Message: "NO_IMAGE: the model returned no image for this photo",
	}}
	m := machineAtUploadStep(t, llm, &test.GarmentProviderMock{}, nil)

	require.NoError(t, m.StartTryOn(context.Background()))
	require.Eventually(t, settled(m), 2*time.Second, 10*time.Millisecond)

	snap := m.Snapshot()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, models.ErrInference, snap.LastError.Kind)
	assert.Contains(t, snap.LastError.Message, "NO_IMAGE")
	assert.Nil(t, snap.ResultImage)
}

func TestRetryFromFailureKeepsInputs(t *testing.T) {
	llm := &test.LLMMock{GenerateErr: test.ErrBrokenGarment}
	m := machineAtUploadStep(t, llm, &test.GarmentProviderMock{}, nil)

	require.NoError(t, m.StartTryOn(context.Background()))
	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return !snap.InFlight && snap.LastError != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.RetryFromFailure())

	snap := m.Snapshot()
	assert.Equal(t, models.StepUploadPhoto, snap.Step)
	assert.Nil(t, snap.LastError)
	assert.NotNil(t, snap.SelectedGarment)
	assert.NotNil(t, snap.SourceImage)

	// Nothing failed anymore, so a second retry is rejected.
	require.ErrorIs(t, m.RetryFromFailure(), ErrNotFailed)
}

func TestRetryWithoutFailure(t *testing.T) {
	m := NewMachine(&test.LLMMock{}, &test.GarmentProviderMock{}, nil)
	require.ErrorIs(t, m.RetryFromFailure(), ErrNotFailed)
}

func TestResetDiscardsStaleAttempt(t *testing.T) {
	llm := &test.LLMMock{Block: make(chan struct{})}
	m := machineAtUploadStep(t, llm, &test.GarmentProviderMock{}, nil)

	require.NoError(t, m.StartTryOn(context.Background()))

	m.Reset()
	close(llm.Block)

	// Let the in-flight attempt complete; its commit must be discarded.
	require.Eventually(t, func() bool {
		estimates, _ := llm.Calls()
		return estimates > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, models.StepSelectGarment, snap.Step)
	assert.Nil(t, snap.SelectedGarment)
	assert.Nil(t, snap.SourceImage)
	assert.Nil(t, snap.ResultImage)
	assert.Nil(t, snap.LastError)
	assert.False(t, snap.InFlight)
}
