package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"tryonapi/models"
	"tryonapi/services"
	"tryonapi/workflow"
)

const sessionCookieName = "tryon_session"

type SelectGarmentIn struct {
	GarmentID string `json:"garment_id" validate:"required"`
}

type UploadPhotoIn struct {
	DataURL string `json:"data_url" validate:"required"`
}

type SessionResponse struct {
	Step            models.Step               `json:"step"`
	HasKey          bool                      `json:"has_key"`
	SelectedGarment *models.GarmentDescriptor `json:"selected_garment,omitempty"`
	SourceImage     string                    `json:"source_image,omitempty"`
	InFlight        bool                      `json:"in_flight"`
	ResultImage     string                    `json:"result_image,omitempty"`
	RecommendedSize *models.SizeCode          `json:"recommended_size,omitempty"`
	Error           *models.TryOnError        `json:"error,omitempty"`
}

type TryOnController struct {
	LLM         services.LLMTryOnProcessor
	Sessions    *workflow.Manager
	Credentials *CredentialGate
}

func (controller *TryOnController) TryOnRoutes(g *echo.Group) {
	g.GET("/catalog", controller.ListCatalog)
	g.GET("/session", controller.GetSession)
	g.POST("/session/garment", controller.SelectGarment)
	g.POST("/session/advance", controller.AdvanceToUpload)
	g.POST("/session/photo", controller.UploadPhoto)
	g.DELETE("/session/photo", controller.RemovePhoto)
	g.POST("/session/tryon", controller.StartTryOn)
	g.POST("/session/retry", controller.RetryFromFailure)
	g.POST("/session/reset", controller.ResetSession)
	g.GET("/session/result", controller.DownloadResult)
	g.POST("/credential", controller.RestoreCredential)
}

// machine resolves the workflow machine for the request's session cookie,
// creating a fresh session on first touch.
func (controller *TryOnController) machine(c echo.Context) *workflow.Machine {
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		if m, ok := controller.Sessions.Get(cookie.Value); ok {
			return m
		}
	}
	id, m := controller.Sessions.Create()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return m
}

func (controller *TryOnController) ListCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, models.Catalog())
}

func (controller *TryOnController) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, controller.renderSession(controller.machine(c)))
}

func (controller *TryOnController) renderSession(m *workflow.Machine) SessionResponse {
	snap := m.Snapshot()
	resp := SessionResponse{
		Step:            snap.Step,
		HasKey:          controller.Credentials.Usable(),
		SelectedGarment: snap.SelectedGarment,
		InFlight:        snap.InFlight,
		RecommendedSize: snap.RecommendedSize,
		Error:           snap.LastError,
	}
	if snap.SourceImage != nil {
		resp.SourceImage = snap.SourceImage.DataURL()
	}
	if snap.ResultImage != nil {
		resp.ResultImage = snap.ResultImage.DataURL()
	}
	return resp
}

func (controller *TryOnController) SelectGarment(c echo.Context) error {
	var req SelectGarmentIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	garment, ok := models.FindGarment(req.GarmentID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown garment"})
	}
	m := controller.machine(c)
	if err := m.SelectGarment(garment); err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusOK, controller.renderSession(m))
}

func (controller *TryOnController) AdvanceToUpload(c echo.Context) error {
	m := controller.machine(c)
	if err := m.AdvanceToUpload(); err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusOK, controller.renderSession(m))
}

// UploadPhoto accepts either a multipart "photo" file or a JSON body with an
// already-encoded data_url. Both paths are normalized before being stored, so
// the bound holds regardless of what the client sends.
func (controller *TryOnController) UploadPhoto(c echo.Context) error {
	data, err := readUploadedPhoto(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, it seems the photo was not provided, please try again"})
	}

	normalized, err := services.NormalizeImage(data, services.UploadBound, services.InferenceQuality)
	if err != nil {
		var tryOnErr *models.TryOnError
		if errors.As(err, &tryOnErr) {
			return c.JSON(http.StatusBadRequest, tryOnErr)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Error reading the file."})
	}

	m := controller.machine(c)
	if err := m.SetSourceImage(&normalized); err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusOK, controller.renderSession(m))
}

func readUploadedPhoto(c echo.Context) ([]byte, error) {
	if file, err := c.FormFile("photo"); err == nil {
		src, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return io.ReadAll(src)
	}
	var req UploadPhotoIn
	if err := c.Bind(&req); err != nil {
		return nil, err
	}
	if err := c.Validate(req); err != nil {
		return nil, err
	}
	img, err := services.ParseDataURL(req.DataURL)
	if err != nil {
		return nil, err
	}
	return img.Bytes(), nil
}

func (controller *TryOnController) RemovePhoto(c echo.Context) error {
	m := controller.machine(c)
	if err := m.SetSourceImage(nil); err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusOK, controller.renderSession(m))
}

func (controller *TryOnController) StartTryOn(c echo.Context) error {
	if !controller.Credentials.Usable() {
		return c.JSON(http.StatusForbidden, &models.TryOnError{
			Kind:    models.ErrInvalidCredential,
			Message: "Please select an API key with billing enabled.",
		})
	}
	m := controller.machine(c)
	// The attempt outlives this request, so it must not run on the request
	// context.
	if err := m.StartTryOn(context.Background()); err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusAccepted, controller.renderSession(m))
}

func (controller *TryOnController) RetryFromFailure(c echo.Context) error {
	m := controller.machine(c)
	if err := m.RetryFromFailure(); err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusOK, controller.renderSession(m))
}

func (controller *TryOnController) ResetSession(c echo.Context) error {
	m := controller.machine(c)
	m.Reset()
	return c.JSON(http.StatusOK, controller.renderSession(m))
}

// DownloadResult serves the synthesized look as a JPEG attachment.
func (controller *TryOnController) DownloadResult(c echo.Context) error {
	snap := controller.machine(c).Snapshot()
	if snap.ResultImage == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No try-on result available"})
	}
	name := "my-look"
	if snap.SelectedGarment != nil {
		name = fmt.Sprintf("my-look-%s", snap.SelectedGarment.ID)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name+".jpg"))
	return c.Blob(http.StatusOK, "image/jpeg", snap.ResultImage.Bytes())
}

// RestoreCredential re-evaluates the credential gate after the operator
// replaced the API key.
func (controller *TryOnController) RestoreCredential(c echo.Context) error {
	controller.Credentials.Restore(controller.LLM.HasCredential())
	return c.JSON(http.StatusOK, map[string]bool{"has_key": controller.Credentials.Usable()})
}

func transitionError(c echo.Context, err error) error {
	if errors.Is(err, workflow.ErrAttemptInFlight) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
}
