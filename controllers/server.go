package controllers

import (
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tryonapi/services"
	"tryonapi/workflow"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// CredentialGate is the application shell's "credential is usable" cell. The
// workflow invalidates it when an attempt is classified invalid_credential;
// the UI then forces the key-selection flow before any further attempt.
type CredentialGate struct {
	usable atomic.Bool
}

func NewCredentialGate(llm services.LLMTryOnProcessor) *CredentialGate {
	g := &CredentialGate{}
	g.usable.Store(llm.HasCredential())
	return g
}

func (g *CredentialGate) Usable() bool {
	return g.usable.Load()
}

func (g *CredentialGate) Invalidate() {
	g.usable.Store(false)
}

// Restore re-evaluates the gate after the key was replaced.
func (g *CredentialGate) Restore(hasCredential bool) {
	g.usable.Store(hasCredential)
}

func SetupServer(
	llm services.LLMTryOnProcessor,
	garments services.GarmentImageProvider,
	credentials *CredentialGate,
) *echo.Echo {
	e := echo.New()

	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: true,
	}))

	sessions := workflow.NewManager(func() *workflow.Machine {
		return workflow.NewMachine(llm, garments, credentials.Invalidate)
	})

	controller := TryOnController{
		LLM:         llm,
		Sessions:    sessions,
		Credentials: credentials,
	}
	apiGroup := e.Group("/api")
	controller.TryOnRoutes(apiGroup)

	return e
}
