package main

import (
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4/middleware"

	"tryonapi/controllers"
	"tryonapi/services"
)

func main() {
	// Local development keeps the key and proxy settings in a .env file.
	_ = godotenv.Load()

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         services.GetEnv("SENTRY_DSN", ""),
		Environment: services.GetEnv("ENV", "local"),
		Release:     "tryonapi@1.0.0",
		Debug:       false,
		// Set TracesSampleRate to 1.0 to capture 100%
		// of transactions for performance monitoring.
		// We recommend adjusting this value in production,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	llm := services.NewGoogleLLMTryOnProcessor()
	garments, err := services.NewGarmentImageService("")
	if err != nil {
		log.Fatalf("Failed to initialize garment image service: %s", err)
	}
	credentials := controllers.NewCredentialGate(llm)

	e := controllers.SetupServer(llm, garments, credentials)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	e.Logger.Fatal(e.Start(":" + services.GetEnv("PORT", "8083")))
}
