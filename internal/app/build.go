package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mvellano/pulsecheck/internal/config"
	"github.com/mvellano/pulsecheck/internal/genai"
	"github.com/mvellano/pulsecheck/internal/httpapi"
	"github.com/mvellano/pulsecheck/internal/observability"
	"github.com/mvellano/pulsecheck/internal/store"
	"github.com/mvellano/pulsecheck/internal/survey"
)

// BuildResult bundles everything the server process needs after wiring.
type BuildResult struct {
	Config   config.Config
	Handler  http.Handler
	Sessions *survey.Manager
	Metrics  *observability.Metrics
	Provider genai.Provider

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires the record store, the model provider and the survey flow into
// a ready-to-serve handler.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	surveyStore, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	provider, err := genai.NewProvider(genai.Config{
		Mode:          cfg.GenAIMode,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		HTTPURL:       cfg.GenAIHTTPURL,
	})
	if err != nil {
		_ = surveyStore.Close()
		return nil, fmt.Errorf("genai provider init failed: %w", err)
	}

	sessions := survey.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *survey.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})
	runner := survey.NewRunner(surveyStore, provider, metrics)
	resolver := survey.NewResolver(surveyStore)
	service := survey.NewService(surveyStore, provider, metrics)
	api := httpapi.New(cfg, service, sessions, runner, resolver, metrics)

	cleanup := func() error {
		var errs []string
		if err := surveyStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		Handler:  api.Router(),
		Sessions: sessions,
		Metrics:  metrics,
		Provider: provider,
		Cleanup:  cleanup,
	}, nil
}
