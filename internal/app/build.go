// Package app wires the service graph from configuration: stores, the
// completion client, the inbound pipeline, and the HTTP API.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aruizmd/medassist/internal/chatauth"
	"github.com/aruizmd/medassist/internal/chunker"
	"github.com/aruizmd/medassist/internal/clinical"
	"github.com/aruizmd/medassist/internal/config"
	"github.com/aruizmd/medassist/internal/conversation"
	"github.com/aruizmd/medassist/internal/delivery"
	"github.com/aruizmd/medassist/internal/directory"
	"github.com/aruizmd/medassist/internal/dispatch"
	"github.com/aruizmd/medassist/internal/gateway"
	"github.com/aruizmd/medassist/internal/httpapi"
	"github.com/aruizmd/medassist/internal/llm"
	"github.com/aruizmd/medassist/internal/observability"
	"github.com/aruizmd/medassist/internal/orchestrator"
	"github.com/aruizmd/medassist/internal/tools"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *orchestrator.Orchestrator
	Issuer       *chatauth.Issuer
	AuthStore    chatauth.Store
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}

	convStore, err := conversation.NewStore(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}

	authStore, err := chatauth.NewStore(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("chat session store init failed: %w", err)
	}

	deliveryStore, err := delivery.NewStore(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("delivery store init failed: %w", err)
	}

	var dirStore directory.Store
	if pool != nil {
		dirStore, err = directory.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("directory store init failed: %w", err)
		}
	} else {
		dirStore = directory.NewInMemoryStore()
	}

	var clinicalSvc clinical.Service
	if pool != nil {
		clinicalSvc, err = clinical.NewService(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("clinical service init failed: %w", err)
		}
	} else {
		clinicalSvc = clinical.NewInMemoryService()
	}

	client := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAISummaryModel)
	registry := tools.NewClinicalRegistry(clinicalSvc)

	issuer := chatauth.NewIssuer(authStore, cfg.TokenTTL)
	manager := conversation.NewManager(convStore, cfg.SessionTimeout, cfg.OpenAIChatModel, cfg.ContextLimit)
	compactor := conversation.NewCompactor(convStore, client, cfg.SummaryThresh, cfg.SummarizeBatch)
	loop := dispatch.NewLoop(client, registry)

	sender := gateway.NewClient(gateway.ClientConfig{
		APIURL:     cfg.GatewayAPIURL,
		AccountSID: cfg.GatewayAccountSID,
		AuthToken:  cfg.GatewayAuthToken,
		From:       cfg.GatewayFrom,
		PartDelay:  cfg.ChunkDelay,
	})

	chunkLimit := cfg.ChunkLimit
	if chunkLimit <= 0 {
		chunkLimit = chunker.DefaultLimit
	}

	orch := orchestrator.New(
		delivery.NewGuard(deliveryStore),
		directory.NewResolver(dirStore),
		issuer,
		manager,
		convStore,
		compactor,
		loop,
		sender,
		metrics,
		orchestrator.NewHub(),
		orchestrator.Config{
			SystemPrompt: cfg.SystemPrompt,
			ChunkLimit:   chunkLimit,
		},
	)

	api := httpapi.New(cfg, orch, issuer, metrics)

	cleanup := func() error {
		var errs []string
		for _, c := range []interface{ Close() error }{convStore, authStore, deliveryStore, dirStore, clinicalSvc} {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if pool != nil {
			pool.Close()
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orch,
		Issuer:       issuer,
		AuthStore:    authStore,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}
