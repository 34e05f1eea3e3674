package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mgriva/voxbridge/internal/capture"
	"github.com/mgriva/voxbridge/internal/config"
	"github.com/mgriva/voxbridge/internal/httpapi"
	"github.com/mgriva/voxbridge/internal/llm"
	"github.com/mgriva/voxbridge/internal/observability"
	"github.com/mgriva/voxbridge/internal/session"
	"github.com/mgriva/voxbridge/internal/tools"
	"github.com/mgriva/voxbridge/internal/transcript"
	"github.com/mgriva/voxbridge/internal/vad"
)

const assistantInstructions = "You are a voice-driven coding assistant. Answer briefly. " +
	"When an editor action is needed, emit a tool call; otherwise use the speak tool."

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(256)
	sink := observability.NewSink(metrics, window)

	ctx := context.Background()
	store, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer store.Close()

	fallback, err := llm.NewClient(llm.Config{
		Mode:    cfg.LLMAdapterMode,
		HTTPURL: cfg.LLMHTTPURL,
		CLIPath: cfg.LLMCLIPath,
	})
	if err != nil {
		log.Fatalf("llm client init failed: %v", err)
	}

	registry := tools.NewRegistry()
	registerEditorTools(registry)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := capture.NewOrchestrator(
		sessions,
		registry,
		fallback,
		store,
		metrics,
		sink,
		nil, // production websocket dialer
		capture.Config{
			RealtimeURL:       cfg.RealtimeURL,
			RealtimeAPIKey:    cfg.RealtimeAPIKey,
			Model:             cfg.RealtimeModel,
			Voice:             cfg.RealtimeVoice,
			Instructions:      assistantInstructions,
			ConnectAttempts:   cfg.ConnectAttempts,
			ConnectTimeout:    cfg.ConnectTimeout,
			ReconcileInterval: cfg.ReconcileInterval,
			InputUSDPerMTok:   cfg.InputUSDPerMTok,
			OutputUSDPerMTok:  cfg.OutputUSDPerMTok,
			VAD: vad.Config{
				SustainedDuration:      cfg.VADSustainedDuration,
				AmnestyPeriod:          cfg.VADAmnestyPeriod,
				VoiceSilenceThreshold:  cfg.VADVoiceSilenceThreshold,
				SpeechSilenceThreshold: cfg.VADSpeechSilenceThreshold,
			},
		},
		log.Default(),
	)

	api := httpapi.New(cfg, sessions, orchestrator, metrics, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// registerEditorTools declares the editor actions the assistant may call.
// The reconciler picks changes up on its next cycle, so registration order
// does not matter.
func registerEditorTools(r *tools.Registry) {
	schemas := []tools.Schema{
		{
			Name:        "open_file",
			Description: "Open a file in the editor.",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		{
			Name:        "write_file",
			Description: "Create or overwrite a file with the given content.",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
		},
		{
			Name:        "run_command",
			Description: "Run a shell command in the workspace.",
			Parameters:  []byte(`{"type":"object","properties":{"cmd":{"type":"string"}},"required":["cmd"]}`),
		},
		{
			Name:        "run_tests",
			Description: "Run the project test suite.",
			Parameters:  []byte(`{"type":"object","properties":{"pattern":{"type":"string"}}}`),
		},
	}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			log.Fatalf("register tool %s: %v", s.Name, err)
		}
	}
}
