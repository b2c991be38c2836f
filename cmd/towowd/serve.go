package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/towow/negotiation/internal/adapter"
	"github.com/towow/negotiation/internal/config"
	"github.com/towow/negotiation/internal/encoder"
	"github.com/towow/negotiation/internal/field"
	"github.com/towow/negotiation/internal/negotiation"
	"github.com/towow/negotiation/internal/negotiationbuilder"
	"github.com/towow/negotiation/internal/observability"
	"github.com/towow/negotiation/internal/platformllm"
	"github.com/towow/negotiation/internal/retention"
	"github.com/towow/negotiation/internal/skills"
	"github.com/towow/negotiation/pkg/vector"
)

// demoAgent seeds the registry for the serve loop: a handful of agents with
// a short profile description each, so resonance matching has something to
// work against without a real agent directory.
type demoAgent struct {
	id      string
	name    string
	profile string
}

var demoAgents = []demoAgent{
	{"agent-cofounder", "Technical Co-founder Finder", "helps founders find a technical co-founder with startup and engineering experience"},
	{"agent-investor", "Angel Investor Network", "connects early-stage founders with angel investors and seed funding"},
	{"agent-apartment", "Apartment Finder", "finds apartments and roommates in major cities"},
	{"agent-rideshare", "Ride Coordinator", "arranges shared rides and carpools to the airport or across town"},
	{"agent-contractor", "Home Contractor Network", "matches homeowners with plumbers, electricians, and general contractors"},
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo negotiation loop over stdin",
		Long: `serve wires the engine builder against the configured providers and reads
one raw intent per line from stdin, running each through the full negotiation
lifecycle and printing the resulting plan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	enc, err := buildEncoder(cfg)
	if err != nil {
		return fmt.Errorf("build encoder: %w", err)
	}

	intentField := field.NewMemoryField(enc, vector.NewSimHashProjector(encoderDimension(enc), vector.DefaultProjectionBits, vector.DefaultProjectionSeed))

	registry := adapter.NewRegistry()
	agentAdapter, err := adapter.NewAnthropicAdapter(adapter.AnthropicAdapterConfig{
		APIKey:       cfg.Adapter.APIKey,
		BaseURL:      cfg.Adapter.BaseURL,
		Source:       cfg.Adapter.Source,
		MaxRetries:   cfg.Adapter.MaxRetries,
		RetryDelay:   cfg.Adapter.RetryDelay(),
		DefaultModel: cfg.Adapter.DefaultModel,
	})
	if err != nil {
		return fmt.Errorf("build adapter: %w", err)
	}
	if err := seedDemoAgents(ctx, registry, agentAdapter, enc); err != nil {
		return fmt.Errorf("seed demo agents: %w", err)
	}

	llmClient, err := platformllm.New(platformllm.Config{
		APIKey:    cfg.PlatformLLM.APIKey,
		BaseURL:   cfg.PlatformLLM.BaseURL,
		Model:     cfg.PlatformLLM.Model,
		MaxTokens: cfg.PlatformLLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("build platform LLM client: %w", err)
	}

	store := retention.NewMemoryStore()
	sweeper := retention.NewSweeper(store, cfg.Retention.Window, logger.Slog())
	if cfg.Retention.Enabled {
		if err := sweeper.Start(cfg.Retention.Cron); err != nil {
			return fmt.Errorf("start retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	engineCfg := negotiation.Config{
		MaxCenterRounds:     cfg.Engine.MaxCenterRounds,
		OfferTimeout:        cfg.Engine.OfferTimeout(),
		FormulationTimeout:  cfg.Engine.FormulationTimeout(),
		ConfirmationTimeout: cfg.Engine.ConfirmationTimeout(),
		DefaultKStar:        cfg.Engine.DefaultKStar,
		MaxRecursionDepth:   cfg.Engine.MaxRecursionDepth,
		ToolTimeout:         cfg.Engine.ToolTimeout(),
		BarrierWorkerLimit:  cfg.Engine.BarrierWorkerLimit,
	}

	engine, defaults, err := negotiationbuilder.New().
		WithConfig(engineCfg).
		WithEncoder(enc).
		WithLogger(logger.Slog()).
		WithRegistry(registry).
		WithAdapter(agentAdapter).
		WithLLMClient(llmClient).
		WithCenterSkill(skills.NewLLMCenterSkill(llmClient)).
		WithFormulationSkill(skills.NewLLMFormulationSkill(llmClient)).
		WithOfferSkill(skills.NewLLMOfferSkill()).
		WithSubNegotiationSkill(skills.NewLLMSubNegotiationSkill(llmClient)).
		WithGapRecursionSkill(skills.NewLLMGapRecursionSkill(llmClient)).
		WithMetrics(metrics).
		WithToolHandler(field.NewDepositHandler(intentField)).
		WithToolHandler(field.NewMatchHandler(intentField)).
		WithRegisterSession(func(s *negotiation.Session) {
			logger.Info(ctx, "negotiation registered", "negotiation_id", s.NegotiationID)
		}).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "towowd serve ready, reading raw intents from stdin (one per line, Ctrl-D to exit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		runOneNegotiation(sigCtx, engine, defaults, store, line)
	}
	return scanner.Err()
}

func runOneNegotiation(ctx context.Context, engine *negotiation.Engine, defaults negotiation.RunDefaults, store *retention.MemoryStore, rawIntent string) {
	negotiationID := negotiationbuilder.NewNegotiationID()
	session := negotiation.NewSession(negotiationID, rawIntent, "cli-user", "cli", engine.Config.MaxCenterRounds)

	done := make(chan *negotiation.Session, 1)
	go func() {
		final, err := engine.StartNegotiation(ctx, session, defaults)
		if err != nil {
			fmt.Fprintf(os.Stderr, "negotiation %s failed: %v\n", negotiationID, err)
			done <- nil
			return
		}
		done <- final
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !engine.IsAwaitingConfirmation(negotiationID) {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = engine.ConfirmFormulation(negotiationID, nil)

	final := <-done
	if final == nil {
		return
	}
	store.MarkTerminal(negotiationID, time.Now())

	if final.PlanOutput != nil {
		fmt.Printf("[%s] plan: %s\n", negotiationID, *final.PlanOutput)
	} else {
		fmt.Printf("[%s] state: %s (no plan produced)\n", negotiationID, final.State)
	}
}

func buildEncoder(cfg *config.Config) (negotiation.Encoder, error) {
	switch strings.ToLower(cfg.Encoder.Mode) {
	case "remote":
		return encoder.NewRemoteEncoder(encoder.RemoteEncoderConfig{
			URL:      cfg.Encoder.Remote.URL,
			APIKey:   cfg.Encoder.Remote.APIKey,
			Dim:      cfg.Encoder.Remote.Dim,
			CacheDir: cfg.Encoder.Remote.CacheDir,
			Timeout:  time.Duration(cfg.Encoder.Remote.TimeoutSecs) * time.Second,
		})
	default:
		return encoder.NewLocalEncoder(128), nil
	}
}

// dimensioned is implemented by both encoder.LocalEncoder and
// encoder.RemoteEncoder; the intent field's projector needs the encoder's
// output width up front to size its hyperplane matrix.
type dimensioned interface {
	Dimension() int
}

func encoderDimension(enc negotiation.Encoder) int {
	if d, ok := enc.(dimensioned); ok {
		return d.Dimension()
	}
	return 128
}

func seedDemoAgents(ctx context.Context, registry *adapter.Registry, agentAdapter *adapter.AnthropicAdapter, enc negotiation.Encoder) error {
	for _, a := range demoAgents {
		vec, err := enc.Encode(ctx, a.profile)
		if err != nil {
			return fmt.Errorf("encode profile for %s: %w", a.id, err)
		}
		registry.RegisterSource(negotiation.AgentRegistryEntry{
			Identity: negotiation.AgentIdentity{
				AgentID:     a.id,
				DisplayName: a.name,
				Source:      "anthropic",
			},
			ProfileVector:  vec,
			ProfilePayload: map[string]interface{}{"description": a.profile},
		}, agentAdapter)
	}
	return nil
}
