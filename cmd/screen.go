package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/ai"
	"github.com/spigell/driver-screener/internal/job"
	"github.com/spigell/driver-screener/internal/logger"
	"github.com/spigell/driver-screener/internal/metrics"
	"github.com/spigell/driver-screener/internal/parser"
	"github.com/spigell/driver-screener/internal/prompt"
	"github.com/spigell/driver-screener/internal/screening"
	"github.com/spigell/driver-screener/internal/store"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Interview a candidate in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		screen(cmd)
	},
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().String("job", "", "job definition file (required)")
	screenCmd.Flags().String("candidate", "", "candidate name")
	screenCmd.Flags().BoolP("auto-approve", "y", false, "do not ask to confirm the job before the interview")
	screenCmd.MarkFlagRequired("job")
}

// services holds what every engine-driving command shares.
type services struct {
	config   *Config
	logger   *zap.Logger
	store    *store.Store
	prompts  *prompt.Builder
	parser   *parser.Parser
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newServices(ctx context.Context, logger *zap.Logger) (*services, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}
	if config == nil || config.Store == nil || config.Screening == nil || config.AI == nil {
		return nil, errors.New("config is incomplete")
	}

	st, err := store.Open(ctx, config.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	prompts, err := prompt.New()
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		st.Close()
		return nil, err
	}

	opts := []parser.Option{parser.WithObserver(m)}
	if config.AI.Gemini != nil {
		opts = append(opts, parser.WithMaxLogLength(config.AI.Gemini.MaxLogLength))
	}

	return &services{
		config:   config,
		logger:   logger,
		store:    st,
		prompts:  prompts,
		parser:   parser.New(logger, opts...),
		metrics:  m,
		registry: registry,
	}, nil
}

func (r *services) screeningConfig() screening.Config {
	cfg := screening.Config{
		Window:       r.config.Screening.Window,
		NotMetPolicy: r.config.Screening.NotMetPolicy,
		MaxFollowUps: r.config.Screening.MaxFollowUps,
	}
	if r.config.AI.Gemini != nil {
		cfg.MaxLogLength = r.config.AI.Gemini.MaxLogLength
	}
	return cfg
}

// serveMetrics exposes /metrics in the background when an address is set.
func (r *services) serveMetrics(ctx context.Context) {
	if r.config.Metrics == nil || r.config.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, r.config.Metrics.Addr, r.registry, r.logger); err != nil {
			r.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func (r *services) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("closing the store", zap.Error(err))
	}
}

func screen(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The interview owns stdout.
	logger, err := logger.Build(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: "stderr",
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	logger.Info("starting the driver-screener", zap.String("version", version))

	jobFile, _ := cmd.Flags().GetString("job")
	def, err := job.FromFile(jobFile)
	if err != nil {
		logger.Fatal("loading the job", zap.String("file", jobFile), zap.Error(err))
	}
	jobModel, err := def.Job()
	if err != nil {
		logger.Fatal("loading the job", zap.String("file", jobFile), zap.Error(err))
	}

	if autoApprove, _ := cmd.Flags().GetBool("auto-approve"); !autoApprove {
		if !confirmJob(jobModel) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	rt, err := newServices(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the screening", zap.Error(err))
	}
	defer rt.Close()
	rt.serveMetrics(ctx)

	generator, err := newGenerator(ctx, rt.config.AI, logger)
	if err != nil {
		logger.Fatal("creating the generator", zap.Error(err))
	}

	engine, err := screening.NewEngine(rt.screeningConfig(), screening.Deps{
		Store:     rt.store,
		Generator: generator,
		Parser:    rt.parser,
		Prompts:   rt.prompts,
		Logger:    logger,
		Observer:  rt.metrics,
	})
	if err != nil {
		logger.Fatal("creating the engine", zap.Error(err))
	}

	created, err := rt.store.CreateJob(ctx, jobModel)
	if err != nil {
		logger.Fatal("saving the job", zap.Error(err))
	}
	candidate, _ := cmd.Flags().GetString("candidate")
	conv, err := rt.store.CreateConversation(ctx, created.ID, candidate)
	if err != nil {
		logger.Fatal("creating the conversation", zap.Error(err))
	}
	logger.Info("conversation created", zap.String("conversation_id", conv.ID), zap.String("job_id", created.ID))

	reply, err := interview(ctx, engine, conv.ID, candidate)
	if err != nil {
		logger.Fatal("interview failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	logger.Info("interview finished",
		zap.String("conversation_id", conv.ID),
		zap.String("decision", string(reply.Decision)),
	)
}

func confirmJob(j screening.Job) bool {
	fmt.Printf("%s", j.Title)
	if j.Company != "" {
		fmt.Printf(" at %s", j.Company)
	}
	fmt.Println()
	for _, r := range j.Requirements {
		fmt.Printf("  %d. %s\n", r.Priority, r.Type.Description())
	}

	confirm := promptui.Select{
		Label: "Start the interview?",
		Items: []string{PromptYes, PromptNo},
	}
	_, answer, err := confirm.Run()
	return err == nil && answer == PromptYes
}

// interview runs the conversation until it closes. An empty answer or an
// interrupt withdraws the candidate.
func interview(ctx context.Context, engine *screening.Engine, conversationID, candidate string) (screening.Reply, error) {
	handlers := &ai.StreamHandlers{
		OnChunk:    func(chunk string) { fmt.Print(chunk) },
		OnComplete: func(string) { fmt.Println() },
		OnError:    func(error) { fmt.Println() },
	}

	label := strings.TrimSpace(candidate)
	if label == "" {
		label = "You"
	}

	reply, err := engine.Start(ctx, conversationID, handlers)
	if err != nil {
		return reply, err
	}

	for reply.Active {
		input := promptui.Prompt{Label: label}
		answer, err := input.Run()
		answer = strings.TrimSpace(answer)

		if err != nil || answer == "" || ctx.Err() != nil {
			// ctx may already be cancelled by the interrupt.
			return engine.Withdraw(context.WithoutCancel(ctx), conversationID, handlers)
		}

		if reply, err = engine.Handle(ctx, conversationID, answer, handlers); err != nil {
			return reply, err
		}
	}
	return reply, nil
}
