package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/logger"
	"github.com/spigell/driver-screener/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay TRANSCRIPTS",
	Short: "Replay scripted conversations through the engine",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runReplay(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().IntP("parallel", "p", 4, "conversations replayed at the same time")
}

func runReplay(cmd *cobra.Command, path string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.Build(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: "stderr",
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	transcripts, err := replay.Load(path)
	if err != nil {
		logger.Fatal("loading transcripts", zap.String("file", path), zap.Error(err))
	}

	rt, err := newServices(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the replay", zap.Error(err))
	}
	defer rt.Close()
	rt.serveMetrics(ctx)

	parallel, _ := cmd.Flags().GetInt("parallel")
	runner := &replay.Runner{
		Store:    rt.store,
		Prompts:  rt.prompts,
		Parser:   rt.parser,
		Config:   rt.screeningConfig(),
		Logger:   logger,
		Observer: rt.metrics,
		Parallel: parallel,
	}

	results, err := runner.Run(ctx, transcripts.Conversations)
	if err != nil {
		logger.Error("replay interrupted", zap.Error(err))
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Script", "Conversation", "State", "Decision", "Turns", "Result"})

	failed := 0
	for _, res := range results {
		status := "ok"
		switch {
		case res.Err != nil:
			status = "error: " + res.Err.Error()
		case res.Mismatch != "":
			status = "mismatch: " + res.Mismatch
		}
		if !res.OK() {
			failed++
		}
		tw.AppendRow(table.Row{res.Name, res.ConversationID, res.State, res.Decision, res.Turns, status})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "failed", fmt.Sprintf("%d of %d", failed, len(results))})
	tw.Render()

	if failed > 0 || err != nil {
		logger.Error("replay finished with failures", zap.Int("failed", failed), zap.Int("total", len(results)))
		rt.Close()
		os.Exit(1)
	}
	logger.Info("replay finished", zap.Int("total", len(results)))
}
