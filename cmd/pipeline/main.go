// Command pipeline is the agent trajectory dataset pipeline's process
// entry point: it wires the Trajectory Store, Artifact Store, Container
// Manager, Task Runner, and Orchestrator together and serves the admin
// HTTP surface until signaled to stop.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/agent-trajectory-pipeline/internal/config"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/adminapi"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/artifact"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/container"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/llm"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/orchestrator"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/quality"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/runner"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/scaffold"
	"github.com/codeready-toolchain/agent-trajectory-pipeline/pkg/store"
)

const shutdownGrace = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("pipeline exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	st, err := store.NewStore(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	artifacts, err := artifact.NewStore(st.Pool(), cfg.ArtifactPath)
	if err != nil {
		return err
	}

	containerMgr, err := container.NewManager()
	if err != nil {
		return err
	}

	costTracker := llm.NewCostTracker(
		st,
		nil,
		int64(cfg.DailyBudget*100),
		int64(cfg.MonthlyBudget*100),
	)
	if err := costTracker.RefreshFromStore(ctx, time.Now()); err != nil {
		slog.Warn("failed to refresh cost tracker from store", "error", err)
	}

	r := runner.New(containerMgr, cfg.DockerImage, scaffoldTypeName(), makeScaffoldFactory(cfg))
	orch := orchestrator.New(r, costTracker, qualityWeightsFromConfig(cfg), st, artifacts, cfg.TrajectoryPath, cfg.DefaultModel, cfg.MaxConcurrentTasks)

	router := adminapi.NewRouter(orch)
	srv := &http.Server{Addr: ":8080", Handler: router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// scaffoldTypeName labels every trajectory produced by this process; it
// mirrors the one ScaffoldFactory actually configured below.
func scaffoldTypeName() string { return "external-process" }

// makeScaffoldFactory builds an ExternalProcess scaffold per task, spawning
// PIPELINE_AGENT_COMMAND (space-separated). The LLM Router boundary
// (InProcessToolUsing) is deliberately left unwired here since this spec
// treats the model as an external collaborator with no bundled provider
// implementation — a caller that has one can swap in
// scaffold.NewInProcessToolUsing against an llm.Router of their choosing.
func makeScaffoldFactory(cfg *config.Config) runner.ScaffoldFactory {
	command := strings.Fields(os.Getenv("PIPELINE_AGENT_COMMAND"))
	if len(command) == 0 {
		command = []string{"python3", "-m", "agent_runner"}
	}
	return func(task runner.Task) (scaffold.Scaffold, error) {
		return scaffold.NewExternalProcess(command, cfg.TaskTimeout, cfg.MaxStepsPerTask), nil
	}
}

// qualityWeightsFromConfig takes the Quality Filter's default check
// weights and substitutes the pass/fail bar with the operator-configured
// PIPELINE_MIN_QUALITY_SCORE.
func qualityWeightsFromConfig(cfg *config.Config) quality.Weights {
	w := quality.DefaultWeights()
	w.MinOverallScore = cfg.MinQualityScore
	return w
}
