// Command levial is a local voice assistant: it listens on the microphone,
// transcribes what was said, asks a language model for a reply and speaks it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	orchestration "github.com/levial/levial/core"
	"github.com/levial/levial/core/audio/miniaudio"
	"github.com/levial/levial/internal/config"
	"github.com/levial/levial/internal/tui"
)

var version = "dev"

const shutdownTimeout = 5 * time.Second

type options struct {
	baseDir        string
	profile        string
	listenMode     string
	capture        string
	device         int
	player         string
	systemPrompt   string
	plain          bool
	keepArtifacts  bool
	noControlTools bool
	dev            bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "levial",
		Short:        "Local voice assistant",
		Long:         "levial listens on the microphone, transcribes what was said, asks a language model for a reply and speaks it.",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssistant(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.baseDir, "base-dir", ".", "directory holding config/, models and .env")
	flags := cmd.Flags()
	flags.StringVar(&opts.profile, "profile", "", "configuration profile, overrides active_profile")
	flags.StringVar(&opts.listenMode, "listen", "", "listen mode: manual, wake-word or voice-activity")
	flags.StringVar(&opts.capture, "capture", captureMiniaudio, "capture backend: miniaudio or portaudio")
	flags.IntVar(&opts.device, "device", -1, "miniaudio capture device index as listed by the devices command, the default device when negative")
	flags.StringVar(&opts.player, "player", playerAuto, "playback: auto, process, miniaudio or none")
	flags.StringVar(&opts.systemPrompt, "system-prompt", defaultSystemPrompt, "system prompt sent with every turn")
	flags.BoolVar(&opts.plain, "plain", false, "line-based console instead of the full-screen UI")
	flags.BoolVar(&opts.keepArtifacts, "keep-artifacts", false, "keep recorded utterances after transcription")
	flags.BoolVar(&opts.noControlTools, "no-control-tools", false, "do not let the model mute or pause the assistant")
	flags.BoolVar(&opts.dev, "dev", false, "human readable debug logging")

	cmd.AddCommand(newDevicesCmd())
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List miniaudio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := miniaudio.NewClient()
			if err != nil {
				return err
			}
			defer client.Close()

			devices, err := client.Devices()
			if err != nil {
				return fmt.Errorf("failed to list capture devices: %w", err)
			}
			out := cmd.OutOrStdout()
			for i := range devices {
				marker := " "
				if devices[i].IsDefault != 0 {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %d: %s\n", marker, i, devices[i].Name())
			}
			return nil
		},
	}
}

func runAssistant(ctx context.Context, opts *options) error {
	if opts.profile != "" {
		os.Setenv("LVCA_PROFILE", opts.profile)
	}
	cfg, err := config.Load(opts.baseDir)
	if err != nil {
		return err
	}
	if opts.listenMode != "" {
		cfg.Detection.ListenMode = opts.listenMode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	// The full-screen UI owns the terminal, so logs go to a file.
	logPath := ""
	if !opts.plain {
		logPath = filepath.Join(cfg.ArtifactsPath(), "levial.log")
	}
	logger, err := newLogger(opts.dev, logPath)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	shutdownTracing, err := setupTracing(ctx, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	assembled, err := assemble(ctx, cfg, wiringOptions{
		capture:       opts.capture,
		device:        opts.device,
		player:        opts.player,
		systemPrompt:  opts.systemPrompt,
		keepArtifacts: opts.keepArtifacts,
		controlTools:  !opts.noControlTools,
	}, logger)
	if err != nil {
		return err
	}
	defer assembled.Close()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("listen_mode", cfg.Detection.ListenMode),
		zap.String("artifacts", cfg.ArtifactsPath()),
	)
	if opts.plain {
		err = runConsole(ctx, assembled, logger)
	} else {
		err = runTUI(ctx, assembled)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("stopped with error", zap.Error(err))
		return err
	}
	logger.Info("stopped")
	return nil
}

func newLogger(dev bool, path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	return cfg.Build()
}

func runConsole(ctx context.Context, assembled *assembly, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newConsole(logger, os.Stdout)
	orchestrator := orchestration.NewOrchestrator(append(assembled.options, orchestration.WithEventHandler(c.handleEvent))...)
	c.controller = orchestrator

	go func() {
		c.run(ctx, os.Stdin)
		cancel()
	}()
	return orchestrator.Run(ctx)
}

func runTUI(ctx context.Context, assembled *assembly) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adapter := &tui.EventAdapter{}
	orchestrator := orchestration.NewOrchestrator(append(assembled.options, orchestration.WithEventHandler(adapter.HandleEvent))...)
	program := tea.NewProgram(tui.NewModel(orchestrator), tea.WithAltScreen())
	adapter.Attach(program)

	runErr := make(chan error, 1)
	go func() {
		err := orchestrator.Run(ctx)
		program.Send(tui.DoneMsg{Err: err})
		runErr <- err
	}()

	_, uiErr := program.Run()
	cancel()
	err := <-runErr
	if uiErr != nil {
		return fmt.Errorf("terminal UI failed: %w", uiErr)
	}
	return err
}
