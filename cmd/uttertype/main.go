package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"golang.design/x/hotkey/mainthread"

	"github.com/uttertype/uttertype/internal/bus"
	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/daemon"
	"github.com/uttertype/uttertype/internal/deps"
	"github.com/uttertype/uttertype/internal/hotkey/system"
	"github.com/uttertype/uttertype/internal/logging"
	"github.com/uttertype/uttertype/internal/models/mlx"
	"github.com/uttertype/uttertype/internal/pipeline"
	"github.com/uttertype/uttertype/internal/transcriber"
	"github.com/uttertype/uttertype/internal/tui"
)

// Global hotkeys on macOS must be serviced from the main thread, so the
// whole CLI runs inside mainthread.Init.
func main() {
	code := 0
	mainthread.Init(func() {
		if err := newRootCmd().Execute(); err != nil {
			code = 1
		}
	})
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "uttertype",
		Short:        "Hotkey dictation: speak, and the text appears at your cursor",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	root.AddCommand(
		serveCmd(),
		controlCmd("toggle", "Start or stop a recording", bus.CmdToggle),
		controlCmd("press", "Start recording (hold-to-talk key down)", bus.CmdPress),
		controlCmd("release", "Stop recording (hold-to-talk key up)", bus.CmdRelease),
		controlCmd("cancel", "Discard the current recording", bus.CmdCancel),
		controlCmd("status", "Get the current session state", bus.CmdStatus),
		controlCmd("version", "Get the control protocol version", bus.CmdVersion),
		controlCmd("stop", "Stop the daemon", bus.CmdQuit),
		configureCmd(),
		doctorCmd(),
		modelCmd(),
	)
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	logging.Init(logging.Config{})

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.ToLoggingConfig())
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := newDaemon(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.TranscriptHeader())
	d.Orchestrator().OnTranscript(func(t pipeline.Transcript) {
		fmt.Fprintln(out, tui.TranscriptRow(t))
	})
	return d.Run()
}

func newDaemon(cmd *cobra.Command, cfg *config.Config) (*daemon.Daemon, error) {
	pipelineDeps, err := daemon.BuildDeps(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	configPath, err := config.GetConfigPath()
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg, pipelineDeps, daemon.Options{
		ConfigPath:    configPath,
		Register:      system.Register,
		HandleSignals: true,
	})
}

func controlCmd(use, short string, c byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(c)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for uttertype.
This will guide you through setting up:
- The record and cancel hotkeys
- The transcription provider, model and API key
- The dictation language
- Text insertion and notification preferences`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd)
		},
	}
}

func runConfigure(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration cancelled.")
		return nil
	}

	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if err := config.Save(result.Config, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.StyleSuccess.Render("Configuration saved to "+path))
	fmt.Fprintln(out)
	showNextSteps(cmd, result.Config)
	return nil
}

func showNextSteps(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	serviceRunning := exec.Command("systemctl", "--user", "is-active", "--quiet", "uttertype.service").Run() == nil

	fmt.Fprintln(out, "Next Steps:")
	step := 1
	if !cfg.UseGlobalHotkeys() {
		fmt.Fprintf(out, "%d. Bind keys in your compositor to `uttertype press` and `uttertype release`\n", step)
		step++
	}
	if serviceRunning {
		fmt.Fprintf(out, "%d. Restart the service to apply changes: systemctl --user restart uttertype.service\n", step)
	} else {
		fmt.Fprintf(out, "%d. Start the daemon: uttertype serve\n", step)
	}
	step++
	fmt.Fprintf(out, "%d. Check your setup: uttertype doctor\n", step)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd)
		},
	}
}

func runDoctor(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	problems := 0

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path, _ := config.GetConfigPath()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, tui.Check(false, false, "config", err.Error()))
		problems++
	} else {
		fmt.Fprintln(out, tui.Check(true, false, "config", path))
	}

	for _, r := range deps.Doctor(cfg) {
		var detail string
		switch {
		case r.Installed && r.Version != "":
			detail = r.Version
		case r.Installed:
			detail = r.Path
		case r.Optional:
			detail = "not found, fallback for " + r.Purpose
		default:
			detail = "not found, needed for " + r.Purpose
		}
		fmt.Fprintln(out, tui.Check(r.Installed, r.Optional, r.Binary, detail))
		if !r.OK() {
			problems++
		}
	}

	if cfg.Transcription.Provider == transcriber.ProviderMLX {
		store, err := mlx.NewStore(cfg.MLX.ModelsDir, cfg.MLX.HFToken)
		if err != nil {
			return err
		}
		installed := store.IsInstalled(cfg.MLX.Model)
		detail := "installed"
		if !installed {
			detail = "will be downloaded on first use (uttertype model download " + cfg.MLX.Model + ")"
		}
		fmt.Fprintln(out, tui.Check(installed, true, "model "+cfg.MLX.Model, detail))
	}

	if resp, err := bus.SendCommand(bus.CmdStatus); err == nil {
		fmt.Fprintln(out, tui.Check(true, false, "daemon", resp))
	} else {
		fmt.Fprintln(out, tui.Check(false, true, "daemon", err.Error()))
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	return nil
}
