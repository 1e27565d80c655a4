// Package deps checks the external programs uttertype shells out to.
package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/uttertype/uttertype/internal/config"
	"github.com/uttertype/uttertype/internal/injection"
	"github.com/uttertype/uttertype/internal/recording"
	"github.com/uttertype/uttertype/internal/transcriber"
)

// Status represents the installation status of a dependency
type Status struct {
	Installed bool
	Path      string
	Version   string
}

// Tool is an external program needed by some configuration.
type Tool struct {
	Binary      string
	VersionArgs []string
	Purpose     string
	// Optional tools only matter as a fallback.
	Optional bool
}

// Report pairs a tool with what was found on this machine.
type Report struct {
	Tool
	Status
}

// OK is false for a missing tool that is not optional.
func (r Report) OK() bool { return r.Installed || r.Optional }

const versionTimeout = 2 * time.Second

// Check looks binary up in PATH and runs it with versionArgs to read the
// first line of its version output.
func Check(binary string, versionArgs ...string) Status {
	path, err := exec.LookPath(binary)
	if err != nil {
		return Status{Installed: false}
	}

	status := Status{
		Installed: true,
		Path:      path,
	}
	if len(versionArgs) == 0 {
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, versionArgs...).CombinedOutput()
	if err == nil {
		line, _, _ := strings.Cut(string(output), "\n")
		status.Version = strings.TrimSpace(line)
	}
	return status
}

// mlxVersionScript fails when mlx-whisper is not importable.
const mlxVersionScript = "import importlib.metadata as m; print('mlx-whisper', m.version('mlx-whisper'))"

// Tools lists the programs cfg relies on.
func Tools(cfg *config.Config) []Tool {
	var tools []Tool

	if cfg.Recording.Backend == recording.BackendPipeWire {
		tools = append(tools, Tool{Binary: "pw-record", VersionArgs: []string{"--version"}, Purpose: "microphone capture"})
	}

	if cfg.Injection.Mode == injection.ModeType {
		for i, b := range cfg.Injection.Backends {
			tools = append(tools, Tool{
				Binary:   injection.TyperBinary(b),
				Purpose:  "typing text",
				Optional: i > 0,
			})
		}
	}
	if cfg.Injection.Clipboard == injection.ClipboardWayland && cfg.Injection.Mode != injection.ModeType {
		tools = append(tools,
			Tool{Binary: "wl-copy", VersionArgs: []string{"--version"}, Purpose: "clipboard write"},
			Tool{Binary: "wl-paste", VersionArgs: []string{"--version"}, Purpose: "clipboard restore", Optional: !cfg.Injection.RestoreClipboard},
		)
	}

	if cfg.Transcription.Provider == transcriber.ProviderMLX {
		python := cfg.MLX.Python
		if python == "" {
			python = transcriber.DefaultMLXPython
		}
		tools = append(tools,
			Tool{Binary: python, VersionArgs: []string{"-c", mlxVersionScript}, Purpose: "local transcription (mlx-whisper)"},
			Tool{Binary: "ffmpeg", VersionArgs: []string{"-version"}, Purpose: "audio decoding for mlx-whisper"},
		)
	}
	return tools
}

// Doctor checks every tool cfg relies on.
func Doctor(cfg *config.Config) []Report {
	tools := Tools(cfg)
	reports := make([]Report, 0, len(tools))
	for _, t := range tools {
		reports = append(reports, Report{Tool: t, Status: Check(t.Binary, t.VersionArgs...)})
	}
	return reports
}
