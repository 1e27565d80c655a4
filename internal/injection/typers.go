package injection

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// typer is a registered typing backend and the operating systems it runs on.
type typer struct {
	new func() Backend
	os  []string
}

var typers = map[string]typer{
	"wtype":     {NewWtypeBackend, []string{"linux", "freebsd", "openbsd"}},
	"ydotool":   {NewYdotoolBackend, []string{"linux"}},
	"xdotool":   {NewXdotoolBackend, []string{"linux", "freebsd", "openbsd"}},
	"osascript": {NewOsascriptBackend, []string{"darwin"}},
	"sendkeys":  {NewSendKeysBackend, []string{"windows"}},
}

// defaultBackends lists the typers tried on each OS, in order.
var defaultBackends = map[string][]string{
	"linux":   {"wtype", "ydotool", "xdotool"},
	"freebsd": {"wtype", "xdotool"},
	"openbsd": {"wtype", "xdotool"},
	"darwin":  {"osascript"},
	"windows": {"sendkeys"},
}

// DefaultBackends returns the typing backends for goos, or nil when the
// platform has none.
func DefaultBackends(goos string) []string {
	return append([]string(nil), defaultBackends[goos]...)
}

// BackendNames lists every known typing backend.
func BackendNames() []string {
	names := make([]string, 0, len(typers))
	for name := range typers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportsOS reports whether the named backend runs on goos.
func SupportsOS(name, goos string) bool {
	return slices.Contains(typers[name].os, goos)
}

// TyperBinary is the program the named backend runs.
func TyperBinary(name string) string {
	if t, ok := typers[name]; ok {
		return t.new().(*commandTyper).binary
	}
	return name
}

// commandTyper types text by running an external program once per
// injection. helper, when set, checks a daemon the program depends on.
type commandTyper struct {
	name   string
	binary string
	args   func(text string) []string
	// env, when set, passes the text in the environment instead.
	env    func(text string) []string
	helper func() error
}

func NewWtypeBackend() Backend {
	return &commandTyper{
		name:   "wtype",
		binary: "wtype",
		// "--" keeps text starting with a dash from being parsed as a flag
		args: func(text string) []string { return []string{"--", text} },
	}
}

func NewYdotoolBackend() Backend {
	return &commandTyper{
		name:   "ydotool",
		binary: "ydotool",
		args:   func(text string) []string { return []string{"type", "--", text} },
		helper: checkYdotoold,
	}
}

// NewXdotoolBackend types on X11 sessions.
func NewXdotoolBackend() Backend {
	return &commandTyper{
		name:   "xdotool",
		binary: "xdotool",
		args:   func(text string) []string { return []string{"type", "--clearmodifiers", "--", text} },
	}
}

// NewOsascriptBackend types through System Events. The terminal running
// the daemon needs the Accessibility permission.
func NewOsascriptBackend() Backend {
	return &commandTyper{
		name:   "osascript",
		binary: "osascript",
		args: func(text string) []string {
			return []string{
				"-e", "on run argv",
				"-e", `tell application "System Events" to keystroke (item 1 of argv)`,
				"-e", "end run",
				"--", text,
			}
		},
	}
}

const sendKeysScript = "Add-Type -AssemblyName System.Windows.Forms; " +
	"[System.Windows.Forms.SendKeys]::SendWait($env:UTTERTYPE_TEXT)"

// NewSendKeysBackend types with the Windows Forms SendKeys API.
func NewSendKeysBackend() Backend {
	return &commandTyper{
		name:   "sendkeys",
		binary: "powershell",
		args: func(string) []string {
			return []string{"-NoProfile", "-NonInteractive", "-Command", sendKeysScript}
		},
		env: func(text string) []string { return []string{"UTTERTYPE_TEXT=" + escapeSendKeys(text)} },
	}
}

// escapeSendKeys quotes the characters SendKeys treats as commands.
func escapeSendKeys(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '[', ']', '{', '}':
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
		case '\n':
			b.WriteString("{ENTER}")
		case '\t':
			b.WriteString("{TAB}")
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *commandTyper) Name() string { return c.name }

func (c *commandTyper) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("%s not found: %w", c.binary, err)
	}
	if c.helper != nil {
		return c.helper()
	}
	return nil
}

func (c *commandTyper) Inject(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, c.args(text)...)
	if c.env != nil {
		cmd.Env = append(os.Environ(), c.env(text)...)
	}
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", c.name, err, msg)
		}
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

// checkYdotoold checks that the ydotoold daemon answers on its socket.
// Installs without ydotoold (older ydotool) are assumed to work.
func checkYdotoold() error {
	if _, err := exec.LookPath("ydotoold"); err != nil {
		return nil
	}
	sock := ydotoolSocket()
	if sock == "" {
		return fmt.Errorf("ydotoold socket not found, is ydotoold running?")
	}

	// ydotoold 1.0.4 and later listen on a datagram socket.
	conn, err := net.Dial("unixgram", sock)
	if err != nil {
		conn, err = net.DialTimeout("unix", sock, 500*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ydotoold not responding at %s: %w", sock, err)
	}
	return conn.Close()
}

func ydotoolSocket() string {
	var candidates []string
	if sock := os.Getenv("YDOTOOL_SOCKET"); sock != "" {
		candidates = append(candidates, sock)
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".ydotool_socket"))
	}
	candidates = append(candidates,
		filepath.Join("/run/user", strconv.Itoa(os.Getuid()), ".ydotool_socket"),
		"/tmp/.ydotool_socket",
	)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
