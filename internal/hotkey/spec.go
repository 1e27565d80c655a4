// Package hotkey parses hotkey descriptions and turns raw key edges into
// recording start, stop and cancel signals.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModAlt   Modifier = "alt"
	ModShift Modifier = "shift"
	ModSuper Modifier = "super"
)

var modifierAliases = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"win":     ModSuper,
	"meta":    ModSuper,
}

var keyAliases = map[string]string{
	"return": "enter",
	"escape": "esc",
	"del":    "delete",
}

var namedKeys = map[string]bool{
	"space": true, "enter": true, "esc": true, "tab": true, "delete": true,
	"up": true, "down": true, "left": true, "right": true,
}

// ErrGlobeUnsupported is returned for the macOS globe/fn key, which cannot
// be registered as a global hotkey.
var ErrGlobeUnsupported = errors.New("the globe (fn) key cannot be bound; use a modifier combination such as <ctrl>+<alt>+v")

const DefaultRecord = "<ctrl>+<alt>+v"

// Spec is a parsed key combination.
type Spec struct {
	Modifiers []Modifier
	Key       string
}

// Parse accepts "<ctrl>+<alt>+v" as well as "ctrl+alt+v". Modifier order
// is normalised to ctrl, alt, shift, super.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Spec{}, fmt.Errorf("empty hotkey")
	}

	var spec Spec
	seen := map[Modifier]bool{}
	for _, raw := range strings.Split(s, "+") {
		tok := strings.ToLower(strings.TrimSpace(raw))
		tok = strings.TrimSuffix(strings.TrimPrefix(tok, "<"), ">")
		if tok == "" {
			return Spec{}, fmt.Errorf("invalid hotkey %q: empty key name", s)
		}
		if tok == "globe" || tok == "fn" {
			return Spec{}, ErrGlobeUnsupported
		}
		if mod, ok := modifierAliases[tok]; ok {
			if seen[mod] {
				return Spec{}, fmt.Errorf("invalid hotkey %q: %s repeated", s, mod)
			}
			seen[mod] = true
			continue
		}
		if spec.Key != "" {
			return Spec{}, fmt.Errorf("invalid hotkey %q: more than one non-modifier key", s)
		}
		key, err := normalizeKey(tok)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid hotkey %q: %w", s, err)
		}
		spec.Key = key
	}

	if spec.Key == "" {
		return Spec{}, fmt.Errorf("invalid hotkey %q: no key besides modifiers", s)
	}
	for _, m := range []Modifier{ModCtrl, ModAlt, ModShift, ModSuper} {
		if seen[m] {
			spec.Modifiers = append(spec.Modifiers, m)
		}
	}
	if len(spec.Modifiers) == 0 && !IsFunctionKey(spec.Key) {
		return Spec{}, fmt.Errorf("invalid hotkey %q: plain keys need at least one modifier", s)
	}
	return spec, nil
}

func normalizeKey(tok string) (string, error) {
	if alias, ok := keyAliases[tok]; ok {
		tok = alias
	}
	if len(tok) == 1 && ((tok[0] >= 'a' && tok[0] <= 'z') || (tok[0] >= '0' && tok[0] <= '9')) {
		return tok, nil
	}
	if namedKeys[tok] || IsFunctionKey(tok) {
		return tok, nil
	}
	return "", fmt.Errorf("unsupported key %q", tok)
}

// IsFunctionKey reports whether key is f1 through f12.
func IsFunctionKey(key string) bool {
	if len(key) < 2 || key[0] != 'f' {
		return false
	}
	var n int
	if _, err := fmt.Sscanf(key[1:], "%d", &n); err != nil {
		return false
	}
	return fmt.Sprintf("f%d", n) == key && n >= 1 && n <= 12
}

func (s Spec) String() string {
	parts := make([]string, 0, len(s.Modifiers)+1)
	for _, m := range s.Modifiers {
		parts = append(parts, "<"+string(m)+">")
	}
	return strings.Join(append(parts, s.Key), "+")
}
