package system

import (
	xhotkey "golang.design/x/hotkey"

	"github.com/uttertype/uttertype/internal/hotkey"
)

// X11 maps alt to Mod1 and super to Mod4 on common keyboard layouts.
var modifiers = map[hotkey.Modifier]xhotkey.Modifier{
	hotkey.ModCtrl:  xhotkey.ModCtrl,
	hotkey.ModShift: xhotkey.ModShift,
	hotkey.ModAlt:   xhotkey.Mod1,
	hotkey.ModSuper: xhotkey.Mod4,
}
