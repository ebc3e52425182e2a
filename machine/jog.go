package machine

import (
	"strings"

	"github.com/mastercactapus/grblwheel/gcode"
)

// DefaultJogSteps is the distance moved per encoder tick for each jog mode.
var DefaultJogSteps = map[string]float64{
	"x": 0.1,
	"y": 0.1,
	"z": 0.01,
}

// JogLine returns a relative rapid move of delta ticks along the axis
// selected by mode. It returns false for modes that are not an axis
// (such as "feedrate"), or for a zero move.
func JogLine(mode string, delta int, steps map[string]float64) (string, bool) {
	mode = strings.ToLower(mode)
	if len(mode) != 1 {
		return "", false
	}
	step, ok := steps[mode]
	if !ok {
		step = DefaultJogSteps[mode]
	}
	move := gcode.Word{W: strings.ToUpper(mode)[0], Arg: step * float64(delta)}
	if !move.IsAxis() || move.Arg == 0 {
		return "", false
	}

	b := gcode.Block{
		{W: 'G', Arg: 91},
		{W: 'G', Arg: 0},
		move,
	}
	if b.Validate() != nil {
		return "", false
	}
	return b.String(), true
}
