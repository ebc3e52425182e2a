package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminal(t *testing.T) {
	for line, want := range map[string]bool{
		"ok":                       true,
		"OK":                       true,
		"Ok ":                      true,
		"error:15":                 true,
		"ALARM:1 error":            true,
		"<Idle|MPos:0,0,0>":        false,
		"[MSG:Caution]":            false,
		"Grbl 1.1h ['$' for help]": false,
		"o":                        false,
	} {
		assert.Equal(t, want, Terminal(line), line)
	}
}

func TestConn_Exchange(t *testing.T) {
	port := newFakePort(func(line string) []string {
		return []string{"[echo:" + line + "]", "ok"}
	})
	c := NewConn(port)

	var info []string
	c.OnInfo = func(line string) { info = append(info, line) }

	reply, err := c.Exchange("$H", 0, nil)
	assert.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, []string{"[echo:$H]"}, info)
	assert.Equal(t, []string{"$H\r"}, port.Raw())
}

func TestConn_ExchangeReset(t *testing.T) {
	port := newFakePort(func(line string) []string {
		return []string{"[MSG:Reset to continue]", "Grbl 1.1h ['$' for help]"}
	})
	c := NewConn(port)

	var info []string
	c.OnInfo = func(line string) { info = append(info, line) }

	reply, err := c.Exchange("G0 X1", 0, nil)
	assert.ErrorIs(t, err, ErrGrblReset)
	assert.Equal(t, "Grbl 1.1h ['$' for help]", reply)
	assert.Equal(t, []string{"[MSG:Reset to continue]", "Grbl 1.1h ['$' for help]"}, info)
}

func TestIsBanner(t *testing.T) {
	assert.True(t, IsBanner("Grbl 1.1h ['$' for help]"))
	assert.True(t, IsBanner("Grbl 0.9j ['$' for help]"))
	assert.False(t, IsBanner("[MSG:Grbl]"))
	assert.False(t, IsBanner("Grbl"))
	assert.False(t, IsBanner("ok"))
}

func TestParseStatus(t *testing.T) {
	prev := Status{WCO: Position{X: 5}}
	stat, err := parseStatus(prev, "<Jog|MPos:10.000,-2.500,0.000|Bf:15,128|FS:0,0>")
	assert.NoError(t, err)
	assert.Equal(t, "Jog", stat.State)
	assert.Equal(t, Position{X: 10, Y: -2.5}, stat.MPos)
	assert.Equal(t, Position{X: 5}, stat.WCO)

	_, err = parseStatus(prev, "<Idle|MPos:1,2>")
	assert.Error(t, err)
}

func TestParseStatus_WPos(t *testing.T) {
	prev := Status{MPos: Position{X: 99}, WCO: Position{X: 5, Y: 1}}
	stat, err := parseStatus(prev, "<Idle|WPos:1.000,2.000,-3.000|FS:0,0>")
	require.NoError(t, err)
	assert.Equal(t, Position{X: 6, Y: 3, Z: -3}, stat.MPos)
	assert.Equal(t, Position{X: 1, Y: 2, Z: -3}, stat.WPos())

	// a WCO later in the same report applies
	stat, err = parseStatus(prev, "<Run|WPos:1.000,2.000,-3.000|FS:0,0|WCO:0.000,0.000,10.000>")
	require.NoError(t, err)
	assert.Equal(t, Position{X: 1, Y: 2, Z: 7}, stat.MPos)
	assert.Equal(t, Position{X: 1, Y: 2, Z: -3}, stat.WPos())

	_, err = parseStatus(prev, "<Idle|WPos:1,x,3>")
	assert.Error(t, err)
}
