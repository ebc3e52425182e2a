package grbl

import (
	"errors"
	"strconv"
	"strings"
)

// Position is a machine coordinate triple.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Status is the last `<...>` report received from the controller.
type Status struct {
	State string   `json:"state"`
	MPos  Position `json:"mpos"`
	WCO   Position `json:"wco"`
}

// WPos returns the work position derived from MPos and WCO.
func (s Status) WPos() Position {
	return Position{
		X: s.MPos.X - s.WCO.X,
		Y: s.MPos.Y - s.WCO.Y,
		Z: s.MPos.Z - s.WCO.Z,
	}
}

// IsStatusReport reports whether line looks like a `<...>` status report.
func IsStatusReport(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">")
}

func parseCoords(data string) (p Position, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

// parseStatus applies a status report on top of the previous status.
// Fields missing from the report (Grbl only sends WCO periodically)
// keep their previous values. With `$10=0` Grbl reports WPos instead of
// MPos; MPos is then derived from the work offset.
func parseStatus(stat Status, data string) (*Status, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.State = parts[0]
	var err error
	var wpos *Position
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WPos":
			var p Position
			p, err = parseCoords(sParts[1])
			wpos = &p
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		}
		if err != nil {
			return nil, err
		}
	}
	if wpos != nil {
		stat.MPos = Position{
			X: wpos.X + stat.WCO.X,
			Y: wpos.Y + stat.WCO.Y,
			Z: wpos.Z + stat.WCO.Z,
		}
	}
	return &stat, nil
}
