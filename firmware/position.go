package firmware

import (
	"strconv"
	"strings"
)

// Axis is a single coordinate that may be absent from a report. Rotational
// axes in particular are only present on machines that have them, and an
// absent axis must never be read as zero.
type Axis struct {
	Value float64
	Valid bool
}

// Coord returns a present axis value.
func Coord(v float64) Axis { return Axis{Value: v, Valid: true} }

func (a Axis) sub(b Axis) Axis {
	if !a.Valid || !b.Valid {
		return Axis{}
	}
	return Coord(a.Value - b.Value)
}

func (a Axis) add(b Axis) Axis {
	if !a.Valid || !b.Valid {
		return Axis{}
	}
	return Coord(a.Value + b.Value)
}

// Position holds up to six axes (X, Y, Z, A, B, C).
type Position struct {
	X, Y, Z, A, B, C Axis
}

// XYZ builds a position from the three linear axes.
func XYZ(x, y, z float64) Position {
	return Position{X: Coord(x), Y: Coord(y), Z: Coord(z)}
}

// ParseCoordList parses a comma-separated coordinate list of 3 to 6 values
// in X,Y,Z[,A,B,C] order, as used by the MPos/WPos/WCO status fields.
func ParseCoordList(s string) (Position, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 || len(parts) > 6 {
		return Position{}, false
	}

	var vals [6]Axis
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Position{}, false
		}
		vals[i] = Coord(f)
	}

	return Position{X: vals[0], Y: vals[1], Z: vals[2], A: vals[3], B: vals[4], C: vals[5]}, true
}

// WorkFromMachine derives a work position as MPos - WCO. Each axis is filled
// only when both operands report it.
func WorkFromMachine(mpos, wco Position) Position {
	return Position{
		X: mpos.X.sub(wco.X),
		Y: mpos.Y.sub(wco.Y),
		Z: mpos.Z.sub(wco.Z),
		A: mpos.A.sub(wco.A),
		B: mpos.B.sub(wco.B),
		C: mpos.C.sub(wco.C),
	}
}

// MachineFromWork derives a machine position as WPos + WCO. Each axis is
// filled only when both operands report it.
func MachineFromWork(wpos, wco Position) Position {
	return Position{
		X: wpos.X.add(wco.X),
		Y: wpos.Y.add(wco.Y),
		Z: wpos.Z.add(wco.Z),
		A: wpos.A.add(wco.A),
		B: wpos.B.add(wco.B),
		C: wpos.C.add(wco.C),
	}
}
