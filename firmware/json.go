package firmware

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The TinyG and g2core wire formats are near-identical single-line JSON
// objects, optionally wrapped in a {"r":{...}} reply envelope. The two
// dialects differ only in their startup token and axis count, so they share
// the classification logic below.

func parseJSONResponse(name, token, axes, raw string) (Response, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Response{}, fmt.Errorf("%s: empty response", name)
	}

	if !strings.HasPrefix(line, "{") {
		if strings.Contains(strings.ToLower(line), token) {
			return Response{Kind: KindStartup, Message: line, Raw: raw}, nil
		}
		return Response{}, fmt.Errorf("%s: unparseable response: %q", name, line)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return Response{}, fmt.Errorf("%s: parse response: %w", name, err)
	}

	// Unwrap the reply envelope; the body carries the real keys and the
	// footer is checksum/status data this layer does not need.
	if r, ok := obj["r"]; ok {
		inner := make(map[string]json.RawMessage)
		if err := json.Unmarshal(r, &inner); err != nil {
			return Response{}, fmt.Errorf("%s: parse reply body: %w", name, err)
		}
		if _, ok := inner["n"]; !ok {
			if n, ok := obj["n"]; ok {
				inner["n"] = n
			}
		}
		obj = inner
	}

	if er, ok := obj["er"]; ok {
		return parseJSONError(name, er, raw)
	}

	if sr, ok := obj["sr"]; ok {
		rep, err := parseJSONStatus(name, sr, axes)
		if err != nil {
			return Response{}, err
		}
		resp := Response{Kind: KindStatus, Status: rep, Raw: raw}
		if n := jsonInt(obj["n"]); n != nil {
			resp.Line = n
			if rep.Line == nil {
				rep.Line = n
			}
		}
		return resp, nil
	}

	// System status carries state only; surface it as a status report so
	// callers have a single snapshot model.
	if sys, ok := obj["sys"]; ok {
		rep := &StatusReport{State: jsonState(sys)}
		return Response{Kind: KindStatus, Status: rep, Raw: raw}, nil
	}

	if len(obj) == 1 {
		for key, val := range obj {
			if strings.HasPrefix(key, "f") || strings.HasPrefix(key, "m") || strings.HasPrefix(key, "$") {
				set := &Setting{Number: -1, Name: key, Value: strings.Trim(string(val), `"`)}
				return Response{Kind: KindSetting, Setting: set, Raw: raw}, nil
			}
		}
	}

	var okFlag bool
	if rawOK, ok := obj["ok"]; ok && json.Unmarshal(rawOK, &okFlag) == nil && okFlag {
		return Response{Kind: KindOk, Line: jsonInt(obj["n"]), Raw: raw}, nil
	}

	return Response{Kind: KindUnknown, Raw: raw}, nil
}

func parseJSONError(name string, er json.RawMessage, raw string) (Response, error) {
	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(er, &body); err != nil {
		return Response{}, fmt.Errorf("%s: parse error body: %w", name, err)
	}
	msg := body.Msg
	if msg == "" {
		msg = fmt.Sprintf("controller error %d", body.Code)
	}
	return Response{Kind: KindError, Code: body.Code, Message: msg, Raw: raw}, nil
}

func parseJSONStatus(name string, sr json.RawMessage, axes string) (*StatusReport, error) {
	var body struct {
		Stat  json.RawMessage            `json:"stat"`
		Pos   map[string]float64         `json:"pos"`
		MPos  map[string]float64         `json:"mpos"`
		Feed  *float64                   `json:"feed"`
		Speed *float64                   `json:"speed"`
		Line  *int                       `json:"line"`
	}
	if err := json.Unmarshal(sr, &body); err != nil {
		return nil, fmt.Errorf("%s: parse status report: %w", name, err)
	}

	rep := &StatusReport{
		State:   jsonState(body.Stat),
		Feed:    body.Feed,
		Spindle: body.Speed,
		Line:    body.Line,
	}
	if body.Pos != nil {
		pos := positionFromAxisMap(body.Pos, axes)
		rep.WPos = &pos
	}
	if body.MPos != nil {
		pos := positionFromAxisMap(body.MPos, axes)
		rep.MPos = &pos
	}

	rep.FillDerived()
	return rep, nil
}

// jsonState accepts the nested {"state":"Run"} object form as well as a
// bare string.
func jsonState(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var nested struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.State != "" {
		return nested.State
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func jsonInt(raw json.RawMessage) *int {
	if raw == nil {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}

func positionFromAxisMap(m map[string]float64, axes string) Position {
	var pos Position
	for _, axis := range axes {
		v, ok := m[string(axis)]
		if !ok {
			continue
		}
		switch axis {
		case 'x':
			pos.X = Coord(v)
		case 'y':
			pos.Y = Coord(v)
		case 'z':
			pos.Z = Coord(v)
		case 'a':
			pos.A = Coord(v)
		case 'b':
			pos.B = Coord(v)
		case 'c':
			pos.C = Coord(v)
		}
	}
	return pos
}
