package firmware

import (
	"strconv"
	"strings"
)

// GRBL parses the line-oriented text dialect spoken by GRBL, grblHAL and
// FluidNC.
type GRBL struct{}

var _ Dialect = GRBL{}

func (GRBL) Name() string { return "GRBL" }

var grblBanners = []string{"Grbl", "GrblHAL", "grblHAL", "FluidNC"}

// Parse classifies one response line. Text lines never fail to parse:
// anything unrecognized is passed through as a message.
func (GRBL) Parse(raw string) (Response, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Response{Kind: KindMessage, Raw: raw}, nil
	}

	if line == "ok" {
		return Response{Kind: KindOk, Raw: raw}, nil
	}

	if rest, ok := strings.CutPrefix(line, "error:"); ok {
		if code, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			return Response{Kind: KindError, Code: code, Message: DecodeError(code), Raw: raw}, nil
		}
	}

	if rest, ok := cutPrefixFold(line, "alarm:"); ok {
		if code, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			return Response{Kind: KindAlarm, Code: code, Message: DecodeAlarm(code), Raw: raw}, nil
		}
	}

	if strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") {
		status := parseGrblStatus(line[1 : len(line)-1])
		return Response{Kind: KindStatus, Status: status, Line: status.Line, Raw: raw}, nil
	}

	if strings.HasPrefix(line, "$") && strings.Contains(line, "=") {
		if set, ok := parseGrblSetting(line); ok {
			return Response{Kind: KindSetting, Setting: set, Raw: raw}, nil
		}
	}

	for _, banner := range grblBanners {
		if strings.HasPrefix(line, banner+" ") {
			return Response{Kind: KindStartup, Message: line, Raw: raw}, nil
		}
	}

	return Response{Kind: KindMessage, Message: line, Raw: raw}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// parseGrblStatus decomposes the interior of a <...> status report. The
// first pipe-separated field is the machine state; the rest are KEY:value
// pairs. Unknown keys are skipped so newer firmware extensions pass through.
func parseGrblStatus(body string) *StatusReport {
	parts := strings.Split(body, "|")
	rep := &StatusReport{State: strings.TrimSpace(parts[0])}

	var fsFeed, fsSpindle *float64
	for _, part := range parts[1:] {
		key, val, found := strings.Cut(part, ":")
		if !found {
			continue
		}

		switch key {
		case "MPos":
			if pos, ok := ParseCoordList(val); ok {
				rep.MPos = &pos
			}
		case "WPos":
			if pos, ok := ParseCoordList(val); ok {
				rep.WPos = &pos
			}
		case "WCO":
			if pos, ok := ParseCoordList(val); ok {
				rep.WCO = &pos
			}
		case "Buf", "Bf":
			if buf, ok := parseBufferState(val); ok {
				rep.Buffer = &buf
			}
		case "Ov":
			if ov, ok := parseOverrides(val); ok {
				rep.Override = &ov
			}
		case "F":
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				rep.Feed = &f
			}
		case "S":
			if s, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				rep.Spindle = &s
			}
		case "FS":
			f, s, ok := parseFeedSpindle(val)
			if ok {
				fsFeed, fsSpindle = &f, &s
			}
		case "Ln":
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				rep.Line = &n
			}
		}
	}

	// The explicit single-value fields win; FS: is the fallback used by
	// firmware variants that only emit the combined pair.
	if rep.Feed == nil {
		rep.Feed = fsFeed
	}
	if rep.Spindle == nil {
		rep.Spindle = fsSpindle
	}

	rep.FillDerived()
	return rep
}

// parseBufferState reads the controller's own Buf:plan:rx (or Bf:plan,rx)
// telemetry. Both separators appear in the wild.
func parseBufferState(s string) (BufferState, bool) {
	sep := ":"
	if !strings.Contains(s, sep) {
		sep = ","
	}
	parts := strings.SplitN(s, sep, 2)
	if len(parts) < 2 {
		return BufferState{}, false
	}
	plan, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	rx, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return BufferState{}, false
	}
	return BufferState{Plan: plan, RX: rx}, true
}

func parseOverrides(s string) (Overrides, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return Overrides{}, false
	}
	feed, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	rapid, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	spindle, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return Overrides{}, false
	}
	return Overrides{Feed: feed, Rapid: rapid, Spindle: spindle}, true
}

func parseFeedSpindle(s string) (feed, spindle float64, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) < 2 {
		return 0, 0, false
	}
	feed, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	spindle, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return feed, spindle, true
}

func parseGrblSetting(line string) (*Setting, bool) {
	num, val, _ := strings.Cut(line[1:], "=")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return nil, false
	}
	return &Setting{Number: n, Name: "$" + strings.TrimSpace(num), Value: strings.TrimSpace(val)}, true
}
