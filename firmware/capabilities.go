package firmware

import "strings"

// ControllerType identifies a supported controller family.
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerGrbl
	ControllerGrblHAL
	ControllerTinyG
	ControllerG2Core
	ControllerFluidNC
)

func (t ControllerType) String() string {
	switch t {
	case ControllerGrbl:
		return "GRBL"
	case ControllerGrblHAL:
		return "grblHAL"
	case ControllerTinyG:
		return "TinyG"
	case ControllerG2Core:
		return "g2core"
	case ControllerFluidNC:
		return "FluidNC"
	default:
		return "Unknown"
	}
}

// Dialect returns the response parser for this controller family.
func (t ControllerType) Dialect() Dialect {
	switch t {
	case ControllerTinyG:
		return TinyG{}
	case ControllerG2Core:
		return G2Core{}
	default:
		return GRBL{}
	}
}

// Capabilities describes the fixed limits of a controller family. The
// receive buffer size drives the streamer's flow-control window.
type Capabilities struct {
	Type            ControllerType
	MaxAxes         int
	MaxFeedRate     float64
	MaxRapidRate    float64
	MaxSpindleSpeed int
	Probing         bool
	ToolChange      bool
	AutoHome        bool
	RXBufferSize    int
}

var capabilityTable = map[ControllerType]Capabilities{
	ControllerGrbl: {
		Type: ControllerGrbl, MaxAxes: 5,
		MaxFeedRate: 24000, MaxRapidRate: 1000, MaxSpindleSpeed: 255,
		Probing: true, AutoHome: true,
		RXBufferSize: 128,
	},
	ControllerGrblHAL: {
		Type: ControllerGrblHAL, MaxAxes: 6,
		MaxFeedRate: 24000, MaxRapidRate: 3000, MaxSpindleSpeed: 30000,
		Probing: true, ToolChange: true, AutoHome: true,
		RXBufferSize: 256,
	},
	ControllerTinyG: {
		Type: ControllerTinyG, MaxAxes: 4,
		MaxFeedRate: 10000, MaxRapidRate: 3000, MaxSpindleSpeed: 255,
		Probing: true, ToolChange: true, AutoHome: true,
		RXBufferSize: 64,
	},
	ControllerG2Core: {
		Type: ControllerG2Core, MaxAxes: 6,
		MaxFeedRate: 10000, MaxRapidRate: 3000, MaxSpindleSpeed: 255,
		Probing: true, ToolChange: true, AutoHome: true,
		RXBufferSize: 256,
	},
	ControllerFluidNC: {
		Type: ControllerFluidNC, MaxAxes: 6,
		MaxFeedRate: 50000, MaxRapidRate: 5000, MaxSpindleSpeed: 10000,
		Probing: true, ToolChange: true, AutoHome: true,
		RXBufferSize: 512,
	},
}

// CapabilitiesFor returns the limits for a controller family. Unknown
// controllers get the conservative GRBL profile.
func CapabilitiesFor(t ControllerType) Capabilities {
	if caps, ok := capabilityTable[t]; ok {
		return caps
	}
	caps := capabilityTable[ControllerGrbl]
	caps.Type = t
	return caps
}

// DetectBanner guesses the controller family from a startup banner line.
func DetectBanner(line string) ControllerType {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "grblhal"):
		return ControllerGrblHAL
	case strings.Contains(lower, "fluidnc"):
		return ControllerFluidNC
	case strings.Contains(lower, "g2core"):
		return ControllerG2Core
	case strings.Contains(lower, "tinyg"):
		return ControllerTinyG
	case strings.Contains(lower, "grbl"):
		return ControllerGrbl
	default:
		return ControllerUnknown
	}
}
