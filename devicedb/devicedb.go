// Package devicedb holds connection profiles for known controller
// families: which dialect they speak, how fast to talk to them, and how
// the streamer should be sized. Built-in profiles cover the stock
// firmware; a YAML file can add or override profiles for tuned machines.
package devicedb

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/cncstream/firmware"
	"github.com/mastercactapus/cncstream/stream"
)

// Profile describes how to talk to one controller model.
type Profile struct {
	Name       string `yaml:"name"`
	Controller string `yaml:"controller"`
	BaudRate   int    `yaml:"baud_rate"`

	// BufferSize overrides the controller family's receive buffer size.
	// Zero keeps the family default.
	BufferSize int `yaml:"buffer_size"`

	MaxQueueDepth int `yaml:"max_queue_depth"`
	MaxRetries    int `yaml:"max_retries"`

	// FlowControl defaults to on when omitted.
	FlowControl *bool `yaml:"flow_control"`
}

// ControllerType resolves the profile's controller family.
func (p Profile) ControllerType() firmware.ControllerType {
	switch strings.ToLower(p.Controller) {
	case "grbl":
		return firmware.ControllerGrbl
	case "grblhal":
		return firmware.ControllerGrblHAL
	case "tinyg":
		return firmware.ControllerTinyG
	case "g2core":
		return firmware.ControllerG2Core
	case "fluidnc":
		return firmware.ControllerFluidNC
	default:
		return firmware.ControllerUnknown
	}
}

// Dialect returns the response parser for this profile.
func (p Profile) Dialect() firmware.Dialect {
	return p.ControllerType().Dialect()
}

// StreamConfig builds the streamer configuration for this profile.
func (p Profile) StreamConfig() stream.Config {
	cfg := stream.DefaultConfig(p.ControllerType())
	if p.BufferSize > 0 {
		cfg.BufferCapacity = p.BufferSize
	}
	if p.MaxQueueDepth > 0 {
		cfg.MaxQueueDepth = p.MaxQueueDepth
	}
	if p.MaxRetries > 0 {
		cfg.MaxRetries = p.MaxRetries
	}
	if p.FlowControl != nil {
		cfg.FlowControl = *p.FlowControl
	}
	return cfg
}

func (p Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("devicedb: profile name required")
	}
	if p.ControllerType() == firmware.ControllerUnknown {
		return fmt.Errorf("devicedb: profile %q: unknown controller %q", p.Name, p.Controller)
	}
	if p.BaudRate < 0 || p.BufferSize < 0 || p.MaxRetries < 0 || p.MaxQueueDepth < 0 {
		return fmt.Errorf("devicedb: profile %q: negative value", p.Name)
	}
	return nil
}

// Builtin returns the stock profiles, one per supported family.
func Builtin() []Profile {
	return []Profile{
		{Name: "grbl", Controller: "grbl", BaudRate: 115200},
		{Name: "grblhal", Controller: "grblhal", BaudRate: 115200},
		{Name: "tinyg", Controller: "tinyg", BaudRate: 115200},
		{Name: "g2core", Controller: "g2core", BaudRate: 115200},
		{Name: "fluidnc", Controller: "fluidnc", BaudRate: 115200},
	}
}

type dbFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Load reads profiles from a YAML file and overlays them on the built-in
// set. A file profile with a built-in name replaces it.
func Load(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devicedb: read %s: %w", path, err)
	}

	var file dbFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("devicedb: parse %s: %w", path, err)
	}

	profiles := Builtin()
	for _, p := range file.Profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if p.BaudRate == 0 {
			p.BaudRate = 115200
		}
		replaced := false
		for i := range profiles {
			if profiles[i].Name == p.Name {
				profiles[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// Find returns the named profile.
func Find(profiles []Profile, name string) (Profile, bool) {
	for _, p := range profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Profile{}, false
}
