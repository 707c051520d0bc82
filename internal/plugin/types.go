package plugin

import (
	"errors"
	"time"
)

// State describes a plugin's availability as seen by the manager.
type State string

const (
	// StateOnline means the plugin has announced itself and is reachable.
	StateOnline State = "online"

	// StateOffline means the plugin has disconnected or its LWT fired.
	StateOffline State = "offline"
)

// Plugin is one registered device plugin. Plugins announce themselves
// over MQTT presence; the manager may additionally supervise the
// plugin's process locally.
type Plugin struct {
	// ID is the plugin's unique identifier. It appears as a segment
	// of qualified service IDs, so it must not contain a dot.
	ID string

	// Name is the plugin's human-readable name.
	Name string

	// Version is the plugin's self-reported version string.
	Version string

	// Profiles lists the profile names the plugin supports.
	Profiles []string

	// State is the plugin's current availability.
	State State

	// Managed marks plugins whose process this manager supervises.
	Managed bool

	// LastSeen is when the plugin last announced presence.
	LastSeen time.Time
}

// DeepCopy returns an independent copy of the plugin.
func (p *Plugin) DeepCopy() *Plugin {
	cp := *p
	if p.Profiles != nil {
		cp.Profiles = make([]string, len(p.Profiles))
		copy(cp.Profiles, p.Profiles)
	}
	return &cp
}

var (
	// ErrPluginNotFound is returned when a plugin id is not registered.
	ErrPluginNotFound = errors.New("plugin: plugin not found")

	// ErrInvalidPluginID is returned when a plugin id is empty or
	// contains a dot or slash.
	ErrInvalidPluginID = errors.New("plugin: invalid plugin id")

	// ErrInvalidServiceID is returned when a qualified service id does
	// not carry this manager's domain suffix.
	ErrInvalidServiceID = errors.New("plugin: invalid service id")
)
