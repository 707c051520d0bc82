package plugin

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Manager is the in-memory plugin registry. Plugins enter the registry
// when their presence message arrives or when they are declared in the
// managed plugins configuration, and flip between online and offline
// as presence changes.
//
// All public methods are thread-safe.
type Manager struct {
	domain  string
	mu      sync.RWMutex
	plugins map[string]*Plugin
	logger  Logger
	now     func() time.Time
}

// NewManager creates a plugin registry. The domain is the suffix
// appended to plugin-qualified service IDs, e.g. "devicehub.local".
func NewManager(domain string) *Manager {
	return &Manager{
		domain:  domain,
		plugins: make(map[string]*Plugin),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Domain returns the service id domain suffix.
func (m *Manager) Domain() string {
	return m.domain
}

// Register adds a plugin in the offline state, or updates the name and
// managed flag of an existing entry. Used at startup for plugins
// declared in configuration, before their presence arrives.
func (m *Manager) Register(id, name string, managed bool) error {
	if !isValidPluginID(id) {
		return ErrInvalidPluginID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.plugins[id]; ok {
		p.Name = name
		p.Managed = managed
		return nil
	}

	m.plugins[id] = &Plugin{
		ID:      id,
		Name:    name,
		State:   StateOffline,
		Managed: managed,
	}
	m.logger.Info("plugin registered", "plugin_id", id, "managed", managed)
	return nil
}

// MarkOnline records a presence announcement. Unknown plugins are
// added on the fly; known plugins have their metadata refreshed.
func (m *Manager) MarkOnline(id, name, version string, profiles []string) error {
	if !isValidPluginID(id) {
		return ErrInvalidPluginID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plugins[id]
	if !ok {
		p = &Plugin{ID: id}
		m.plugins[id] = p
	}
	if name != "" {
		p.Name = name
	}
	if version != "" {
		p.Version = version
	}
	if profiles != nil {
		p.Profiles = make([]string, len(profiles))
		copy(p.Profiles, profiles)
	}
	p.State = StateOnline
	p.LastSeen = m.now()

	if !ok {
		m.logger.Info("plugin discovered", "plugin_id", id, "name", name)
	} else {
		m.logger.Debug("plugin online", "plugin_id", id)
	}
	return nil
}

// MarkOffline records that a plugin has gone away. Returns false if
// the plugin was never registered.
func (m *Manager) MarkOffline(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plugins[id]
	if !ok {
		return false
	}
	p.State = StateOffline
	m.logger.Info("plugin offline", "plugin_id", id)
	return true
}

// Get retrieves a plugin by id. The returned plugin is a deep copy.
func (m *Manager) Get(id string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[id]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p.DeepCopy(), nil
}

// List returns all registered plugins sorted by id.
func (m *Manager) List() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, *p.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Online returns the plugins currently marked online, sorted by id.
func (m *Manager) Online() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		if p.State == StateOnline {
			out = append(out, *p.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes a plugin from the registry. Returns false if the
// plugin was not registered.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plugins[id]; !ok {
		return false
	}
	delete(m.plugins, id)
	m.logger.Info("plugin removed", "plugin_id", id)
	return true
}

// AppendServiceID qualifies a plugin-local service id for clients.
// The scheme is {serviceID}.{pluginID}.{domain}; a plugin that exposes
// no local id (an empty serviceID) is addressed as {pluginID}.{domain}.
func (m *Manager) AppendServiceID(pluginID, serviceID string) string {
	if serviceID == "" {
		return pluginID + "." + m.domain
	}
	return serviceID + "." + pluginID + "." + m.domain
}

// SplitServiceID resolves a client-facing service id back into the
// owning plugin id and the plugin-local service id. The local id is
// empty when the plugin itself is the service.
func (m *Manager) SplitServiceID(serviceID string) (pluginID, localID string, err error) {
	rest, ok := strings.CutSuffix(serviceID, "."+m.domain)
	if !ok || rest == "" {
		return "", "", ErrInvalidServiceID
	}
	if idx := strings.LastIndex(rest, "."); idx >= 0 {
		return rest[idx+1:], rest[:idx], nil
	}
	return rest, "", nil
}

// PluginForServiceID resolves a client-facing service id to the owning
// plugin. Returns the plugin copy and the plugin-local service id.
func (m *Manager) PluginForServiceID(serviceID string) (*Plugin, string, error) {
	pluginID, localID, err := m.SplitServiceID(serviceID)
	if err != nil {
		return nil, "", err
	}
	p, err := m.Get(pluginID)
	if err != nil {
		return nil, "", err
	}
	return p, localID, nil
}

// isValidPluginID reports whether id can appear as a service id
// segment. Dots would break SplitServiceID; slashes would break the
// MQTT topic layout.
func isValidPluginID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "./")
}
