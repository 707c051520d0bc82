package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/devicehub-core/internal/infrastructure/config"
	"github.com/nerrad567/devicehub-core/internal/process"
)

// Supervisor owns the process managers for locally-managed plugins.
// Each managed plugin declared in configuration gets one supervised
// process; Restart satisfies the transport's Restarter.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*process.Manager
	logger    Logger
}

// NewSupervisor builds process managers for the configured managed
// plugins. Nothing is started until StartAll.
func NewSupervisor(managed []config.ManagedPluginConfig) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*process.Manager, len(managed)),
		logger:    noopLogger{},
	}
	for _, m := range managed {
		cfg := process.DefaultConfig(m.Name, m.Binary, m.Args)
		cfg.WorkDir = m.WorkDir
		cfg.RestartOnFailure = m.Restart
		if m.MaxRestart > 0 {
			cfg.MaxRestartAttempts = m.MaxRestart
		}
		s.processes[m.ID] = process.NewManager(cfg)
	}
	return s
}

// SetLogger sets the logger for the supervisor and its processes.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.processes {
		p.SetLogger(logger)
	}
}

// StartAll launches every managed plugin process. A plugin that fails
// to launch is logged and skipped; the others still start.
func (s *Supervisor) StartAll(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, p := range s.processes {
		if err := p.Start(ctx); err != nil {
			s.logger.Error("starting plugin process", "plugin_id", id, "error", err)
			continue
		}
		s.logger.Info("plugin process started", "plugin_id", id, "pid", p.PID())
	}
}

// StopAll stops every managed plugin process.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, p := range s.processes {
		if err := p.Stop(); err != nil {
			s.logger.Warn("stopping plugin process", "plugin_id", id, "error", err)
		}
	}
}

// Restart restarts one managed plugin process.
func (s *Supervisor) Restart(ctx context.Context, pluginID string) error {
	s.mu.RLock()
	p, ok := s.processes[pluginID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, pluginID)
	}
	return p.Restart(ctx)
}

// Manages reports whether pluginID has a supervised process.
func (s *Supervisor) Manages(pluginID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processes[pluginID]
	return ok
}

// IDs returns the managed plugin ids.
func (s *Supervisor) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	return ids
}
