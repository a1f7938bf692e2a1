package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/pkg/metrics"
	"github.com/partshub/runtime/system/framework/lifecycle"
)

// Service is the minimal interface every registered service implements,
// whether it backs the chat fabric (connection manager, Redis bridge) or
// the sync engine (pipeline, scheduler).
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready(ctx context.Context) error
}

// Descriptor carries a service's registration metadata.
type Descriptor struct {
	Name         string
	Domain       string
	Description  string
	Capabilities []string
	DependsOn    []string
}

// BuiltService pairs a Descriptor with its lifecycle hooks and the
// Service instance a ServiceBuilder produced.
type BuiltService struct {
	Descriptor
	Instance Service
	Hooks    *lifecycle.Hooks
}

// ServiceBuilder fluently assembles a BuiltService: name, domain,
// description, capabilities, declared dependencies, lifecycle hooks, and
// a readiness check, mirroring the way the teacher's internal builder
// assembled services before Manager existed.
type ServiceBuilder struct {
	desc     Descriptor
	instance Service
	hooks    *lifecycle.Hooks
}

// NewService starts a fluent builder for a service named name.
func NewService(name string, instance Service) *ServiceBuilder {
	return &ServiceBuilder{
		desc:     Descriptor{Name: name},
		instance: instance,
		hooks:    lifecycle.NewHooks(),
	}
}

// Domain sets the logical domain the service belongs to ("chat", "sync", "core").
func (b *ServiceBuilder) Domain(domain string) *ServiceBuilder {
	b.desc.Domain = domain
	return b
}

// Description sets a human-readable description.
func (b *ServiceBuilder) Description(desc string) *ServiceBuilder {
	b.desc.Description = desc
	return b
}

// Capabilities records the capability tags a service exposes (e.g. "websocket", "postgres").
func (b *ServiceBuilder) Capabilities(caps ...string) *ServiceBuilder {
	b.desc.Capabilities = append(b.desc.Capabilities, caps...)
	return b
}

// DependsOn declares the names of services that must start before this one.
func (b *ServiceBuilder) DependsOn(names ...string) *ServiceBuilder {
	b.desc.DependsOn = append(b.desc.DependsOn, names...)
	return b
}

// PreStart registers a named hook run before Start.
func (b *ServiceBuilder) PreStart(name string, fn lifecycle.HookFunc) *ServiceBuilder {
	b.hooks.OnPreStartNamed(name, fn)
	return b
}

// PostStart registers a named hook run after a successful Start.
func (b *ServiceBuilder) PostStart(name string, fn lifecycle.HookFunc) *ServiceBuilder {
	b.hooks.OnPostStartNamed(name, fn)
	return b
}

// PreStop registers a named hook run before Stop.
func (b *ServiceBuilder) PreStop(name string, fn lifecycle.HookFunc) *ServiceBuilder {
	b.hooks.OnPreStopNamed(name, fn)
	return b
}

// PostStop registers a named hook run after Stop, in LIFO order across services.
func (b *ServiceBuilder) PostStop(name string, fn lifecycle.HookFunc) *ServiceBuilder {
	b.hooks.OnPostStopNamed(name, fn)
	return b
}

// Build finalizes the service definition.
func (b *ServiceBuilder) Build() *BuiltService {
	return &BuiltService{
		Descriptor: b.desc,
		Instance:   b.instance,
		Hooks:      b.hooks,
	}
}

// ServiceState is the lifecycle status of a registered service.
type ServiceState string

const (
	StateRegistered ServiceState = "registered"
	StateStarting   ServiceState = "starting"
	StateRunning    ServiceState = "running"
	StateStopping   ServiceState = "stopping"
	StateStopped    ServiceState = "stopped"
	StateFailed     ServiceState = "failed"
)

type serviceRecord struct {
	svc        *BuiltService
	state      ServiceState
	startedAt  time.Time
	startSecs  float64
	stopSecs   float64
	lastErr    error
}

// Manager walks the dependency graph of registered services, starting them
// in topological order (core infrastructure first) and stopping them in
// strict reverse order of their actual start, isolating faults so one
// service's failed Stop does not abort the rest.
type Manager struct {
	mu       sync.RWMutex
	services map[string]*serviceRecord
	order    []string // registration order, stable tiebreaker for topo sort
	started  []string // actual start order, reversed on Stop
	log      *logging.Logger
}

// NewManager creates a service manager.
func NewManager(log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("runtime", "info", "json")
	}
	return &Manager{
		services: make(map[string]*serviceRecord),
		log:      log,
	}
}

// Register adds a built service to the manager. Panics on duplicate names,
// matching the teacher's registry convention that registration is a
// programming error, not a runtime condition, when it collides.
func (m *Manager) Register(svc *BuiltService) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[svc.Name]; exists {
		panic("runtime: service already registered: " + svc.Name)
	}
	m.services[svc.Name] = &serviceRecord{svc: svc, state: StateRegistered}
	m.order = append(m.order, svc.Name)
}

// resolveOrder computes a dependency-respecting start order using Kahn's
// algorithm, breaking ties by registration order so core infrastructure
// registered first naturally starts first when dependencies don't force
// otherwise.
func (m *Manager) resolveOrder() ([]string, error) {
	indegree := make(map[string]int, len(m.order))
	dependents := make(map[string][]string, len(m.order))

	for _, name := range m.order {
		indegree[name] = 0
	}
	for _, name := range m.order {
		rec := m.services[name]
		for _, dep := range rec.svc.DependsOn {
			if _, ok := m.services[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on unregistered service %q", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, name := range m.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	var result []string
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		result = append(result, name)

		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(result) != len(m.order) {
		return nil, fmt.Errorf("runtime: dependency cycle detected among registered services")
	}
	return result, nil
}

// Start starts every registered service in dependency order. On the first
// failure it stops the services already started (in reverse order) and
// returns the error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	order, err := m.resolveOrder()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, name := range order {
		m.mu.RLock()
		rec := m.services[name]
		m.mu.RUnlock()

		rec.state = StateStarting
		start := time.Now()

		if err := rec.svc.Hooks.RunPreStart(ctx); err != nil {
			rec.state = StateFailed
			rec.lastErr = err
			m.log.WithField("service", name).WithError(err).Error("pre-start hook failed")
			m.Stop(ctx)
			return fmt.Errorf("service %q pre-start: %w", name, err)
		}

		if err := rec.svc.Instance.Start(ctx); err != nil {
			rec.state = StateFailed
			rec.lastErr = err
			m.log.WithField("service", name).WithError(err).Error("service start failed")
			m.Stop(ctx)
			return fmt.Errorf("service %q start: %w", name, err)
		}

		if err := rec.svc.Hooks.RunPostStart(ctx); err != nil {
			rec.state = StateFailed
			rec.lastErr = err
			m.log.WithField("service", name).WithError(err).Error("post-start hook failed")
			m.Stop(ctx)
			return fmt.Errorf("service %q post-start: %w", name, err)
		}

		rec.startSecs = time.Since(start).Seconds()
		rec.startedAt = time.Now()
		rec.state = StateRunning
		rec.lastErr = nil

		m.mu.Lock()
		m.started = append(m.started, name)
		m.mu.Unlock()

		m.log.WithField("service", name).WithField("domain", rec.svc.Domain).Info("service started")
	}

	m.publishMetrics()
	return nil
}

// Stop stops every started service in strict reverse start order. Failures
// are logged and recorded but never abort stopping the remaining services.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	started := make([]string, len(m.started))
	copy(started, m.started)
	m.started = nil
	m.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		name := started[i]

		m.mu.RLock()
		rec := m.services[name]
		m.mu.RUnlock()

		rec.state = StateStopping
		start := time.Now()

		if err := rec.svc.Hooks.RunPreStop(ctx); err != nil {
			m.log.WithField("service", name).WithError(err).Warn("pre-stop hook failed")
		}

		if err := rec.svc.Instance.Stop(ctx); err != nil {
			rec.lastErr = err
			m.log.WithField("service", name).WithError(err).Error("service stop failed")
		}

		if err := rec.svc.Hooks.RunPostStop(ctx); err != nil {
			m.log.WithField("service", name).WithError(err).Warn("post-stop hook failed")
		}

		rec.stopSecs = time.Since(start).Seconds()
		rec.state = StateStopped
		m.log.WithField("service", name).Info("service stopped")
	}

	m.publishMetrics()
}

// Ready runs each running service's readiness check and returns the
// first error encountered per service, keyed by name.
func (m *Manager) Ready(ctx context.Context) map[string]error {
	m.mu.RLock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]error, len(names))
	for _, name := range names {
		m.mu.RLock()
		rec := m.services[name]
		m.mu.RUnlock()
		if rec.state != StateRunning {
			out[name] = fmt.Errorf("service %q is %s", name, rec.state)
			continue
		}
		out[name] = rec.svc.Instance.Ready(ctx)
	}
	return out
}

// ServiceStatus is a point-in-time snapshot of one service's lifecycle state.
type ServiceStatus struct {
	Name      string
	Domain    string
	State     ServiceState
	StartedAt time.Time
	Error     error
}

// Statuses returns a snapshot of every registered service's current state.
func (m *Manager) Statuses() []ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServiceStatus, 0, len(m.order))
	for _, name := range m.order {
		rec := m.services[name]
		out = append(out, ServiceStatus{
			Name:      name,
			Domain:    rec.svc.Domain,
			State:     rec.state,
			StartedAt: rec.startedAt,
			Error:     rec.lastErr,
		})
	}
	return out
}

// RunUntilSignal starts every service, blocks until SIGINT/SIGTERM arrives or
// ctx is cancelled, then stops every service, giving in-flight WebSocket
// connections and sync pipeline runs up to drain before Stop forces them
// closed. This is the entrypoint cmd/server and cmd/syncctl use to run the
// manager as a foreground process.
func (m *Manager) RunUntilSignal(ctx context.Context, drain time.Duration) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.log.WithField("signal", sig.String()).Info("shutdown signal received")
	case <-ctx.Done():
		m.log.Info("context cancelled, shutting down")
	}

	stopCtx := context.Background()
	if drain > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, drain)
		defer cancel()
	}

	m.Stop(stopCtx)
	return nil
}

func (m *Manager) publishMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svcMetrics := make([]metrics.ServiceMetric, 0, len(m.order))
	timings := make([]metrics.ServiceTiming, 0, len(m.order))
	for _, name := range m.order {
		rec := m.services[name]
		svcMetrics = append(svcMetrics, metrics.ServiceMetric{
			Name:   name,
			Status: string(rec.state),
			Ready:  rec.state == StateRunning,
		})
		timings = append(timings, metrics.ServiceTiming{
			Name:         name,
			StartSeconds: rec.startSecs,
			StopSeconds:  rec.stopSecs,
		})
	}
	metrics.RecordServiceMetrics(svcMetrics)
	metrics.RecordServiceTimings(timings)
}
