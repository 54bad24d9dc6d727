// Package lifecycle orchestrates the relay's graceful shutdown: stop
// the admin HTTP surface, stop the pipeline driver, destroy
// subscriptions, then close database connections.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// ShutdownPhase defines the order shutdown hooks run in.
type ShutdownPhase int

const (
	// PhaseHTTP stops the admin HTTP surface from accepting new requests.
	PhaseHTTP ShutdownPhase = iota
	// PhasePipeline stops the pipeline driver. Replies still queued in
	// reply-pending are not sent.
	PhasePipeline
	// PhaseTransport destroys subscriptions and disconnects from the peer.
	PhaseTransport
	// PhaseDatabase closes the run and monitoring database connections.
	PhaseDatabase
	// PhaseFinal performs any final cleanup.
	PhaseFinal
)

// ShutdownHook is a single registered cleanup action.
type ShutdownHook struct {
	Name     string
	Phase    ShutdownPhase
	Timeout  time.Duration
	Shutdown func(ctx context.Context) error
}

// Manager orchestrates graceful shutdown across phases.
type Manager struct {
	mu              sync.Mutex
	hooks           []ShutdownHook
	shutdownTimeout time.Duration
	done            chan struct{}
	once            sync.Once
}

// NewManager creates an empty lifecycle manager with a 30s overall budget.
func NewManager() *Manager {
	return &Manager{
		shutdownTimeout: 30 * time.Second,
		done:            make(chan struct{}),
	}
}

// SetShutdownTimeout overrides the overall shutdown budget.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}

// RegisterHook adds a shutdown hook, defaulting its per-hook timeout to 10s.
func (m *Manager) RegisterHook(hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hook.Timeout == 0 {
		hook.Timeout = 10 * time.Second
	}
	m.hooks = append(m.hooks, hook)
}

// RegisterHTTPShutdown registers an admin HTTP server shutdown hook.
func (m *Manager) RegisterHTTPShutdown(name string, shutdown func(ctx context.Context) error) {
	m.RegisterHook(ShutdownHook{Name: name, Phase: PhaseHTTP, Timeout: 15 * time.Second, Shutdown: shutdown})
}

// RegisterPipelineShutdown registers a pipeline-stop shutdown hook.
func (m *Manager) RegisterPipelineShutdown(name string, shutdown func(ctx context.Context) error) {
	m.RegisterHook(ShutdownHook{Name: name, Phase: PhasePipeline, Timeout: 30 * time.Second, Shutdown: shutdown})
}

// RegisterTransportShutdown registers a subscription-teardown shutdown hook.
func (m *Manager) RegisterTransportShutdown(name string, shutdown func(ctx context.Context) error) {
	m.RegisterHook(ShutdownHook{Name: name, Phase: PhaseTransport, Timeout: 10 * time.Second, Shutdown: shutdown})
}

// RegisterDatabaseShutdown registers a database-close shutdown hook.
func (m *Manager) RegisterDatabaseShutdown(name string, shutdown func(ctx context.Context) error) {
	m.RegisterHook(ShutdownHook{Name: name, Phase: PhaseDatabase, Timeout: 10 * time.Second, Shutdown: shutdown})
}

// WaitForSignal blocks until SIGINT/SIGTERM, or until Shutdown is called.
func (m *Manager) WaitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-m.done:
		log.Info().Msg("shutdown triggered programmatically")
	}
}

// Shutdown triggers shutdown programmatically (idempotent).
func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.done) })
}

// Execute runs every registered hook, phase by phase, hooks within a
// phase running concurrently.
func (m *Manager) Execute() error {
	m.mu.Lock()
	hooks := make([]ShutdownHook, len(m.hooks))
	copy(hooks, m.hooks)
	timeout := m.shutdownTimeout
	m.mu.Unlock()

	log.Info().Int("hooks", len(hooks)).Dur("timeout", timeout).Msg("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	byPhase := make(map[ShutdownPhase][]ShutdownHook)
	for _, h := range hooks {
		byPhase[h.Phase] = append(byPhase[h.Phase], h)
	}

	phases := []ShutdownPhase{PhaseHTTP, PhasePipeline, PhaseTransport, PhaseDatabase, PhaseFinal}
	for _, phase := range phases {
		phaseHooks := byPhase[phase]
		if len(phaseHooks) == 0 {
			continue
		}

		log.Info().Int("phase", int(phase)).Int("hooks", len(phaseHooks)).Msg("executing shutdown phase")

		var wg sync.WaitGroup
		for _, h := range phaseHooks {
			wg.Add(1)
			go func(hook ShutdownHook) {
				defer wg.Done()
				m.executeHook(ctx, hook)
			}(h)
		}
		wg.Wait()

		if ctx.Err() != nil {
			log.Warn().Msg("shutdown timeout reached, forcing exit")
			return ctx.Err()
		}
	}

	log.Info().Msg("graceful shutdown completed")
	return nil
}

func (m *Manager) executeHook(parentCtx context.Context, hook ShutdownHook) {
	ctx, cancel := context.WithTimeout(parentCtx, hook.Timeout)
	defer cancel()

	log.Debug().Str("hook", hook.Name).Dur("timeout", hook.Timeout).Msg("executing shutdown hook")

	errCh := make(chan error, 1)
	go func() { errCh <- hook.Shutdown(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Str("hook", hook.Name).Msg("shutdown hook failed")
		} else {
			log.Debug().Str("hook", hook.Name).Msg("shutdown hook completed")
		}
	case <-ctx.Done():
		log.Warn().Str("hook", hook.Name).Msg("shutdown hook timed out")
	}
}

// Run blocks for a signal, then executes the shutdown sequence.
func (m *Manager) Run() error {
	m.WaitForSignal()
	return m.Execute()
}
