// Package mcpconn manages long-lived connections to MCP tool servers.
// Each named server has its own state machine, retry budget and tool catalog.
package mcpconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/uber-go/tally"
)

// ErrManagerClosed is returned by Connect after Shutdown.
var ErrManagerClosed = errors.New("connection manager is shut down")

const (
	defaultMaxAttempts    = 3
	defaultRetryBase      = time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultCallTimeout    = 120 * time.Second
)

type Options struct {
	Backoff        Backoff
	ConnectTimeout time.Duration // per connect attempt and per health check
	CallTimeout    time.Duration // upper bound for one tool call
	Timer          Timer
	Stats          tally.Scope
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Backoff.MaxAttempts <= 0 {
		o.Backoff.MaxAttempts = defaultMaxAttempts
	}
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = defaultRetryBase
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
	if o.Timer == nil {
		o.Timer = realTimer{}
	}
	if o.Stats == nil {
		o.Stats = tally.NoopScope
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manager is the registry of server connections. Create one at startup and
// pass it to collaborators.
type Manager struct {
	dialer Dialer
	opts   Options
	stats  tally.Scope

	connsMu sync.Mutex
	conns   map[string]*serverConn

	listenerMu sync.RWMutex
	listener   StatusListener

	ctx    context.Context
	cancel context.CancelFunc
}

// serverConn is the record for one server name. Lock order: opMu, then
// Manager.connsMu, then mu.
type serverConn struct {
	name string

	// opMu serializes connect, reconnect and disconnect for this name.
	opMu sync.Mutex

	mu          sync.RWMutex
	cfg         ServerConfig
	transport   Transport
	state       State
	retryCount  int
	lastError   error
	lastChecked time.Time
	connectedAt time.Time
	catalog     *ToolCatalog
}

func NewManager(dialer Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dialer: dialer,
		opts:   opts,
		stats:  opts.Stats,
		conns:  make(map[string]*serverConn),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *Manager) getOrCreate(name string) *serverConn {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()

	c, ok := m.conns[name]
	if !ok {
		c = &serverConn{name: name, state: StateDisconnected}
		m.conns[name] = c
	}
	return c
}

// lockLive returns the registered record for name with its opMu held.
// A record dropped by Remove while the caller waited for the lock is
// never returned; the caller gets the record that replaced it.
func (m *Manager) lockLive(name string) *serverConn {
	for {
		c := m.getOrCreate(name)
		c.opMu.Lock()

		m.connsMu.Lock()
		live := m.conns[name] == c
		m.connsMu.Unlock()
		if live {
			return c
		}
		c.opMu.Unlock()
	}
}

func (m *Manager) lookup(name string) (*serverConn, bool) {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()
	c, ok := m.conns[name]
	return c, ok
}

// StatusListener receives a status snapshot after every state change.
// It is called while the connection's operation lock is held, so it must
// not block or call back into the Manager.
type StatusListener interface {
	OnStatusChange(s Status)
}

func (m *Manager) SetStatusListener(l StatusListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

func (m *Manager) notify(c *serverConn) {
	m.listenerMu.RLock()
	l := m.listener
	m.listenerMu.RUnlock()
	if l != nil {
		l.OnStatusChange(c.status())
	}
}

func (m *Manager) scope(name string) tally.Scope {
	return m.stats.Tagged(map[string]string{"server": name})
}

// Connect establishes the connection for cfg.Name and fetches its tool
// catalog, retrying with exponential backoff. It is a no-op when the
// connection is already Connected. Concurrent calls for the same name are
// serialized; the later ones observe the result of the first.
// A cfg without a command reuses the last known configuration.
func (m *Manager) Connect(cfg ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("server name is required")
	}

	c := m.lockLive(cfg.Name)
	defer c.opMu.Unlock()

	if c.getState() == StateConnected {
		return nil
	}
	if cfg.Command == "" {
		cfg = c.config()
		if cfg.Command == "" {
			return fmt.Errorf("connect %s: no known configuration", c.name)
		}
	}
	return m.connectLocked(c, cfg)
}

// Reconnect disconnects and connects again with a fresh retry budget.
// A cfg without a command reuses the last known configuration.
func (m *Manager) Reconnect(name string, cfg ServerConfig) error {
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Name != name {
		return fmt.Errorf("reconnect %s: config is for %s", name, cfg.Name)
	}

	c := m.lockLive(name)
	defer c.opMu.Unlock()

	if cfg.Command == "" {
		cfg = c.config()
		if cfg.Command == "" {
			return fmt.Errorf("reconnect %s: no known configuration", name)
		}
	}

	m.disconnectLocked(c)
	return m.connectLocked(c, cfg)
}

// connectLocked runs one full attempt sequence. Caller holds c.opMu.
func (m *Manager) connectLocked(c *serverConn, cfg ServerConfig) error {
	log := slog.With("server", c.name)
	stats := m.scope(c.name)

	if m.ctx.Err() != nil {
		return ErrManagerClosed
	}

	if stale := c.beginConnect(cfg); stale != nil {
		if err := stale.Close(); err != nil {
			log.Warn("failed to close stale transport", "error", err)
		}
	}
	m.notify(c)
	log.Info("connecting", "command", cfg.String())

	maxAttempts := m.opts.Backoff.MaxAttempts
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++
		stats.Counter("connect.attempts").Inc(1)

		t, catalog, err := m.attempt(cfg)
		if err == nil {
			c.established(t, catalog, m.opts.Now())
			m.reportConnected()
			m.notify(c)
			log.Info("connected", "tools", catalog.Len(), "attempts", attempts)
			return nil
		}

		lastErr = err
		c.attemptFailed(err)
		stats.Counter("connect.failures").Inc(1)
		log.Warn("connect attempt failed", "attempt", attempts, "maxAttempts", maxAttempts, "error", err)

		if attempts == maxAttempts {
			break
		}
		if err := m.opts.Timer.Wait(m.ctx, m.opts.Backoff.Delay(attempt)); err != nil {
			lastErr = fmt.Errorf("backoff interrupted: %w", err)
			break
		}
	}

	c.failConnect(lastErr)
	stats.Counter("connect.exhausted").Inc(1)
	m.reportConnected()
	m.notify(c)
	log.Error("connect failed", "attempts", attempts, "error", lastErr)
	return &ConnectionError{Name: c.name, Attempts: attempts, Err: lastErr}
}

func (m *Manager) attempt(cfg ServerConfig) (Transport, *ToolCatalog, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.ConnectTimeout)
	defer cancel()

	t, err := m.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	tools, err := t.ListTools(ctx)
	if err != nil {
		if closeErr := t.Close(); closeErr != nil {
			slog.Warn("failed to close transport after list failure", "server", cfg.Name, "error", closeErr)
		}
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}
	return t, NewToolCatalog(tools), nil
}

// Disconnect closes the transport and clears the catalog and status.
// It is safe to call for unknown or already disconnected names.
func (m *Manager) Disconnect(name string) error {
	c, ok := m.lookup(name)
	if !ok {
		return nil
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	return m.disconnectLocked(c)
}

func (m *Manager) disconnectLocked(c *serverConn) error {
	wasDisconnected := c.getState() == StateDisconnected
	t := c.reset()
	m.reportConnected()
	if !wasDisconnected {
		m.notify(c)
	}
	if t == nil {
		return nil
	}
	if err := t.Close(); err != nil {
		slog.Warn("failed to close transport", "server", c.name, "error", err)
		return fmt.Errorf("close %s: %w", c.name, err)
	}
	slog.Info("disconnected", "server", c.name)
	return nil
}

// Remove disconnects the server and forgets it.
func (m *Manager) Remove(name string) error {
	c, ok := m.lookup(name)
	if !ok {
		return nil
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	err := m.disconnectLocked(c)
	m.connsMu.Lock()
	if m.conns[name] == c {
		delete(m.conns, name)
	}
	m.connsMu.Unlock()
	m.reportConnected()
	return err
}

// HealthCheck lists tools over the existing transport. A failure marks the
// connection Failed and records the error; the retry count is never touched.
func (m *Manager) HealthCheck(ctx context.Context, name string) error {
	c, ok := m.lookup(name)
	if !ok {
		return &NotConnectedError{Name: name}
	}

	t, state := c.currentTransport()
	if t == nil {
		return &NotConnectedError{Name: name, State: state}
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	_, err := t.ListTools(ctx)
	if !c.recordHealth(t, err, m.opts.Now()) {
		// The transport was replaced while the check was in flight.
		return err
	}
	if err != nil {
		m.scope(name).Counter("health_check.failures").Inc(1)
		m.reportConnected()
		m.notify(c)
		slog.Warn("health check failed", "server", name, "error", err)
		return fmt.Errorf("health check %s: %w", name, err)
	}
	return nil
}

// CallTool invokes a tool on a Connected server. Without a live connection it
// fails with NotConnectedError and performs no I/O.
func (m *Manager) CallTool(ctx context.Context, name, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	c, ok := m.lookup(name)
	if !ok {
		return nil, &NotConnectedError{Name: name}
	}

	t, state := c.liveTransport()
	if t == nil {
		return nil, &NotConnectedError{Name: name, State: state}
	}

	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	stats := m.scope(name)
	start := time.Now()
	res, err := t.CallTool(ctx, tool, args)
	stats.Timer("tool_call.latency").Record(time.Since(start))

	if err != nil {
		stats.Counter("tool_call.errors").Inc(1)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &CallTimeoutError{Name: name, Tool: tool, Timeout: m.opts.CallTimeout, Err: err}
		}
		return nil, fmt.Errorf("call %s on %s: %w", tool, name, err)
	}
	if res == nil {
		return nil, fmt.Errorf("call %s on %s: empty result", tool, name)
	}
	if res.IsError {
		stats.Counter("tool_call.errors").Inc(1)
		return nil, &ToolExecutionError{Name: name, Tool: tool, Message: ResultText(res)}
	}
	return res, nil
}

// ListTools returns the cached catalog without touching the transport.
func (m *Manager) ListTools(name string) ([]ToolDescriptor, error) {
	c, ok := m.lookup(name)
	if !ok {
		return nil, &NotConnectedError{Name: name}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.catalog == nil {
		return nil, &NotConnectedError{Name: name, State: c.state}
	}
	return c.catalog.Tools(), nil
}

// GetConnectionStatus returns the cached status of one server.
func (m *Manager) GetConnectionStatus(name string) (Status, bool) {
	c, ok := m.lookup(name)
	if !ok {
		return Status{}, false
	}
	return c.status(), true
}

// GetAllConnectionStatuses returns the status of every known server, sorted by name.
func (m *Manager) GetAllConnectionStatuses() []Status {
	m.connsMu.Lock()
	conns := make([]*serverConn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.connsMu.Unlock()

	statuses := make([]Status, 0, len(conns))
	for _, c := range conns {
		statuses = append(statuses, c.status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Sync reconciles the manager with servers: unknown names are removed,
// changed configurations reconnect, the rest connect if not yet Connected.
// Servers are handled concurrently.
func (m *Manager) Sync(servers []ServerConfig) error {
	want := make(map[string]ServerConfig, len(servers))
	for _, cfg := range servers {
		want[cfg.Name] = cfg
	}

	var errs []error
	for _, s := range m.GetAllConnectionStatuses() {
		if _, keep := want[s.Name]; !keep {
			if err := m.Remove(s.Name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
	)
	for _, cfg := range want {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var err error
			c, exists := m.lookup(cfg.Name)
			if exists && c.config().Command != "" && !c.config().Equal(cfg) {
				slog.Info("server configuration changed", "server", cfg.Name)
				err = m.Reconnect(cfg.Name, cfg)
			} else {
				err = m.Connect(cfg)
			}
			if err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Shutdown stops background work and closes every transport.
func (m *Manager) Shutdown() {
	m.cancel()

	m.connsMu.Lock()
	conns := make([]*serverConn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.connsMu.Unlock()

	for _, c := range conns {
		c.opMu.Lock()
		m.disconnectLocked(c)
		c.opMu.Unlock()
	}
	slog.Info("connection manager shutdown complete", "connections", len(conns))
}

func (m *Manager) reportConnected() {
	connected := 0
	for _, s := range m.GetAllConnectionStatuses() {
		if s.State == StateConnected {
			connected++
		}
	}
	m.stats.Gauge("connections.connected").Update(float64(connected))
}

// --- serverConn state, all guarded by mu ---

// setState applies a transition if the table allows it. Caller holds mu.
func (c *serverConn) setState(to State) {
	if !CanTransition(c.state, to) {
		slog.Error("invalid connection state transition", "server", c.name, "from", c.state, "to", to)
		return
	}
	c.state = to
}

func (c *serverConn) getState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *serverConn) config() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// beginConnect enters Connecting with a fresh retry budget and returns any
// transport left over from a failed health check.
func (c *serverConn) beginConnect(cfg ServerConfig) Transport {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := c.transport
	c.transport = nil
	c.catalog = nil
	c.cfg = cfg
	c.retryCount = 0
	c.lastError = nil
	c.setState(StateConnecting)
	return stale
}

func (c *serverConn) attemptFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount++
	c.lastError = err
}

func (c *serverConn) established(t Transport, catalog *ToolCatalog, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
	c.catalog = catalog
	c.retryCount = 0
	c.lastError = nil
	c.connectedAt = now
	c.lastChecked = now
	c.setState(StateConnected)
}

func (c *serverConn) failConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = err
	c.setState(StateFailed)
}

// reset returns the record to Disconnected and hands back the transport to close.
func (c *serverConn) reset() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.transport
	c.transport = nil
	c.catalog = nil
	c.retryCount = 0
	c.lastError = nil
	c.lastChecked = time.Time{}
	c.connectedAt = time.Time{}
	c.setState(StateDisconnected)
	return t
}

func (c *serverConn) currentTransport() (Transport, State) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport, c.state
}

func (c *serverConn) liveTransport() (Transport, State) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected {
		return nil, c.state
	}
	return c.transport, c.state
}

// recordHealth stores a health check result. It reports false when t is no longer
// the current transport, in which case nothing is recorded.
func (c *serverConn) recordHealth(t Transport, err error, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != t {
		return false
	}
	if err != nil {
		// The transport stays for beginConnect to close; the catalog is
		// only served while Connected.
		c.catalog = nil
		c.lastError = err
		c.setState(StateFailed)
		return true
	}
	c.lastChecked = now
	return true
}

func (c *serverConn) status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		Name:        c.name,
		State:       c.state,
		RetryCount:  c.retryCount,
		LastChecked: c.lastChecked,
		ConnectedAt: c.connectedAt,
		ToolCount:   c.catalog.Len(),
	}
	if c.lastError != nil {
		s.LastError = c.lastError.Error()
	}
	return s
}
