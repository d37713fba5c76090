package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latchql/latch/internal/ir"
)

// readyPollInterval is how often WaitUntilReady re-checks state while
// a connection is still being established.
const readyPollInterval = 5 * time.Millisecond

// Config collects every option a Client may be constructed with.
type Config struct {
	AccountID            string
	Version              string
	Servers              []string
	DiscoveryURL         string
	DiscoveryTTLSeconds  int
	PreventUnload        bool
	VersionChangeHandler func(newVersion string)
	JSONReviver          func(ir.IRValue) any
	Dial                 Dialer
}

// Option configures a Client at construction time.
type Option func(*Config)

func WithAccountID(id string) Option            { return func(c *Config) { c.AccountID = id } }
func WithVersion(v string) Option               { return func(c *Config) { c.Version = v } }
func WithServers(servers []string) Option       { return func(c *Config) { c.Servers = servers } }
func WithPreventUnload(prevent bool) Option     { return func(c *Config) { c.PreventUnload = prevent } }
func WithVersionChangeHandler(fn func(string)) Option {
	return func(c *Config) { c.VersionChangeHandler = fn }
}
func WithJSONReviver(fn func(ir.IRValue) any) Option { return func(c *Config) { c.JSONReviver = fn } }
func WithDiscoveryURL(url string, ttlSeconds int) Option {
	return func(c *Config) { c.DiscoveryURL = url; c.DiscoveryTTLSeconds = ttlSeconds }
}
func WithDialer(d Dialer) Option { return func(c *Config) { c.Dial = d } }

// Client is one logical session to the server: a single connection at
// a time, a state machine governing what may be done with it, and the
// request table its in-flight calls are tracked through. All mutation
// happens under a single mutex - a Client has no separate writer
// goroutine, unlike the tenant runtime's batch-serial tick loop, since
// a browser or CLI caller drives it directly from whatever goroutine
// issues a call.
type Client struct {
	mu    sync.Mutex
	cfg   Config
	state State

	discovery   *Discovery
	requests    *RequestTable
	connectedAt int64
	transport   *transport
}

// New constructs a Client in the NotConnected state. It does not dial
// anything - call Connect to begin the handshake.
func New(opts ...Option) *Client {
	cfg := Config{DiscoveryTTLSeconds: 60, Dial: DialWebsocket}
	for _, opt := range opts {
		opt(&cfg)
	}

	var discovery *Discovery
	if len(cfg.Servers) > 0 {
		discovery = NewDiscovery(cfg.Servers, "", 0)
	} else if cfg.DiscoveryURL != "" {
		discovery = NewDiscovery(nil, cfg.DiscoveryURL, time.Duration(cfg.DiscoveryTTLSeconds)*time.Second)
	}

	c := &Client{cfg: cfg, state: NotConnected, discovery: discovery}
	register(c)
	return c
}

// Status returns the client's current connection state.
func (c *Client) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(next State) error {
	if err := Transition(c.state, next); err != nil {
		return err
	}
	c.state = next
	return nil
}

// Connect begins the connection handshake: resolving a server from
// discovery, opening the transport, and transitioning through
// Connecting to Open. It returns once the transport is open; it does
// not wait for WaitUntilReady's barrier.
func (c *Client) Connect(ctx context.Context, nowMillis int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setState(Connecting); err != nil {
		return err
	}

	if c.discovery == nil {
		_ = c.setState(NotConnected)
		return fmt.Errorf("no server list or discovery URL configured")
	}
	servers, err := c.discovery.Servers(ctx)
	if err != nil {
		_ = c.setState(NotConnected)
		return fmt.Errorf("resolving servers: %w", err)
	}
	if len(servers) == 0 {
		_ = c.setState(NotConnected)
		return fmt.Errorf("no servers available")
	}

	conn, err := c.cfg.Dial(ctx, servers[0])
	if err != nil {
		_ = c.setState(NotConnected)
		return fmt.Errorf("dialing %s: %w", servers[0], err)
	}

	c.connectedAt = nowMillis
	c.requests = NewRequestTable(nowMillis)
	c.transport = newTransport(conn, c.onFrame, c.onTransportDone)
	return c.setState(Open)
}

// onFrame routes one decoded inbound frame to its pending request.
// Frames with no matching pending request are dropped - a response to
// a request this client already drained on close, or a stray retry,
// neither of which the caller can still act on.
func (c *Client) onFrame(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.requests == nil {
		return
	}

	switch f.Command {
	case CommandClose:
		c.requests.Reject(f.ID, fmt.Errorf("server closed request %d: %s", f.ID, f.Args))
	default:
		value, err := ir.UnmarshalIRValue([]byte(f.Args))
		if err != nil {
			c.requests.Reject(f.ID, fmt.Errorf("decoding frame %d payload: %w", f.ID, err))
			return
		}
		c.requests.Resolve(f.ID, value)
	}
}

// onTransportDone runs once the read loop exits, whether from a
// network error or an orderly close initiated by Close. It drains
// whatever is still pending and drops the session back to
// NotConnected so a future Connect can redial.
func (c *Client) onTransportDone(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.requests != nil {
		c.requests.Drain(err)
	}
	if c.state != Closed && c.state != NotConnected {
		_ = c.setState(Closing)
		_ = c.setState(NotConnected)
	}
}

// Call sends one frame over the open transport. The caller is
// responsible for having registered the frame's id with BeginRequest
// first, so the eventual response has somewhere to resolve to.
func (c *Client) Call(f Frame) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	if t == nil {
		return fmt.Errorf("client has no open transport")
	}
	return t.Send(f)
}

// WaitUntilReady polls until the client reaches Open or Active, or ctx
// is cancelled. The 5ms interval is short enough that a caller issuing
// its first request immediately after Connect returns sees negligible
// added latency, while still yielding the goroutine between checks
// rather than busy-spinning.
func (c *Client) WaitUntilReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		switch c.Status() {
		case Open, Active:
			return nil
		case Closed, NotConnected:
			return fmt.Errorf("client reached %s while waiting to become ready", c.Status())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BeginRequest marks the client Active for the duration of one
// outstanding request and allocates its correlation id.
func (c *Client) BeginRequest(nowMillis int64, drain DrainPolicy, resolve func(ir.IRValue), reject func(error)) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Open {
		if err := c.setState(Active); err != nil {
			return 0, err
		}
	}

	id := c.requests.NextID(nowMillis)
	c.requests.Register(&PendingRequest{ID: id, Drain: drain, Resolve: resolve, Reject: reject})
	return id, nil
}

// EndRequest drops the client back to Open once no requests remain
// pending.
func (c *Client) EndRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.requests != nil && c.requests.Len() == 0 && c.state == Active {
		_ = c.setState(Open)
	}
}

// Close begins an orderly shutdown: pending requests are drained per
// their individual policy, then the client transitions to Closed. A
// client that is not connected goes straight to Closed.
func (c *Client) Close(closeErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return nil
	}
	if c.state != NotConnected {
		if err := c.setState(Closing); err != nil {
			return err
		}
	}
	if c.requests != nil {
		c.requests.Drain(closeErr)
	}
	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	unregister(c)
	return c.setState(Closed)
}

// onUnload is invoked once, by the global unload guard, when the host
// process signals it is about to exit. A client configured with
// PreventUnload closes immediately so its drain policies run before
// the process actually exits; one without it is left alone, since the
// caller has said it does not need an orderly shutdown.
func (c *Client) onUnload() {
	if c.cfg.PreventUnload {
		_ = c.Close(fmt.Errorf("client closed for process unload"))
	}
}
