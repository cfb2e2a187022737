// Package call owns the lifecycle of one outbound AI call: the state
// machine, the provider adapter it instantiates, the audio relay between the
// telephony leg and the provider, and the terminal outcome report.
package call

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/NutaEnjoyer/halomax/internal/interrupt"
	"github.com/NutaEnjoyer/halomax/internal/provider"
	"github.com/NutaEnjoyer/halomax/internal/transcript"
	"github.com/NutaEnjoyer/halomax/internal/webhook"
)

// DefaultSettleDelay is the fallback pause before the greeting when the
// telephony leg exposes no explicit media-ready signal.
const DefaultSettleDelay = time.Second

// TelephonyError reports a failure of the telephony collaborator. Terminal
// for the call; there is no retry of an in-progress session.
type TelephonyError struct {
	Reason string
}

func (e *TelephonyError) Error() string { return "telephony: " + e.Reason }

// Telephony places and releases outbound call legs. Implementations are
// opaque: signaling and media transport details never reach this package.
type Telephony interface {
	Dial(ctx context.Context, callID, to, from string) (legID string, err error)
	Hangup(legID string) error
}

// MediaLeg is the bidirectional media handle of a connected call leg. Audio
// payloads are opaque base64 strings relayed without decoding.
type MediaLeg interface {
	// AudioIn streams caller audio payloads. The channel closes when the
	// leg's media stream ends.
	AudioIn() <-chan string
	WriteAudio(payload string) error
	// ClearPlayout drops any queued outbound audio on the leg.
	ClearPlayout() error
	// Ready is closed once the media path is confirmed established.
	Ready() <-chan struct{}
	Close() error
}

// Reporter delivers the terminal outcome artifact.
type Reporter interface {
	Deliver(ctx context.Context, baseURL string, o webhook.Outcome) error
}

// AdapterFactory builds the provider adapter chosen at session start.
type AdapterFactory func(name provider.Name, creds provider.Credentials) (provider.Adapter, error)

type eventKind int

const (
	evTelephonyConnected eventKind = iota
	evTelephonyDisconnected
	evTelephonyFailed
	evProvider
)

type event struct {
	kind   eventKind
	leg    MediaLeg
	reason string
	pev    provider.Event
}

// Controller is the per-session state machine. Each session runs one event
// loop goroutine; all lifecycle mutations happen there. Nothing is shared
// between concurrent sessions.
type Controller struct {
	cfg         CallConfig
	tel         Telephony
	newAdapter  AdapterFactory
	reporter    Reporter
	settleDelay time.Duration

	evts chan event
	done chan struct{}

	// loop-owned, never touched outside the event loop
	leg     MediaLeg
	adapter provider.Adapter
	intr    *interrupt.Controller
	acc     *transcript.Accumulator

	mu           sync.Mutex
	state        State
	legID        string
	connectedAt  time.Time
	terminatedAt time.Time
}

// Option tweaks controller construction.
type Option func(*Controller)

// WithSettleDelay overrides the greeting fallback delay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// NewController builds a controller for one call. Nothing happens until Start.
func NewController(cfg CallConfig, tel Telephony, factory AdapterFactory, reporter Reporter, opts ...Option) *Controller {
	c := &Controller{
		cfg:         cfg,
		tel:         tel,
		newAdapter:  factory,
		reporter:    reporter,
		settleDelay: DefaultSettleDelay,
		evts:        make(chan event, 64),
		done:        make(chan struct{}),
		state:       StateNew,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the immutable session config.
func (c *Controller) Config() CallConfig { return c.cfg }

// Done is closed when the session has fully terminated and released its
// resources.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Start validates the config and places the outbound call leg. A malformed
// config returns *ConfigError: no state transition happens, no call is
// placed and the reporter never fires. Any later failure is delivered
// asynchronously through the event loop.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	c.setState(StateInitiating)
	go c.run(ctx)

	legID, err := c.tel.Dial(ctx, c.cfg.CallID, c.cfg.Phone, c.cfg.CallerID)
	if err != nil {
		c.OnTelephonyFailure("dial: " + err.Error())
		return nil
	}
	c.mu.Lock()
	c.legID = legID
	c.mu.Unlock()
	log.Printf("call %s: dialing %s (leg %s)", c.cfg.CallID, c.cfg.Phone, legID)
	return nil
}

// OnTelephonyConnected hands over the connected media leg.
func (c *Controller) OnTelephonyConnected(leg MediaLeg) {
	c.push(event{kind: evTelephonyConnected, leg: leg})
}

// OnTelephonyDisconnected signals the remote side hung up.
func (c *Controller) OnTelephonyDisconnected() {
	c.push(event{kind: evTelephonyDisconnected})
}

// OnTelephonyFailure signals the leg could not be established or broke.
func (c *Controller) OnTelephonyFailure(reason string) {
	c.push(event{kind: evTelephonyFailed, reason: reason})
}

func (c *Controller) push(ev event) {
	select {
	case <-c.done:
	case c.evts <- ev:
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	log.Printf("call %s: %s -> %s", c.cfg.CallID, prev, s)
}

// run is the session event loop. Handlers return quickly; audio relay runs
// on side goroutines so the loop is never starved.
func (c *Controller) run(ctx context.Context) {
	terminal := StateFailed
	defer func() { c.teardown(terminal) }()

	for {
		select {
		case <-ctx.Done():
			c.setState(StateFailed)
			return
		case ev := <-c.evts:
			switch ev.kind {
			case evTelephonyConnected:
				if c.State() != StateInitiating {
					continue
				}
				if err := c.connectProvider(ctx, ev.leg); err != nil {
					log.Printf("call %s: %v", c.cfg.CallID, err)
					c.setState(StateFailed)
					return
				}
			case evTelephonyDisconnected:
				c.setState(StateDisconnecting)
				c.setState(StateTerminated)
				terminal = StateTerminated
				return
			case evTelephonyFailed:
				log.Printf("call %s: %v", c.cfg.CallID, &TelephonyError{Reason: ev.reason})
				c.setState(StateFailed)
				return
			case evProvider:
				if done := c.handleProviderEvent(ev.pev); done {
					return
				}
			}
		}
	}
}

// connectProvider drives Connecting -> Active: one adapter per session,
// chosen once, then the audio relay and the greeting.
func (c *Controller) connectProvider(ctx context.Context, leg MediaLeg) error {
	c.setState(StateConnecting)
	c.leg = leg

	adapter, err := c.newAdapter(c.cfg.Provider, c.cfg.Credentials)
	if err != nil {
		return &provider.ConnectError{Provider: c.cfg.Provider, Err: err}
	}
	if err := adapter.Connect(ctx); err != nil {
		return err
	}
	if err := adapter.ConfigureSession(c.cfg.SessionParams()); err != nil {
		// the socket is already up at this point and teardown does not
		// know this adapter yet
		_ = adapter.Close()
		return &provider.ConnectError{Provider: c.cfg.Provider, Err: err}
	}
	c.adapter = adapter
	c.intr = interrupt.New(adapter)
	mode := transcript.Delta
	if adapter.Mode() == provider.DirectTranscripts {
		mode = transcript.Direct
	}
	c.acc = transcript.NewAccumulator(mode)

	c.setState(StateActive)
	c.mu.Lock()
	c.connectedAt = time.Now()
	c.mu.Unlock()

	go c.relayCallerAudio(leg, adapter)
	go c.relayProviderEvents(leg, adapter)
	go c.greetAfterSettle(leg, adapter)
	return nil
}

// relayCallerAudio forwards caller payloads to the provider untouched.
func (c *Controller) relayCallerAudio(leg MediaLeg, adapter provider.Adapter) {
	for {
		select {
		case <-c.done:
			return
		case payload, ok := <-leg.AudioIn():
			if !ok {
				return
			}
			if err := adapter.SendAudio(payload); err != nil {
				log.Printf("call %s: relay audio to provider: %v", c.cfg.CallID, err)
				return
			}
		}
	}
}

// relayProviderEvents forwards synthesized audio straight to the leg and
// routes everything else into the event loop.
func (c *Controller) relayProviderEvents(leg MediaLeg, adapter provider.Adapter) {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-adapter.Events():
			if !ok {
				return
			}
			if ev.Type == provider.EventAudioOut {
				if err := leg.WriteAudio(ev.Audio); err != nil {
					log.Printf("call %s: relay audio to leg: %v", c.cfg.CallID, err)
				}
				continue
			}
			c.push(event{kind: evProvider, pev: ev})
		}
	}
}

// greetAfterSettle sends the scripted greeting once the media path is
// confirmed, falling back to a fixed settle delay when the leg reports no
// readiness signal.
func (c *Controller) greetAfterSettle(leg MediaLeg, adapter provider.Adapter) {
	select {
	case <-c.done:
		return
	case <-leg.Ready():
	case <-time.After(c.settleDelay):
	}
	if err := adapter.SendGreeting(c.cfg.Greeting); err != nil {
		log.Printf("call %s: send greeting: %v", c.cfg.CallID, err)
	}
}

// handleProviderEvent mutates the session from one canonical provider event.
// It reports true when the event is terminal for the loop.
func (c *Controller) handleProviderEvent(ev provider.Event) bool {
	switch ev.Type {
	case provider.EventUserPartialText:
		c.acc.AddFragment(transcript.RoleUser, ev.Text)
	case provider.EventAgentPartialText:
		c.acc.AddFragment(transcript.RoleAgent, ev.Text)
	case provider.EventUserFinalText:
		c.commit(transcript.RoleUser, ev.Text)
	case provider.EventAgentFinalText:
		c.commit(transcript.RoleAgent, ev.Text)
	case provider.EventSpeechStarted:
		c.intr.OnSpeechStarted()
		if err := c.leg.ClearPlayout(); err != nil {
			log.Printf("call %s: clear leg playout: %v", c.cfg.CallID, err)
		}
	case provider.EventEndCallRequested:
		log.Printf("call %s: provider requested hangup", c.cfg.CallID)
		c.setState(StateDisconnecting)
		c.mu.Lock()
		legID := c.legID
		c.mu.Unlock()
		if err := c.tel.Hangup(legID); err != nil {
			log.Printf("call %s: hangup: %v", c.cfg.CallID, err)
		}
		// the telephony disconnect event completes the transition
	case provider.EventSocketError:
		log.Printf("call %s: %v", c.cfg.CallID, ev.Err)
		c.setState(StateFailed)
		return true
	}
	return false
}

func (c *Controller) commit(role transcript.Role, text string) {
	if c.acc.Mode() == transcript.Direct {
		c.acc.CommitText(role, text)
		return
	}
	c.acc.Commit(role)
}

// teardown releases the adapter and the telephony leg unconditionally, then
// reports the outcome exactly once. Delivery failure is logged and swallowed.
func (c *Controller) teardown(terminal State) {
	c.mu.Lock()
	c.terminatedAt = time.Now()
	connectedAt := c.connectedAt
	terminatedAt := c.terminatedAt
	legID := c.legID
	c.mu.Unlock()

	if c.adapter != nil {
		_ = c.adapter.Close()
	}
	if c.leg != nil {
		_ = c.leg.Close()
	}
	if legID != "" && terminal == StateFailed {
		// best effort: make sure a failed session never leaves a live leg
		_ = c.tel.Hangup(legID)
	}
	close(c.done)

	duration := 0
	if !connectedAt.IsZero() {
		duration = int(terminatedAt.Sub(connectedAt).Seconds())
	}
	status := webhook.StatusFailed
	if terminal == StateTerminated {
		status = webhook.StatusCompleted
	}
	var turns []transcript.Turn
	if c.acc != nil {
		turns = c.acc.Turns()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := c.reporter.Deliver(ctx, c.cfg.WebhookURL, webhook.Outcome{
		CallID:          c.cfg.CallID,
		Phone:           c.cfg.Phone,
		DurationSeconds: duration,
		Turns:           turns,
		Status:          status,
	})
	if err != nil {
		log.Printf("call %s: %v", c.cfg.CallID, err)
	}
}
