// Package interrupt cancels in-flight synthesized speech when the caller
// starts talking over the agent.
package interrupt

import "log"

// AudioCanceller clears the provider's output audio buffer.
type AudioCanceller interface {
	Interrupt() error
}

// Controller reacts to speech-started events with exactly one buffer-clear
// command each. Fire-and-forget: it never waits for acknowledgment and never
// touches session state. There is no debouncing; a burst of N events yields
// N clear commands.
type Controller struct {
	target AudioCanceller
	clears int
}

// New wires the controller to the active provider adapter.
func New(target AudioCanceller) *Controller {
	return &Controller{target: target}
}

// OnSpeechStarted issues one clear command. Errors are logged only; the
// event loop must not stall on the adapter.
func (c *Controller) OnSpeechStarted() {
	c.clears++
	if err := c.target.Interrupt(); err != nil {
		log.Printf("interrupt: clear output buffer: %v", err)
	}
}

// Clears reports how many clear commands have been issued.
func (c *Controller) Clears() int { return c.clears }
