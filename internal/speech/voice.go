// Package speech drives one listening session: speech events come in, match
// decisions, highlights and spoken prompts go out.
package speech

import (
	"fmt"
	"sync"
)

// Recognizer controls speech capture on the kiosk device.
type Recognizer interface {
	StartListening(lang string) error
	StopListening() error
	CancelListening() error
}

// Synthesizer controls speech output on the kiosk device.
type Synthesizer interface {
	Speak(text string) error
	StopSpeaking() error
}

// Coordinator keeps capture and synthesis from running at the same time.
// Starting one stops the other first.
type Coordinator struct {
	rec Recognizer
	syn Synthesizer

	mu        sync.Mutex
	listening bool
	speaking  bool
}

func NewCoordinator(rec Recognizer, syn Synthesizer) *Coordinator {
	return &Coordinator{rec: rec, syn: syn}
}

func (c *Coordinator) StartListening(lang string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speaking {
		if err := c.syn.StopSpeaking(); err != nil {
			return fmt.Errorf("failed to stop speech output: %w", err)
		}
		c.speaking = false
	}
	if err := c.rec.StartListening(lang); err != nil {
		return fmt.Errorf("failed to start listening: %w", err)
	}
	c.listening = true
	return nil
}

func (c *Coordinator) StopListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.listening {
		return nil
	}
	c.listening = false
	return c.rec.StopListening()
}

// CancelListening aborts capture and discards pending results.
func (c *Coordinator) CancelListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listening = false
	return c.rec.CancelListening()
}

func (c *Coordinator) Speak(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listening {
		if err := c.rec.StopListening(); err != nil {
			return fmt.Errorf("failed to stop listening: %w", err)
		}
		c.listening = false
	}
	if err := c.syn.Speak(text); err != nil {
		return fmt.Errorf("failed to speak: %w", err)
	}
	c.speaking = true
	return nil
}

func (c *Coordinator) StopSpeaking() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.speaking = false
	return c.syn.StopSpeaking()
}

// SpeechDone records that the device finished speaking.
func (c *Coordinator) SpeechDone() {
	c.mu.Lock()
	c.speaking = false
	c.mu.Unlock()
}

// SpeechStarted records that the device started speaking on its own.
func (c *Coordinator) SpeechStarted() {
	c.mu.Lock()
	c.speaking = true
	c.mu.Unlock()
}

func (c *Coordinator) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}
