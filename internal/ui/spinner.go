package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for steps that run before the
// room view takes over the terminal.
type Spinner struct {
	out      io.Writer
	frames   []string
	interval time.Duration

	mu      sync.Mutex
	message string
	started bool
	stopped bool
	done    chan struct{}
	exited  chan struct{}
}

func newSpinner(out io.Writer, s spinner.Spinner, message string) *Spinner {
	return &Spinner{
		out:      out,
		frames:   s.Frames,
		interval: s.FPS,
		message:  message,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// NewConnectionSpinner spins a globe while talking to the network.
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(os.Stdout, spinner.Globe, message)
}

// NewWaitingSpinner spins while waiting on local devices.
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(os.Stdout, spinner.Points, message)
}

func (s *Spinner) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.exited)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), s.message)
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.done)
	s.mu.Unlock()

	if started {
		<-s.exited
	}
	fmt.Fprint(s.out, "\r\033[K")
}

func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}

// RunConnectionSpinner starts a connection spinner and returns its stop func.
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}
