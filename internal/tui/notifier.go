package tui

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
)

// Interactive reports whether w is a terminal the spinner can draw on.
func Interactive(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Notifier forwards sensor progress to a running bubbletea program.
type Notifier struct {
	program *tea.Program
	cancel  context.CancelFunc

	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	final Model
	err   error
}

var _ operator.PokeNotifier = (*Notifier)(nil)

// Start runs a program for model in the background. cancel is called when
// the user interrupts the program with ctrl+c.
func Start(model Model, cancel context.CancelFunc, opts ...tea.ProgramOption) *Notifier {
	n := &Notifier{
		program: tea.NewProgram(model, opts...),
		cancel:  cancel,
		done:    make(chan struct{}),
		final:   model,
	}
	go n.run()
	return n
}

func (n *Notifier) run() {
	defer close(n.done)
	final, err := n.program.Run()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
	if m, ok := final.(Model); ok {
		n.final = m
		if m.cancelled && n.cancel != nil {
			n.cancel()
		}
	}
}

// Poke implements operator.PokeNotifier.
func (n *Notifier) Poke(taskID string, attempt int, next time.Duration) {
	n.program.Send(PokeMsg{TaskID: taskID, Attempt: attempt, Next: next})
}

// Done implements operator.PokeNotifier.
func (n *Notifier) Done(taskID string, met bool) {
	n.program.Send(DoneMsg{TaskID: taskID, Met: met})
}

// Stop ends the program if it is still running and waits for it to exit.
func (n *Notifier) Stop() error {
	n.once.Do(func() {
		n.program.Send(tea.QuitMsg{})
	})
	return n.Wait()
}

// Wait blocks until the program exits.
func (n *Notifier) Wait() error {
	<-n.done
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Model is the program's last model, valid after Wait returns.
func (n *Notifier) Model() Model {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.final
}
