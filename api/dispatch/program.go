package dispatch

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// CallMsg carries a posted function into a bubbletea program.
// Models pass every message to Handle in their Update method.
type CallMsg struct {
	fn func()
}

// Handle runs msg if it is a CallMsg and reports whether it was one.
func Handle(msg tea.Msg) bool {
	call, ok := msg.(CallMsg)
	if !ok {
		return false
	}

	if call.fn != nil {
		call.fn()
	}

	return true
}

// Sender is the part of *tea.Program used to deliver messages.
type Sender interface {
	Send(msg tea.Msg)
}

// Program posts functions onto a bubbletea program's update loop.
// tea.Program.Send blocks until the program reads the message, so posted
// functions are buffered and forwarded in order by a pump goroutine.
type Program struct {
	sender Sender
	loop   *Loop
	cancel context.CancelFunc
}

// NewProgram starts forwarding posted functions to p.
func NewProgram(p Sender) *Program {
	ctx, cancel := context.WithCancel(context.Background())

	pr := &Program{
		sender: p,
		loop:   NewLoop(),
		cancel: cancel,
	}
	go func() {
		_ = pr.loop.Run(ctx)
	}()

	return pr
}

// Post schedules fn on the program's update loop.
func (p *Program) Post(fn func()) {
	if fn == nil {
		return
	}

	p.loop.Post(func() {
		p.sender.Send(CallMsg{fn: fn})
	})
}

// Close stops forwarding. Functions posted afterwards are dropped.
func (p *Program) Close() {
	p.loop.Close()
	p.cancel()
}
