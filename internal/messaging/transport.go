package messaging

import "context"

// Transport moves formatted text to a worker.
type Transport interface {
	IsAvailable(ctx context.Context, target string) bool
	Send(ctx context.Context, target, text string) error
}

// SessionKeys is the part of the tmux controller TmuxTransport needs.
type SessionKeys interface {
	HasSession(ctx context.Context, name string) bool
	SendKeys(ctx context.Context, target, keys string, enter bool) error
}

// TmuxTransport delivers by typing into the target's session and submitting.
type TmuxTransport struct {
	sessions SessionKeys
}

// NewTmuxTransport wraps a tmux controller.
func NewTmuxTransport(sessions SessionKeys) *TmuxTransport {
	return &TmuxTransport{sessions: sessions}
}

func (t *TmuxTransport) IsAvailable(ctx context.Context, target string) bool {
	return t.sessions.HasSession(ctx, target)
}

func (t *TmuxTransport) Send(ctx context.Context, target, text string) error {
	return t.sessions.SendKeys(ctx, target, text, true)
}
