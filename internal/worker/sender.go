package worker

import (
	"log/slog"

	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/session"
	"github.com/RepairMe/extension/pkg/core"
)

// Sender forwards published snapshots to the dispatcher as :RECORD: events.
// It implements channel.Sender so the notify handler can fan out to it.
type Sender struct {
	d       *dispatcher.Dispatcher
	session *session.Context
	logger  *slog.Logger
}

// NewSender creates a sender. Snapshots published outside a session are
// not forwarded.
func NewSender(d *dispatcher.Dispatcher, sessionCtx *session.Context, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{d: d, session: sessionCtx, logger: logger}
}

// Send dispatches s without blocking the publishing loop.
func (s *Sender) Send(snap *core.Snapshot) {
	if _, ok := s.session.Current(); !ok {
		return
	}
	_, err := s.d.Dispatch(dispatcher.Event{
		Command:   CommandRecord,
		Timestamp: snap.CapturedAt(),
		Payload:   snap,
	})
	if err != nil {
		s.logger.Warn("snapshot not recorded", "error", err)
	}
}
