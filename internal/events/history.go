package events

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/netmuxd/internal/history"
)

// historyTimeout bounds each database write.
const historyTimeout = 5 * time.Second

// HistoryRecorder opens a session row when a device attaches and closes it
// when the device detaches.
type HistoryRecorder struct {
	repo   history.Repository
	logger Logger
}

// NewHistoryRecorder creates a sink recording into repo.
func NewHistoryRecorder(repo history.Repository, logger Logger) *HistoryRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistoryRecorder{repo: repo, logger: logger}
}

// Handle records attach and detach events; other kinds are ignored.
func (h *HistoryRecorder) Handle(ev Event) {
	switch ev.Kind {
	case KindDeviceAttached:
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		s := &history.Session{
			Serial:      ev.Serial,
			ServiceName: ev.ServiceName,
			AttachedAt:  ev.At,
		}
		if len(ev.Addresses) > 0 {
			s.Address = ev.Addresses[0]
		}
		if err := h.repo.Open(ctx, s); err != nil {
			h.logger.Error("failed to record session start", "serial", ev.Serial, "error", err)
			return
		}
		h.logger.Debug("session opened", "serial", ev.Serial, "session", s.ID)

	case KindDeviceDetached:
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		err := h.repo.Close(ctx, ev.Serial, ev.At, history.ReasonDetached)
		switch {
		case errors.Is(err, history.ErrNoOpenSession):
			h.logger.Warn("detach without open session", "serial", ev.Serial)
		case err != nil:
			h.logger.Error("failed to record session end", "serial", ev.Serial, "error", err)
		}
	}
}
