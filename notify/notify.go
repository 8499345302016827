package notify

import (
	"log/slog"
	"time"

	"github.com/gregdel/pushover"
)

// Notifier raises operator-facing alerts for conditions a headless screen
// cannot surface on its own, like a checkin failure streak or a missing
// player binary.
type Notifier interface {
	Alert(title string, message string)
}

// New returns a Pushover-backed notifier, or a no-op one when either
// credential is absent so alerting stays strictly optional.
func New(token, recipient string) Notifier {
	if token == "" || recipient == "" {
		return noop{}
	}
	return &pushoverNotifier{
		app:       pushover.New(token),
		recipient: pushover.NewRecipient(recipient),
	}
}

type pushoverNotifier struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
}

func (n *pushoverNotifier) Alert(title string, message string) {
	msg := &pushover.Message{
		Message:   message,
		Title:     title,
		Priority:  pushover.PriorityHigh,
		Timestamp: time.Now().Unix(),
	}
	if _, err := n.app.SendMessage(msg, n.recipient); err != nil {
		slog.Error("Failed to deliver alert",
			slog.String("stack", err.Error()),
			slog.String("title", title),
		)
	}
}

type noop struct{}

func (noop) Alert(string, string) {}
