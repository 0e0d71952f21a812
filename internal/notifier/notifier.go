package notifier

import "riptide/internal/logger"

// TextNotifier receives fire-and-forget trade notifications. Kept minimal so
// the engine never depends on a concrete delivery channel.
type TextNotifier interface {
	SendText(text string) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func (LogNotifier) SendText(text string) error {
	logger.Infof("notify: %s", text)
	return nil
}

// Multi fans a notification out to several notifiers, logging failures and
// never returning them: notifications are not part of the control flow.
type Multi []TextNotifier

func (m Multi) SendText(text string) error {
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendText(text); err != nil {
			logger.Warnf("notify: delivery failed: %v", err)
		}
	}
	return nil
}
