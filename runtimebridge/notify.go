package runtimebridge

// Notification methods pushed to UI consumers.
const (
	NotifySubjectsChanged  = "livelink/subjectsChanged"
	NotifyConnectionStatus = "livelink/connectionStatus"
)

// NotificationSender pushes a notification to every UI consumer. It reports
// whether anyone received it.
type NotificationSender func(method string, params map[string]any) bool

func (b *Bridge) notify(method string, params map[string]any) {
	if b.sender == nil {
		return
	}
	if !b.sender(method, params) {
		b.log.Debug("Notification had no receivers", "method", method)
	}
}
