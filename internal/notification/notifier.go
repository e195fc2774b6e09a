// Package notification delivers risk findings, recommendations, and
// position lifecycle alerts to external channels (log, Telegram, webhooks).
//
// Alert delivery must never run inside the ledger or risk engine critical
// sections; callers compute the alert under the lock and dispatch after
// releasing it.
package notification

import (
	"context"
	"log"
	"sort"
	"strings"
)

// Level represents the severity of an alert.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert represents a notification to be sent. Context carries structured
// key/value detail (asset, metric values, limits).
type Alert struct {
	Level   Level             `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// contextString renders alert context as "k=v" pairs in stable order.
func contextString(kv map[string]string) string {
	if len(kv) == 0 {
		return ""
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+kv[k])
	}
	return strings.Join(parts, " ")
}

// LogNotifier logs alerts (always wired; the development default).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	if kv := contextString(alert.Context); kv != "" {
		log.Printf("[notify] [%s] %s: %s (%s)", alert.Level, alert.Title, alert.Message, kv)
	} else {
		log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	}
	return nil
}

// Multi fans an alert out to several backends. Delivery is best-effort:
// one failing backend does not stop the others.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, n := range m.backends {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend delivery failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
