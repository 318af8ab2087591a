// Package notify delivers operator alerts: to the log always, and to
// Telegram chats when configured.
package notify

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aatumaykin/leadbot/internal/logger"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one health finding.
type Alert struct {
	Kind     string            `json:"kind" yaml:"kind"`
	Severity Severity          `json:"severity" yaml:"severity"`
	Message  string            `json:"message" yaml:"message"`
	At       time.Time         `json:"at" yaml:"at"`
	Fields   map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	fields := []logger.Field{
		{Key: "alert", Value: a.Kind},
		{Key: "severity", Value: string(a.Severity)},
	}
	for _, k := range sortedKeys(a.Fields) {
		fields = append(fields, logger.Field{Key: k, Value: a.Fields[k]})
	}
	if a.Severity == SeverityCritical {
		n.log.ErrorCtx(ctx, a.Message, nil, fields...)
	} else {
		n.log.WarnCtx(ctx, a.Message, fields...)
	}
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
