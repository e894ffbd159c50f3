// Package notify sends pass summaries to people watching the orchestrator.
package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hochfrequenz/squad-orchestrator/internal/config"
	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// NotificationType is the severity of a notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification is one pass summary. Message holds one line per repository.
type Notification struct {
	Title      string
	Message    string
	Type       NotificationType
	Reference  string // short briefing hash
	ReportPath string
}

// Notifier delivers notifications
type Notifier interface {
	Send(n Notification) error
}

// New builds the notifiers enabled in cfg
func New(cfg config.NotificationsConfig) Notifier {
	var all Fanout
	if cfg.Desktop {
		all = append(all, NewDesktopNotifier(true))
	}
	if cfg.SlackWebhook != "" {
		all = append(all, NewSlackNotifier(cfg.SlackWebhook))
	}
	switch len(all) {
	case 0:
		return NoopNotifier{}
	case 1:
		return all[0]
	}
	return all
}

// FromReport summarizes a finished pass. Any blocked repository makes it an error.
func FromReport(r *domain.Report, reportPath string) Notification {
	done, blocked, skipped := r.Counts()

	typ := NotifySuccess
	switch {
	case blocked > 0:
		typ = NotifyError
	case done == 0:
		typ = NotifyInfo
	}

	lines := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("%s [%s] %s", o.Repo, o.Task, o.Status)
		if o.Status == domain.StatusBlocked && o.Reason != "" {
			line += ": " + o.Reason
		}
		lines = append(lines, line)
	}

	ref := r.BriefingHash
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return Notification{
		Title:      fmt.Sprintf("squad-orch %s: %d done, %d blocked, %d skipped", r.Mode, done, blocked, skipped),
		Message:    strings.Join(lines, "\n"),
		Type:       typ,
		Reference:  ref,
		ReportPath: reportPath,
	}
}

// Fanout sends to every notifier in order and joins their errors
type Fanout []Notifier

func (f Fanout) Send(n Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier discards notifications
type NoopNotifier struct{}

func (NoopNotifier) Send(Notification) error { return nil }
