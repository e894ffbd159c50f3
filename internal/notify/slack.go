package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts pass summaries to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewSlackNotifier creates a notifier for webhookURL
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// statusEmoji prefixes the header line
func statusEmoji(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return ":white_check_mark:"
	case NotifyWarning:
		return ":warning:"
	case NotifyError:
		return ":x:"
	default:
		return ":information_source:"
	}
}

// slackMessage lays n out as a header, one line per repository and a footer
func slackMessage(n Notification) slackPayload {
	header := statusEmoji(n.Type) + " " + n.Title
	p := slackPayload{
		Text:   header,
		Blocks: []slackBlock{{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*" + header + "*"}}},
	}

	if n.Message != "" {
		var b strings.Builder
		for _, line := range strings.Split(n.Message, "\n") {
			fmt.Fprintf(&b, "• `%s`\n", line)
		}
		p.Blocks = append(p.Blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: strings.TrimRight(b.String(), "\n")}})
	}

	var footer []slackText
	if n.Reference != "" {
		footer = append(footer, slackText{Type: "mrkdwn", Text: "briefing " + n.Reference})
	}
	if n.ReportPath != "" {
		footer = append(footer, slackText{Type: "mrkdwn", Text: "report " + n.ReportPath})
	}
	if len(footer) > 0 {
		p.Blocks = append(p.Blocks, slackBlock{Type: "context", Elements: footer})
	}
	return p
}

// Send posts n. An empty webhook URL disables the notifier.
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(slackMessage(n))
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
