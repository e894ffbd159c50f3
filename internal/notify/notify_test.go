package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hochfrequenz/squad-orchestrator/internal/config"
	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

func sampleReport() *domain.Report {
	return &domain.Report{
		BriefingHash: "3f2a9c1d0000",
		Mode:         domain.ModeRun,
		Outcomes: []domain.RunOutcome{
			{Repo: "auraxis-api", Task: domain.ResolvedTask{ID: "B8", Source: domain.SourceExplicit}, Status: domain.StatusDone},
			{Repo: "auraxis-web", Task: domain.ResolvedTask{Source: domain.SourceUnresolved}, Status: domain.StatusBlocked, Reason: "task unresolved"},
		},
	}
}

func TestFromReport(t *testing.T) {
	r := sampleReport()

	n := FromReport(r, "/tmp/report.md")
	if n.Type != NotifyError {
		t.Errorf("Type = %v, want NotifyError", n.Type)
	}
	if !strings.Contains(n.Title, "1 done, 1 blocked, 0 skipped") {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "auraxis-web [UNRESOLVED] blocked: task unresolved") {
		t.Errorf("Message = %q", n.Message)
	}
	if n.Reference != "3f2a9c1d" {
		t.Errorf("Reference = %q", n.Reference)
	}

	r.Outcomes = r.Outcomes[:1]
	if FromReport(r, "").Type != NotifySuccess {
		t.Error("all-done pass should be a success notification")
	}

	r.Outcomes[0].Status = domain.StatusSkipped
	if FromReport(r, "").Type != NotifyInfo {
		t.Error("all-skipped pass should be informational")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var got slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(FromReport(sampleReport(), "/reports/orchestration-3f2a9c1d.md")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !strings.HasPrefix(got.Text, ":x: squad-orch run") {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Blocks) != 3 {
		t.Fatalf("blocks = %+v", got.Blocks)
	}
	if !strings.Contains(got.Blocks[1].Text.Text, "• `auraxis-api [B8] done`") {
		t.Errorf("repository lines = %q", got.Blocks[1].Text.Text)
	}
	footer := got.Blocks[2]
	if footer.Type != "context" || len(footer.Elements) != 2 || !strings.Contains(footer.Elements[1].Text, "orchestration-3f2a9c1d.md") {
		t.Errorf("footer = %+v", footer)
	}
}

func TestSlackNotifier_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Send(Notification{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "403: invalid_token") {
		t.Errorf("err = %v", err)
	}
}

func TestSlackNotifier_Disabled(t *testing.T) {
	if err := NewSlackNotifier("").Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestSlackMessage_NoFooter(t *testing.T) {
	p := slackMessage(Notification{Title: "t", Type: NotifyWarning})
	if len(p.Blocks) != 1 || p.Text != ":warning: t" {
		t.Errorf("payload = %+v", p)
	}
}

func TestDesktopCommand(t *testing.T) {
	n := Notification{Title: `Pass "3f2a"`, Message: "a\nb", Type: NotifyError}

	linux := desktopCommand("linux", n)
	if linux == nil || linux.Args[0] != "notify-send" {
		t.Fatalf("linux command = %v", linux)
	}
	if got := strings.Join(linux.Args, " "); !strings.Contains(got, "--urgency critical") {
		t.Errorf("args = %q", got)
	}

	mac := desktopCommand("darwin", n)
	if mac == nil || !strings.Contains(mac.Args[2], `with title "Pass \"3f2a\""`) {
		t.Errorf("darwin command = %v", mac)
	}

	if desktopCommand("plan9", n) != nil {
		t.Error("unknown platform should have no command")
	}
}

func TestPopupBody(t *testing.T) {
	if got := popupBody("a\nb"); got != "a\nb" {
		t.Errorf("short body = %q", got)
	}
	got := popupBody("1\n2\n3\n4\n5\n6")
	if got != "1\n2\n3\n4\n... and 2 more" {
		t.Errorf("long body = %q", got)
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(config.NotificationsConfig{}).(NoopNotifier); !ok {
		t.Error("nothing enabled should yield NoopNotifier")
	}
	if _, ok := New(config.NotificationsConfig{SlackWebhook: "http://x"}).(*SlackNotifier); !ok {
		t.Error("webhook only should yield SlackNotifier")
	}
	if f, ok := New(config.NotificationsConfig{Desktop: true, SlackWebhook: "http://x"}).(Fanout); !ok || len(f) != 2 {
		t.Error("both enabled should yield a two-way Fanout")
	}
}

func TestFanout(t *testing.T) {
	var called []string
	boom := errors.New("boom")

	f := Fanout{
		recorder{"first", &called, nil},
		recorder{"second", &called, boom},
		recorder{"third", &called, nil},
	}
	err := f.Send(Notification{Title: "Test"})

	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if strings.Join(called, ",") != "first,second,third" {
		t.Errorf("called = %v", called)
	}
}

type recorder struct {
	name  string
	calls *[]string
	err   error
}

func (r recorder) Send(Notification) error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}
