package ledger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "ledger.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func entry(repo, task, hash string, status domain.OutcomeStatus, at time.Time, commits ...string) domain.LedgerEntry {
	return domain.LedgerEntry{
		Timestamp:     at,
		Repo:          repo,
		TaskID:        task,
		BriefingHash:  hash,
		ExecutionMode: domain.ModeRun,
		Status:        status,
		CommitHashes:  commits,
	}
}

func TestLedger_LatestEmpty(t *testing.T) {
	l := newTestLedger(t)
	got, err := l.Latest("api", "B8", "h")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("Latest() = %+v, want nil", got)
	}
}

func TestLedger_LatestWins(t *testing.T) {
	l := newTestLedger(t)
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	l.Append(entry("api", "B8", "h", domain.StatusBlocked, t0))
	l.Append(entry("api", "B8", "h", domain.StatusDone, t0.Add(time.Minute), "abc1234"))
	l.Append(entry("api", "B9", "h", domain.StatusBlocked, t0.Add(2*time.Minute)))
	l.Append(entry("web", "B8", "h", domain.StatusBlocked, t0.Add(3*time.Minute)))

	got, err := l.Latest("api", "B8", "h")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != domain.StatusDone {
		t.Fatalf("Latest() = %+v, want done entry", got)
	}
	if !ShouldSkip(got) {
		t.Error("done entry with commits should be skippable")
	}
}

func TestLedger_LatestRunIgnoresPlanMarkers(t *testing.T) {
	l := newTestLedger(t)
	t0 := time.Now().UTC()

	l.Append(entry("api", "B8", "h", domain.StatusDone, t0, "abc1234"))
	marker := entry("api", "B8", "h", domain.StatusDone, t0.Add(time.Second))
	marker.ExecutionMode = domain.ModePlanOnly
	l.Append(marker)

	latest, _ := l.Latest("api", "B8", "h")
	if latest.ExecutionMode != domain.ModePlanOnly {
		t.Errorf("Latest() mode = %s, want plan_only", latest.ExecutionMode)
	}
	run, _ := l.LatestRun("api", "B8", "h")
	if run == nil || !ShouldSkip(run) {
		t.Errorf("LatestRun() = %+v, want skippable run entry", run)
	}
}

func TestShouldSkip(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		e    *domain.LedgerEntry
		want bool
	}{
		{"nil", nil, false},
		{"done without commits", ptr(entry("a", "B1", "h", domain.StatusDone, now)), false},
		{"blocked with commits", ptr(entry("a", "B1", "h", domain.StatusBlocked, now, "abc1234")), false},
		{"done with commits", ptr(entry("a", "B1", "h", domain.StatusDone, now, "abc1234")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSkip(tt.e); got != tt.want {
				t.Errorf("ShouldSkip() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLedger_SkipsMalformedLines(t *testing.T) {
	l := newTestLedger(t)
	l.Append(entry("api", "B8", "h", domain.StatusDone, time.Now(), "abc1234"))

	f, _ := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString("{not json\n\n")
	f.Close()

	entries, err := l.Entries(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Entries() = %d, want 1", len(entries))
	}
}

func TestLedger_ConcurrentAppends(t *testing.T) {
	l := newTestLedger(t)
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := entry("repo", "B1", "h", domain.StatusDone, time.Now())
			e.RunID = string(rune('a' + i))
			if err := l.Append(e); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	entries, _ := l.Entries(Filter{})
	if len(entries) != n {
		t.Fatalf("Entries() = %d, want %d", len(entries), n)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.RunID] = true
	}
	if len(seen) != n {
		t.Errorf("distinct run ids = %d, want %d", len(seen), n)
	}
}

func TestBriefingHash(t *testing.T) {
	if BriefingHash("Implement B8") != BriefingHash("Implement B8") {
		t.Error("hash not deterministic")
	}
	if BriefingHash("Implement B8") == BriefingHash("implement B8") {
		t.Error("different text should hash differently")
	}
	if len(BriefingHash("x")) != 64 {
		t.Errorf("len = %d, want 64", len(BriefingHash("x")))
	}
}

func ptr(e domain.LedgerEntry) *domain.LedgerEntry { return &e }
