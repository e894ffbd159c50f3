package outcome

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// auditPrefix marks audit records the executor writes to stdout
const auditPrefix = "AUDIT "

// QualityGateTool is the executor tool that runs the repository quality gate
const QualityGateTool = "run_repo_quality_gates"

// CriticalTools are the operations whose terminal ERROR always blocks a run
var CriticalTools = map[string]bool{
	QualityGateTool:                 true,
	"run_backend_tests":             true,
	"run_tests":                     true,
	"run_integration_tests":         true,
	"publish_feature_contract_pack": true,
	"update_task_status":            true,
}

// testTools run tests or the quality gate; their audited status replaces the
// free-text pre-commit/test signal
var testTools = map[string]bool{
	QualityGateTool:         true,
	"run_backend_tests":     true,
	"run_tests":             true,
	"run_integration_tests": true,
}

// ParseAudit reads JSON audit records, one per line. Lines may carry the
// stdout prefix. Anything that does not decode to a record with a tool name
// is ignored.
func ParseAudit(r io.Reader) ([]domain.AuditRecord, error) {
	var records []domain.AuditRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if rec, ok := parseAuditLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	return records, scanner.Err()
}

// ReadAuditFile parses an audit file. A missing file yields no records.
func ReadAuditFile(path string) ([]domain.AuditRecord, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseAudit(f)
}

// AuditFromStdout collects records from stdout lines prefixed with "AUDIT "
func AuditFromStdout(lines []string) []domain.AuditRecord {
	var records []domain.AuditRecord
	for _, line := range lines {
		if !strings.HasPrefix(line, auditPrefix) {
			continue
		}
		if rec, ok := parseAuditLine(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

func parseAuditLine(line string) (domain.AuditRecord, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), auditPrefix))
	if !strings.HasPrefix(line, "{") {
		return domain.AuditRecord{}, false
	}
	var rec domain.AuditRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Tool == "" {
		return domain.AuditRecord{}, false
	}
	rec.Status = domain.AuditStatus(strings.ToUpper(string(rec.Status)))
	return rec, true
}

// TerminalStatus returns the last record per tool, in order of first appearance
func TerminalStatus(records []domain.AuditRecord) []domain.AuditRecord {
	index := make(map[string]int)
	var out []domain.AuditRecord
	for _, rec := range records {
		if i, ok := index[rec.Tool]; ok {
			out[i] = rec
			continue
		}
		index[rec.Tool] = len(out)
		out = append(out, rec)
	}
	return out
}

// CriticalErrors returns the critical tools whose terminal status is ERROR
func CriticalErrors(records []domain.AuditRecord) []domain.AuditRecord {
	var errs []domain.AuditRecord
	for _, rec := range TerminalStatus(records) {
		if CriticalTools[rec.Tool] && rec.Status == domain.AuditError {
			errs = append(errs, rec)
		}
	}
	return errs
}

// AuditCommits returns de-duplicated commit hashes from successful records
func AuditCommits(records []domain.AuditRecord) []string {
	var commits []string
	seen := make(map[string]bool)
	for _, rec := range records {
		c := strings.TrimSpace(rec.Commit)
		if c == "" || rec.Status != domain.AuditOK || seen[c] {
			continue
		}
		seen[c] = true
		commits = append(commits, c)
	}
	return commits
}

// AuditQuality returns the quality evidence implied by the quality gate tool, if it ran
func AuditQuality(records []domain.AuditRecord) (domain.QualityEvidence, bool) {
	for _, rec := range TerminalStatus(records) {
		if rec.Tool != QualityGateTool {
			continue
		}
		if rec.Status == domain.AuditError {
			return domain.QualityEvidence{Status: "fail"}, true
		}
		return domain.QualityEvidence{Status: "pass"}, true
	}
	return domain.QualityEvidence{}, false
}

// AuditTestSignal returns fail if any test tool ended in ERROR, pass if at
// least one ran and all ended OK, and false when none ran.
func AuditTestSignal(records []domain.AuditRecord) (domain.Signal, bool) {
	sig, ran := domain.SignalPass, false
	for _, rec := range TerminalStatus(records) {
		if !testTools[rec.Tool] {
			continue
		}
		ran = true
		if rec.Status == domain.AuditError {
			sig = domain.SignalFail
		}
	}
	return sig, ran
}
