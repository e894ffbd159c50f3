package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
)

// BoardFileCandidates are tried in order when a repository has no explicit board path
var BoardFileCandidates = []string{"TASKS.md", "tasks.md"}

var (
	// Match checklist lines like: - [~] **B8** Add nickname field
	checklistRegex = regexp.MustCompile(`^\s*[-*]\s*\[([ xX~!])\]\s+\*\*([A-Za-z]+-?\d+)\*\*\s*(.*)$`)
	// Table separator rows like: |----|:---:|
	separatorRegex = regexp.MustCompile(`^\|[\s:|-]+\|$`)
	// Decorations around id cells: **B8**, `B8`, [B8](link)
	idDecorRegex = regexp.MustCompile(`^[*\x60\[]*([A-Za-z]+-?\d+)[*\x60\]]*(?:\([^)]*\))?$`)
)

// FindBoard returns the task board path for a repository, or "" if none exists
func FindBoard(repo domain.Repository) string {
	if repo.BoardPath != "" {
		path := repo.BoardPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(repo.Root, path)
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	for _, name := range BoardFileCandidates {
		path := filepath.Join(repo.Root, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ParseBoardFile parses a markdown task board from disk
func ParseBoardFile(path string) ([]domain.BoardItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task board: %w", err)
	}
	return ParseBoard(content), nil
}

// ParseBoard extracts task items from board content. Both pipe tables
// (id | area | description | status | ...) and checklists are accepted,
// in any mix, and returned in document order.
func ParseBoard(content []byte) []domain.BoardItem {
	var items []domain.BoardItem

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "|") {
			if item, ok := parseTableRow(trimmed); ok {
				item.Line = lineNo
				items = append(items, item)
			}
			continue
		}

		if item, ok := parseChecklistLine(line); ok {
			item.Line = lineNo
			items = append(items, item)
		}
	}

	return items
}

func parseTableRow(line string) (domain.BoardItem, bool) {
	if separatorRegex.MatchString(line) {
		return domain.BoardItem{}, false
	}

	cells := strings.Split(line, "|")
	// cells[0] is empty (before first |), cells[-1] is empty (after last |)
	if len(cells) < 3 {
		return domain.BoardItem{}, false
	}
	cells = cells[1 : len(cells)-1]
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	if len(cells) < 4 {
		return domain.BoardItem{}, false
	}

	id, ok := cleanID(cells[0])
	if !ok {
		// Header rows ("ID", "Id") land here
		return domain.BoardItem{}, false
	}

	status, ok := NormalizeStatus(cells[3])
	if !ok {
		return domain.BoardItem{}, false
	}

	return domain.BoardItem{
		ID:     id,
		Title:  cells[2],
		Status: status,
	}, true
}

func parseChecklistLine(line string) (domain.BoardItem, bool) {
	m := checklistRegex.FindStringSubmatch(line)
	if m == nil {
		return domain.BoardItem{}, false
	}
	return domain.BoardItem{
		ID:     strings.ToUpper(m[2]),
		Title:  strings.TrimSpace(m[3]),
		Status: markerToStatus(m[1]),
	}, true
}

func cleanID(cell string) (string, bool) {
	m := idDecorRegex.FindStringSubmatch(cell)
	if m == nil {
		return "", false
	}
	id := strings.ToUpper(m[1])
	if !domain.IsTaskID(id) {
		return "", false
	}
	return id, true
}

func markerToStatus(marker string) domain.BoardStatus {
	switch marker {
	case "x", "X":
		return domain.BoardDone
	case "~":
		return domain.BoardInProgress
	case "!":
		return domain.BoardBlocked
	default:
		return domain.BoardTodo
	}
}

// NormalizeStatus maps a free-form status cell onto the board statuses
func NormalizeStatus(cell string) (domain.BoardStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(cell))
	s = strings.Trim(s, "*`_ ")
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)

	switch s {
	case "todo", "to do", "pending", "not started", "open", "backlog":
		return domain.BoardTodo, true
	case "in progress", "doing", "wip", "started", "progress":
		return domain.BoardInProgress, true
	case "blocked", "block", "on hold":
		return domain.BoardBlocked, true
	case "done", "completed", "complete", "closed":
		return domain.BoardDone, true
	}
	return "", false
}

// FirstWithStatus returns the first item with the given status
func FirstWithStatus(items []domain.BoardItem, status domain.BoardStatus) (domain.BoardItem, bool) {
	for _, item := range items {
		if item.Status == status {
			return item, true
		}
	}
	return domain.BoardItem{}, false
}
