package domain

import (
	"regexp"
	"strings"
)

// taskIDRegex matches board ids such as B8, APP10, WEB-11
var taskIDRegex = regexp.MustCompile(`\b([A-Z]+-\d+|[A-Z]+\d+)\b`)

// Unresolved is the task id recorded when no task could be determined
const Unresolved = "UNRESOLVED"

// ResolutionSource records how a task id was found
type ResolutionSource string

const (
	SourceExplicit        ResolutionSource = "explicit"
	SourceBoardInProgress ResolutionSource = "board_in_progress"
	SourceBoardTodo       ResolutionSource = "board_todo"
	SourceUnresolved      ResolutionSource = "unresolved"
)

// ResolvedTask is the task a repository run is bound to
type ResolvedTask struct {
	ID     string
	Source ResolutionSource
}

// IsResolved returns false for the UNRESOLVED outcome
func (r ResolvedTask) IsResolved() bool {
	return r.Source != SourceUnresolved && r.ID != "" && r.ID != Unresolved
}

// String returns the id, or UNRESOLVED
func (r ResolvedTask) String() string {
	if !r.IsResolved() {
		return Unresolved
	}
	return r.ID
}

// FindTaskID returns the first task id mentioned in text
func FindTaskID(text string) (string, bool) {
	m := taskIDRegex.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsTaskID reports whether s is exactly one task id
func IsTaskID(s string) bool {
	m := taskIDRegex.FindStringSubmatch(s)
	return m != nil && m[1] == s
}

// SameTask compares task ids case-insensitively
func SameTask(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// BoardItem is one task row or checklist line from a task board
type BoardItem struct {
	ID     string
	Title  string
	Status BoardStatus
	Line   int
}
