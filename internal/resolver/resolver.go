// Package resolver binds a repository run to exactly one task-board item.
package resolver

import (
	"errors"

	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/parser"
)

// ErrUnresolved is returned by Require when no task could be determined
var ErrUnresolved = errors.New("task id could not be resolved from briefing or task board")

// Resolve maps a repository and briefing to a task id.
//
// Precedence: an explicit id in the briefing, then the first in-progress
// board item, then the first todo item. A missing or unreadable board only
// disables the board lookups. The board is never written.
func Resolve(repo domain.Repository, briefing string) domain.ResolvedTask {
	if id, ok := domain.FindTaskID(briefing); ok {
		return domain.ResolvedTask{ID: id, Source: domain.SourceExplicit}
	}

	path := parser.FindBoard(repo)
	if path == "" {
		return domain.ResolvedTask{ID: domain.Unresolved, Source: domain.SourceUnresolved}
	}
	items, err := parser.ParseBoardFile(path)
	if err != nil {
		return domain.ResolvedTask{ID: domain.Unresolved, Source: domain.SourceUnresolved}
	}

	if item, ok := parser.FirstWithStatus(items, domain.BoardInProgress); ok {
		return domain.ResolvedTask{ID: item.ID, Source: domain.SourceBoardInProgress}
	}
	if item, ok := parser.FirstWithStatus(items, domain.BoardTodo); ok {
		return domain.ResolvedTask{ID: item.ID, Source: domain.SourceBoardTodo}
	}
	return domain.ResolvedTask{ID: domain.Unresolved, Source: domain.SourceUnresolved}
}

// Require resolves like Resolve but returns ErrUnresolved for the UNRESOLVED outcome
func Require(repo domain.Repository, briefing string) (domain.ResolvedTask, error) {
	task := Resolve(repo, briefing)
	if !task.IsResolved() {
		return task, ErrUnresolved
	}
	return task, nil
}
