package dispatch

import "strings"

// Environment passed to every executor child. Parent values with the same
// prefix are dropped so nothing leaks from an enclosing run.
const (
	EnvPrefix         = "SQUAD_"
	EnvTargetRepo     = "SQUAD_TARGET_REPO"
	EnvBriefing       = "SQUAD_BRIEFING"
	EnvExecutionMode  = "SQUAD_EXECUTION_MODE"
	EnvResolvedTaskID = "SQUAD_RESOLVED_TASK_ID"
	EnvFingerprint    = "SQUAD_POLICY_FINGERPRINT"
	EnvWorktreePath   = "SQUAD_WORKTREE_PATH"
	EnvAuditLog       = "SQUAD_AUDIT_LOG"
	EnvRunID          = "SQUAD_RUN_ID"
	EnvMultiChild     = "SQUAD_MULTI_CHILD"
)

// buildEnv returns a private copy of base with the run's settings applied
func buildEnv(base []string, st *runState) []string {
	env := make([]string, 0, len(base)+9)
	for _, kv := range base {
		if strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		env = append(env, kv)
	}

	worktreePath := ""
	if st.worktree != nil {
		worktreePath = st.worktree.Path
	}

	return append(env,
		EnvTargetRepo+"="+st.repo.Name,
		EnvBriefing+"="+st.briefing,
		EnvExecutionMode+"="+string(st.mode),
		EnvResolvedTaskID+"="+st.task.String(),
		EnvFingerprint+"="+st.fingerprint,
		EnvWorktreePath+"="+worktreePath,
		EnvAuditLog+"="+st.auditPath,
		EnvRunID+"="+st.runID,
		EnvMultiChild+"=1",
	)
}
