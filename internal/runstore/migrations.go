package runstore

const schema = `
CREATE TABLE IF NOT EXISTS run_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pass_id TEXT NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    repo TEXT NOT NULL DEFAULT '',
    task_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    status TEXT NOT NULL,
    mode TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_events_pass ON run_events(pass_id);
CREATE INDEX IF NOT EXISTS idx_run_events_repo ON run_events(repo, created_at);
`
