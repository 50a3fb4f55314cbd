package sqlite

// schema is applied idempotently on every Open via CREATE TABLE IF NOT
// EXISTS, mirroring the teacher's single-file embedded schema rather than
// a separate migration runner — this domain has no prior released schema
// version to migrate from.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS projects (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'ACTIVE',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id            INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name                  TEXT NOT NULL,
	command_template      TEXT NOT NULL DEFAULT '',
	required_cpu          INTEGER NOT NULL DEFAULT 0,
	required_accelerators INTEGER NOT NULL DEFAULT 0,
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	task_id     INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	parameters  TEXT NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'PENDING',
	priority    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_project_status ON jobs(project_id, status);
CREATE INDEX IF NOT EXISTS idx_jobs_project_priority ON jobs(project_id, priority DESC, id ASC);

CREATE TABLE IF NOT EXISTS job_dependencies (
	job_id        INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	depends_on_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	PRIMARY KEY (job_id, depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_job_dependencies_depends_on ON job_dependencies(depends_on_id);

CREATE TABLE IF NOT EXISTS workers (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	entity         TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	cpu            INTEGER NOT NULL DEFAULT 0,
	accelerators   INTEGER NOT NULL DEFAULT 0,
	is_active      INTEGER NOT NULL DEFAULT 1,
	last_heartbeat TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
`
