package dolt

// schema is applied idempotently on every Open via CREATE TABLE IF NOT
// EXISTS. Unlike internal/store/sqlite's schema, table-level FOREIGN KEY
// clauses are required here rather than inline column REFERENCES: Dolt,
// like MySQL, parses but does not enforce an inline column-level
// REFERENCES unless a separate FOREIGN KEY constraint names it.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          BIGINT PRIMARY KEY AUTO_INCREMENT,
	name        VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	status      VARCHAR(32) NOT NULL,
	created_at  VARCHAR(64) NOT NULL,
	updated_at  VARCHAR(64) NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                    BIGINT PRIMARY KEY AUTO_INCREMENT,
	project_id            BIGINT NOT NULL,
	name                  VARCHAR(255) NOT NULL,
	command_template      TEXT,
	required_cpu          INT NOT NULL DEFAULT 0,
	required_accelerators INT NOT NULL DEFAULT 0,
	created_at            VARCHAR(64) NOT NULL,
	updated_at            VARCHAR(64) NOT NULL,
	UNIQUE KEY uniq_tasks_project_name (project_id, name),
	CONSTRAINT fk_tasks_project FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS jobs (
	id          BIGINT PRIMARY KEY AUTO_INCREMENT,
	project_id  BIGINT NOT NULL,
	task_id     BIGINT NOT NULL,
	name        VARCHAR(255) NOT NULL,
	parameters  TEXT,
	status      VARCHAR(32) NOT NULL,
	priority    INT NOT NULL DEFAULT 0,
	created_at  VARCHAR(64) NOT NULL,
	updated_at  VARCHAR(64) NOT NULL,
	CONSTRAINT fk_jobs_project FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
	CONSTRAINT fk_jobs_task FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
	KEY idx_jobs_project_status (project_id, status),
	KEY idx_jobs_project_priority (project_id, priority, id)
);

CREATE TABLE IF NOT EXISTS job_dependencies (
	job_id        BIGINT NOT NULL,
	depends_on_id BIGINT NOT NULL,
	PRIMARY KEY (job_id, depends_on_id),
	CONSTRAINT fk_deps_job FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE,
	CONSTRAINT fk_deps_depends_on FOREIGN KEY (depends_on_id) REFERENCES jobs(id) ON DELETE CASCADE,
	KEY idx_job_dependencies_depends_on (depends_on_id)
);

CREATE TABLE IF NOT EXISTS workers (
	id             VARCHAR(255) PRIMARY KEY,
	name           VARCHAR(255) NOT NULL,
	entity         VARCHAR(255) NOT NULL DEFAULT '',
	description    TEXT,
	cpu            INT NOT NULL DEFAULT 0,
	accelerators   INT NOT NULL DEFAULT 0,
	is_active      TINYINT NOT NULL DEFAULT 1,
	last_heartbeat VARCHAR(64) NOT NULL,
	created_at     VARCHAR(64) NOT NULL
);
`
