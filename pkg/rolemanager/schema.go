package rolemanager

// Migration represents a single versioned change to the schema.
type Migration struct {
	Version     int
	Name        string
	UpScript    string
	DownScript  string
	Description string
}

// GetMigrations returns all available migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "initial_schema",
			Description: "Create core entity tables: users, groups, rights, roles, contexts",
			UpScript:    initialSchema,
			DownScript:  dropInitialSchema,
		},
		{
			Version:     2,
			Name:        "add_assignment_tables",
			Description: "Add group membership, subgroup edges, and user/group role assignments",
			UpScript:    assignmentTables,
			DownScript:  dropAssignmentTables,
		},
		{
			Version:     3,
			Name:        "add_config_and_logs",
			Description: "Add the permissions_version counter and the structured log sink table",
			UpScript:    configAndLogs,
			DownScript:  dropConfigAndLogs,
		},
	}
}

const initialSchema = `
CREATE TABLE IF NOT EXISTS role_manager_users (
    id BIGSERIAL PRIMARY KEY,
    login VARCHAR(255) UNIQUE NOT NULL,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS role_manager_groups (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS role_manager_rightgroups (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS role_manager_righttype_ranges (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL,
    min_value NUMERIC(18,2) NOT NULL,
    max_value NUMERIC(18,2) NOT NULL,
    CHECK (min_value <= max_value)
);

CREATE TABLE IF NOT EXISTS role_manager_rights (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL,
    rightgroup_id BIGINT NOT NULL REFERENCES role_manager_rightgroups(id) ON DELETE RESTRICT,
    type VARCHAR(16) NOT NULL CHECK (type IN ('boolean', 'range')),
    righttype_range_id BIGINT REFERENCES role_manager_righttype_ranges(id) ON DELETE RESTRICT,
    CHECK (
        (type = 'boolean' AND righttype_range_id IS NULL) OR
        (type = 'range' AND righttype_range_id IS NOT NULL)
    )
);

CREATE TABLE IF NOT EXISTS role_manager_roles (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS role_manager_role_rights (
    role_id BIGINT NOT NULL REFERENCES role_manager_roles(id) ON DELETE CASCADE,
    right_id BIGINT NOT NULL REFERENCES role_manager_rights(id) ON DELETE RESTRICT,
    range_value NUMERIC(18,2),
    PRIMARY KEY (role_id, right_id)
);

CREATE TABLE IF NOT EXISTS role_manager_contexts (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rights_rightgroup_id ON role_manager_rights(rightgroup_id);
CREATE INDEX IF NOT EXISTS idx_role_rights_right_id ON role_manager_role_rights(right_id);
`

const dropInitialSchema = `
DROP TABLE IF EXISTS role_manager_role_rights CASCADE;
DROP TABLE IF EXISTS role_manager_contexts CASCADE;
DROP TABLE IF EXISTS role_manager_roles CASCADE;
DROP TABLE IF EXISTS role_manager_rights CASCADE;
DROP TABLE IF EXISTS role_manager_righttype_ranges CASCADE;
DROP TABLE IF EXISTS role_manager_rightgroups CASCADE;
DROP TABLE IF EXISTS role_manager_groups CASCADE;
DROP TABLE IF EXISTS role_manager_users CASCADE;
`

const assignmentTables = `
CREATE TABLE IF NOT EXISTS role_manager_user_groups (
    user_id BIGINT NOT NULL REFERENCES role_manager_users(id) ON DELETE CASCADE,
    group_id BIGINT NOT NULL REFERENCES role_manager_groups(id) ON DELETE RESTRICT,
    PRIMARY KEY (user_id, group_id)
);

CREATE TABLE IF NOT EXISTS role_manager_group_subgroups (
    parent_group_id BIGINT NOT NULL REFERENCES role_manager_groups(id) ON DELETE RESTRICT,
    child_group_id BIGINT NOT NULL REFERENCES role_manager_groups(id) ON DELETE RESTRICT,
    PRIMARY KEY (parent_group_id, child_group_id),
    CHECK (parent_group_id != child_group_id)
);

CREATE TABLE IF NOT EXISTS role_manager_user_context_roles (
    user_id BIGINT NOT NULL REFERENCES role_manager_users(id) ON DELETE RESTRICT,
    context_id BIGINT REFERENCES role_manager_contexts(id) ON DELETE RESTRICT,
    role_id BIGINT NOT NULL REFERENCES role_manager_roles(id) ON DELETE RESTRICT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_user_context_roles_unique
    ON role_manager_user_context_roles (user_id, role_id, COALESCE(context_id, 0));

CREATE TABLE IF NOT EXISTS role_manager_group_context_roles (
    group_id BIGINT NOT NULL REFERENCES role_manager_groups(id) ON DELETE RESTRICT,
    context_id BIGINT REFERENCES role_manager_contexts(id) ON DELETE RESTRICT,
    role_id BIGINT NOT NULL REFERENCES role_manager_roles(id) ON DELETE RESTRICT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_group_context_roles_unique
    ON role_manager_group_context_roles (group_id, role_id, COALESCE(context_id, 0));

CREATE INDEX IF NOT EXISTS idx_user_groups_group_id ON role_manager_user_groups(group_id);
CREATE INDEX IF NOT EXISTS idx_group_subgroups_child_id ON role_manager_group_subgroups(child_group_id);
CREATE INDEX IF NOT EXISTS idx_user_context_roles_user_id ON role_manager_user_context_roles(user_id);
CREATE INDEX IF NOT EXISTS idx_group_context_roles_group_id ON role_manager_group_context_roles(group_id);
`

const dropAssignmentTables = `
DROP TABLE IF EXISTS role_manager_group_context_roles CASCADE;
DROP TABLE IF EXISTS role_manager_user_context_roles CASCADE;
DROP TABLE IF EXISTS role_manager_group_subgroups CASCADE;
DROP TABLE IF EXISTS role_manager_user_groups CASCADE;
`

const configAndLogs = `
CREATE TABLE IF NOT EXISTS role_manager_config (
    key VARCHAR(64) PRIMARY KEY,
    value BIGINT NOT NULL
);

INSERT INTO role_manager_config (key, value)
VALUES ('permissions_version', 1)
ON CONFLICT (key) DO NOTHING;

CREATE TABLE IF NOT EXISTS role_manager_logs (
    id BIGSERIAL PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL DEFAULT NOW(),
    level VARCHAR(16) NOT NULL,
    message TEXT NOT NULL,
    correlation_id VARCHAR(64),
    attrs JSONB
);

CREATE INDEX IF NOT EXISTS idx_logs_occurred_at ON role_manager_logs(occurred_at);
CREATE INDEX IF NOT EXISTS idx_logs_correlation_id ON role_manager_logs(correlation_id);
`

const dropConfigAndLogs = `
DROP TABLE IF EXISTS role_manager_logs CASCADE;
DROP TABLE IF EXISTS role_manager_config CASCADE;
`
