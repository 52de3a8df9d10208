package deskctl

// DatabaseStructure is applied in order by Database.CheckAndUpdateDatabase.
// Statements must stay valid for both MySQL and SQLite; append, never edit.
var (
	DatabaseStructure = []string{
		"INVALID SQL, index 0 is not allowed for database updated",

		`CREATE TABLE users (
			id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (email)
		)`,
		`CREATE TABLE api_keys (
			id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			token VARCHAR(64) NOT NULL,
			expiration_time DATETIME NOT NULL,
			user_id BIGINT UNSIGNED NOT NULL,
			UNIQUE (token),
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE teams (
			id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_by BIGINT UNSIGNED NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE team_members (
			id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			team_id BIGINT UNSIGNED NOT NULL,
			user_id BIGINT UNSIGNED NOT NULL,
			role VARCHAR(16) NOT NULL,
			joined_at DATETIME NOT NULL,
			UNIQUE (team_id, user_id),
			CHECK (role IN ('admin', 'member')),
			FOREIGN KEY (team_id) REFERENCES teams (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE devices (
			id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			ip_address VARCHAR(255) NOT NULL,
			port INTEGER NOT NULL,
			owner_id BIGINT UNSIGNED NOT NULL,
			team_id BIGINT UNSIGNED NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'unknown',
			last_seen DATETIME NULL,
			token VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (token),
			CHECK (port BETWEEN 1 AND 65535),
			CHECK (status IN ('online', 'offline', 'unknown')),
			FOREIGN KEY (team_id) REFERENCES teams (id) ON DELETE SET NULL
		)`,
		`CREATE TABLE commands (
			id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
			device_id BIGINT UNSIGNED NOT NULL,
			command_type VARCHAR(64) NOT NULL,
			payload TEXT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			sent_by BIGINT UNSIGNED NOT NULL,
			sent_at DATETIME NOT NULL,
			delivered_at DATETIME NULL,
			executed_at DATETIME NULL,
			error_message VARCHAR(512) NULL,
			CHECK (status IN ('pending', 'delivered', 'executed', 'failed')),
			CHECK ((status = 'executed') = (executed_at IS NOT NULL)),
			FOREIGN KEY (device_id) REFERENCES devices (id) ON DELETE CASCADE
		)`,
		"CREATE INDEX commands_device_status ON commands (device_id, status, sent_at)",
		"CREATE INDEX devices_owner ON devices (owner_id)",
		"CREATE INDEX team_members_user ON team_members (user_id)",
	}
)
