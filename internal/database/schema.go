package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
//
// parking_records.active_slot_id is NULL for completed rows, so the unique
// key admits any number of completed records but one active record per slot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS parking_slots (
		slot_id        INT          NOT NULL PRIMARY KEY,
		status         VARCHAR(16)  NOT NULL DEFAULT 'available',
		owner_name     VARCHAR(255) NULL,
		vehicle_number VARCHAR(64)  NULL,
		entry_time     DATETIME     NULL,
		exit_time      DATETIME     NULL,
		created_at     DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT chk_slot_status CHECK (status IN ('available', 'occupied'))
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS parking_records (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		slot_id          INT          NOT NULL,
		owner_name       VARCHAR(255) NOT NULL,
		vehicle_number   VARCHAR(64)  NOT NULL,
		entry_time       DATETIME     NOT NULL,
		exit_time        DATETIME     NOT NULL,
		duration_minutes BIGINT       NOT NULL,
		status           VARCHAR(16)  NOT NULL DEFAULT 'active',
		active_slot_id   INT GENERATED ALWAYS AS (IF(status = 'active', slot_id, NULL)) STORED,
		created_at       DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at       DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_active_slot (active_slot_id),
		KEY idx_records_slot (slot_id),
		KEY idx_records_created (created_at),
		CONSTRAINT chk_record_status CHECK (status IN ('active', 'completed'))
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		name          VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(32)  NOT NULL DEFAULT 'user',
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64)     NOT NULL,
		expires_at DATETIME     NOT NULL,
		revoked_at DATETIME     NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
