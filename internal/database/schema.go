package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []struct {
	table string
	ddl   string
}{
	{"sellers", `
CREATE TABLE IF NOT EXISTS sellers (
	id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	cpf         VARCHAR(14)  NOT NULL,
	email       VARCHAR(255) NOT NULL,
	is_official BOOLEAN      NOT NULL DEFAULT FALSE,
	created_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_sellers_cpf (cpf),
	UNIQUE KEY uq_sellers_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"buyers", `
CREATE TABLE IF NOT EXISTS buyers (
	id         CHAR(36)     NOT NULL PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	phone      VARCHAR(32)  NOT NULL,
	email      VARCHAR(255) NULL,
	created_at DATETIME     NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"tickets", `
CREATE TABLE IF NOT EXISTS tickets (
	number          VARCHAR(16)  NOT NULL PRIMARY KEY,
	status          ENUM('available','pending','paid') NOT NULL DEFAULT 'available',
	seller_id       BIGINT UNSIGNED NOT NULL,
	buyer_id        CHAR(36)     NULL,
	buyer_name      VARCHAR(255) NULL,
	buyer_email     VARCHAR(255) NULL,
	seller_name     VARCHAR(255) NULL,
	seller_cpf      VARCHAR(14)  NULL,
	proof_reference VARCHAR(1024) NULL,
	reserved_at     DATETIME     NULL,
	paid_at         DATETIME     NULL,
	updated_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	KEY idx_tickets_status (status),
	KEY idx_tickets_seller_cpf (seller_cpf),
	CONSTRAINT fk_tickets_seller FOREIGN KEY (seller_id) REFERENCES sellers (id),
	CONSTRAINT fk_tickets_buyer FOREIGN KEY (buyer_id) REFERENCES buyers (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"users", `
CREATE TABLE IF NOT EXISTS users (
	id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	email         VARCHAR(255) NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	role          ENUM('SELLER','TREASURER') NOT NULL DEFAULT 'SELLER',
	is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
	created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uq_users_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"refresh_tokens", `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	user_id    BIGINT UNSIGNED NOT NULL,
	token_hash CHAR(64)  NOT NULL,
	expires_at DATETIME  NOT NULL,
	revoked_at DATETIME  NULL,
	created_at DATETIME  NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_refresh_tokens_hash (token_hash),
	CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}

// InitializeSchema creates the tables the service needs when they do not
// exist yet.  It is safe to call on every start.
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.table, err)
		}
	}
	return nil
}
