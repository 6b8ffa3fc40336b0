/**
 * @description
 * This file implements the data access layer for wallet records. It provides
 * a clean interface for the application logic to interact with the `wallets`
 * table in the database.
 *
 * @dependencies
 * - context: For managing request-scoped deadlines and cancellations.
 * - log: For logging database errors.
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 * - The service's internal domain package for the WalletRecord model.
 */
package store

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia/wallet-service/internal/domain"
)

// PostgresWalletRepository is the PostgreSQL implementation of WalletRepository.
type PostgresWalletRepository struct {
	db *pgxpool.Pool
}

// NewPostgresWalletRepository creates a new instance of PostgresWalletRepository.
func NewPostgresWalletRepository(db *pgxpool.Pool) *PostgresWalletRepository {
	return &PostgresWalletRepository{db: db}
}

// Exists reports whether a wallet record already exists for the pair.
func (r *PostgresWalletRepository) Exists(ctx context.Context, userID, currency string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1 AND currency = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, currency).Scan(&exists); err != nil {
		log.Printf("Error checking wallet existence for user %s currency %s: %v", userID, currency, err)
		return false, err
	}
	return exists, nil
}

// Insert conditionally inserts a wallet record. The ON CONFLICT clause on the
// (user_id, currency) unique index decides concurrent provisioning races: the
// loser gets ErrWalletExists and treats it as a skip.
func (r *PostgresWalletRepository) Insert(ctx context.Context, rec *domain.WalletRecord) error {
	query := `
        INSERT INTO wallets (id, user_id, name, address, currency, balance, xpub, kms_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (user_id, currency) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Name,
		rec.Address,
		rec.Currency,
		rec.Balance,
		rec.XPub,
		rec.KMSID,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		log.Printf("Error inserting wallet into database: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletExists
	}
	return nil
}

// ListByUserID returns every wallet provisioned for the user.
func (r *PostgresWalletRepository) ListByUserID(ctx context.Context, userID string) ([]domain.WalletRecord, error) {
	query := `
        SELECT id, user_id, name, address, currency, balance, xpub, kms_id, created_at, updated_at
        FROM wallets
        WHERE user_id = $1
        ORDER BY currency
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		log.Printf("Error listing wallets for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var wallets []domain.WalletRecord
	for rows.Next() {
		var rec domain.WalletRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Name,
			&rec.Address,
			&rec.Currency,
			&rec.Balance,
			&rec.XPub,
			&rec.KMSID,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		wallets = append(wallets, rec)
	}
	return wallets, rows.Err()
}
