// Package ledger persists relayed executions keyed by (session_id, nonce).
// It backs the submission side's replay protection and spend re-check: the
// policy engine never writes here, but the component that broadcasts
// transactions must, or two concurrent requests could both pass the spend
// check against a stale figure and together exceed the cap.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrDuplicateNonce is returned when a (session_id, nonce) pair has already
// been reserved or submitted.
var ErrDuplicateNonce = errors.New("ledger: nonce already used for session")

// Entry statuses.
const (
	StatusReserved  = "reserved"
	StatusSubmitted = "submitted"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	session_id TEXT NOT NULL,
	nonce      TEXT NOT NULL,
	user       TEXT NOT NULL,
	spend_wei  TEXT NOT NULL,
	tx_hash    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session_id, nonce)
);
`

// Ledger is a SQLite-backed execution ledger.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Reserve records an intent to submit. The primary key makes the reservation
// the idempotency point: a second request with the same (session, nonce)
// fails with ErrDuplicateNonce no matter how the first one is progressing.
func (l *Ledger) Reserve(ctx context.Context, sessionID, nonce, user string, spendWei *big.Int) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions (session_id, nonce, user, spend_wei, status)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, nonce, user, spendWei.String(), StatusReserved)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateNonce
		}
		return fmt.Errorf("ledger: reserve: %w", err)
	}
	return nil
}

// MarkSubmitted finalizes a reservation with the broadcast transaction hash.
func (l *Ledger) MarkSubmitted(ctx context.Context, sessionID, nonce, txHash string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE executions SET status = ?, tx_hash = ?
		WHERE session_id = ? AND nonce = ? AND status = ?
	`, StatusSubmitted, txHash, sessionID, nonce, StatusReserved)
	if err != nil {
		return fmt.Errorf("ledger: mark submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: mark submitted: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ledger: no reserved entry for session %s nonce %s", sessionID, nonce)
	}
	return nil
}

// Release removes a reservation whose submission failed, freeing the nonce.
func (l *Ledger) Release(ctx context.Context, sessionID, nonce string) error {
	_, err := l.db.ExecContext(ctx, `
		DELETE FROM executions
		WHERE session_id = ? AND nonce = ? AND status = ?
	`, sessionID, nonce, StatusReserved)
	if err != nil {
		return fmt.Errorf("ledger: release: %w", err)
	}
	return nil
}

// PendingSpend sums the spend of all in-flight and submitted executions for
// a session, excluding the given nonce. The guard subtracts this from the
// session's remaining budget before broadcasting, closing the window between
// policy check and submission.
func (l *Ledger) PendingSpend(ctx context.Context, sessionID, excludeNonce string) (*big.Int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT spend_wei FROM executions
		WHERE session_id = ? AND nonce != ?
	`, sessionID, excludeNonce)
	if err != nil {
		return nil, fmt.Errorf("ledger: pending spend: %w", err)
	}
	defer rows.Close()

	total := new(big.Int)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("ledger: pending spend: %w", err)
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("ledger: corrupt spend value %q", s)
		}
		total.Add(total, n)
	}
	return total, rows.Err()
}

// TxHash returns the recorded hash for a submitted execution, or "" if the
// pair is unknown or still pending.
func (l *Ledger) TxHash(ctx context.Context, sessionID, nonce string) (string, error) {
	var hash string
	err := l.db.QueryRowContext(ctx, `
		SELECT tx_hash FROM executions
		WHERE session_id = ? AND nonce = ? AND status = ?
	`, sessionID, nonce, StatusSubmitted).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: tx hash: %w", err)
	}
	return hash, nil
}
