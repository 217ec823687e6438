package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	insertTransaction = `INSERT INTO transactions
		(id, date, merchant, amount, txn_group, category, subcategory, account)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertNetWorth = `INSERT INTO net_worth
		(id, date, account, category, subcategory, balance)
		VALUES (?, ?, ?, ?, ?, ?)`
	insertBatch = `INSERT INTO batch
		(id, source, loaded_at, transactions, net_worth, skipped)
		VALUES (?, ?, ?, ?, ?, ?)`
)

// load writes ds in a single transaction. Row ids are the 1-based position
// of each record in the dataset, which is the storage order.
func load(ctx context.Context, db *sql.DB, ds Dataset) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	txStmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return fmt.Errorf("prepare transactions insert: %w", err)
	}
	defer txStmt.Close()
	for i, t := range ds.Transactions {
		if _, err = txStmt.ExecContext(ctx, i+1, t.Date.String(), t.Merchant, t.Amount.String(),
			string(t.Group), t.Category, t.Subcategory, t.Account); err != nil {
			return fmt.Errorf("insert transaction %d: %w", i+1, err)
		}
	}

	nwStmt, err := tx.PrepareContext(ctx, insertNetWorth)
	if err != nil {
		return fmt.Errorf("prepare net worth insert: %w", err)
	}
	defer nwStmt.Close()
	for i, e := range ds.NetWorth {
		if _, err = nwStmt.ExecContext(ctx, i+1, e.Date.String(), e.Account, string(e.Category),
			e.Subcategory, e.Balance.String()); err != nil {
			return fmt.Errorf("insert net worth entry %d: %w", i+1, err)
		}
	}

	b := ds.Batch
	if _, err = tx.ExecContext(ctx, insertBatch, b.ID, b.Source, b.LoadedAt.UTC().Format(time.RFC3339),
		len(ds.Transactions), len(ds.NetWorth), b.Skipped); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
