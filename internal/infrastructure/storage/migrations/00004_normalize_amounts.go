package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

func init() {
	goose.AddMigrationContext(upNormalizeAmounts, downNormalizeAmounts)
}

// upNormalizeAmounts rewrites every stored amount into canonical decimal form
// and fills the amount_value shadow column used for range queries.
// Rows imported before the shadow column was populated have amount_value NULL;
// amounts that do not parse are cleared so the record is treated as missing
// an amount instead of matching on garbage.
func upNormalizeAmounts(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, amount FROM records
		WHERE amount IS NOT NULL
	`)
	if err != nil {
		return err
	}

	type update struct {
		id     string
		amount sql.NullString
		value  sql.NullFloat64
	}
	var updates []update

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			_ = rows.Close()
			return err
		}

		d, err := decimal.NewFromString(raw)
		if err != nil {
			updates = append(updates, update{id: id})
			continue
		}
		d = d.Abs()
		f, _ := d.Float64()
		updates = append(updates, update{
			id:     id,
			amount: sql.NullString{String: d.String(), Valid: true},
			value:  sql.NullFloat64{Float64: f, Valid: true},
		})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, u := range updates {
		_, err := tx.ExecContext(ctx, `
			UPDATE records SET amount = ?, amount_value = ? WHERE id = ?
		`, u.amount, u.value, u.id)
		if err != nil {
			return fmt.Errorf("normalize amount for %s: %w", u.id, err)
		}
	}

	return nil
}

// downNormalizeAmounts is a no-op - the original spelling of amounts is not kept
func downNormalizeAmounts(ctx context.Context, tx *sql.Tx) error {
	return nil
}
