package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latchql/latch/internal/ir"
)

// WriteCompileRun inserts a compile_runs row and returns its surrogate id.
func (s *Store) WriteCompileRun(ctx context.Context, sourceHash string, entryCount int, createdAt int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO compile_runs (source_hash, entry_count, created_at)
		VALUES (?, ?, ?)
	`, sourceHash, entryCount, createdAt)
	if err != nil {
		return 0, fmt.Errorf("write compile run: %w", err)
	}
	return result.LastInsertId()
}

// WriteWhitelist persists every entry of a compiled whitelist under the
// given compile run. Existing rows for the same (fingerprint, compile_run)
// pair are replaced.
func (s *Store) WriteWhitelist(ctx context.Context, compileRun int64, entries []ir.WhitelistEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write whitelist: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if err := writeWhitelistEntry(ctx, tx, compileRun, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func writeWhitelistEntry(ctx context.Context, tx *sql.Tx, compileRun int64, entry ir.WhitelistEntry) error {
	paramsJSON, err := marshalParams(entry.Params)
	if err != nil {
		return fmt.Errorf("write whitelist entry: %w", err)
	}
	validatorsJSON, err := marshalValidators(entry.Validators)
	if err != nil {
		return fmt.Errorf("write whitelist entry: %w", err)
	}
	referencedJSON, err := marshalReferenced(entry.Referenced)
	if err != nil {
		return fmt.Errorf("write whitelist entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO whitelist_entries
		(fingerprint, compile_run, text, params, validators, referenced, public)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, compile_run) DO UPDATE SET
			text = excluded.text,
			params = excluded.params,
			validators = excluded.validators,
			referenced = excluded.referenced,
			public = excluded.public
	`,
		entry.Fingerprint,
		compileRun,
		entry.Text,
		paramsJSON,
		validatorsJSON,
		referencedJSON,
		boolToInt(entry.Public),
	)
	if err != nil {
		return fmt.Errorf("write whitelist entry: %w", err)
	}
	return nil
}

// WriteFragmentAllowances records which fragment fingerprints a parent
// fingerprint is permitted to merge with, for a given compile run.
func (s *Store) WriteFragmentAllowances(ctx context.Context, compileRun int64, parentFingerprint string, fragmentFingerprints []string) error {
	for _, fragmentFingerprint := range fragmentFingerprints {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO fragment_allowances
			(parent_fingerprint, fragment_fingerprint, compile_run)
			VALUES (?, ?, ?)
			ON CONFLICT(parent_fingerprint, fragment_fingerprint, compile_run) DO NOTHING
		`, parentFingerprint, fragmentFingerprint, compileRun)
		if err != nil {
			return fmt.Errorf("write fragment allowance: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
