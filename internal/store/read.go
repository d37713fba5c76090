package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latchql/latch/internal/ir"
)

// ReadWhitelist returns every whitelist entry written under a compile run,
// ordered by fingerprint for deterministic output.
func (s *Store) ReadWhitelist(ctx context.Context, compileRun int64) ([]ir.WhitelistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, text, params, validators, referenced, public
		FROM whitelist_entries
		WHERE compile_run = ?
		ORDER BY fingerprint ASC
	`, compileRun)
	if err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	defer rows.Close()

	var entries []ir.WhitelistEntry
	for rows.Next() {
		entry, err := scanWhitelistEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whitelist: %w", err)
	}
	rows.Close()

	for i := range entries {
		entries[i].AllowedFragments, err = s.readFragmentAllowances(ctx, compileRun, entries[i].Fingerprint)
		if err != nil {
			return nil, err
		}
	}

	if entries == nil {
		entries = []ir.WhitelistEntry{}
	}

	return entries, nil
}

// ReadWhitelistEntry retrieves a single entry by fingerprint within a
// compile run. Returns sql.ErrNoRows if not found.
func (s *Store) ReadWhitelistEntry(ctx context.Context, compileRun int64, fingerprint string) (ir.WhitelistEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, text, params, validators, referenced, public
		FROM whitelist_entries
		WHERE compile_run = ? AND fingerprint = ?
	`, compileRun, fingerprint)

	entry, err := scanWhitelistEntryRow(row)
	if err != nil {
		return ir.WhitelistEntry{}, err
	}

	entry.AllowedFragments, err = s.readFragmentAllowances(ctx, compileRun, fingerprint)
	if err != nil {
		return ir.WhitelistEntry{}, err
	}

	return entry, nil
}

func (s *Store) readFragmentAllowances(ctx context.Context, compileRun int64, parentFingerprint string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fragment_fingerprint
		FROM fragment_allowances
		WHERE compile_run = ? AND parent_fingerprint = ?
		ORDER BY fragment_fingerprint ASC
	`, compileRun, parentFingerprint)
	if err != nil {
		return nil, fmt.Errorf("read fragment allowances: %w", err)
	}
	defer rows.Close()

	var allowed []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fragment allowance: %w", err)
		}
		allowed = append(allowed, fp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragment allowances: %w", err)
	}

	return allowed, nil
}

func scanWhitelistEntry(rows *sql.Rows) (ir.WhitelistEntry, error) {
	var entry ir.WhitelistEntry
	var paramsJSON, validatorsJSON, referencedJSON string
	var public int

	if err := rows.Scan(&entry.Fingerprint, &entry.Text, &paramsJSON, &validatorsJSON, &referencedJSON, &public); err != nil {
		return ir.WhitelistEntry{}, fmt.Errorf("scan whitelist entry: %w", err)
	}

	return finishWhitelistEntry(entry, paramsJSON, validatorsJSON, referencedJSON, public)
}

func scanWhitelistEntryRow(row *sql.Row) (ir.WhitelistEntry, error) {
	var entry ir.WhitelistEntry
	var paramsJSON, validatorsJSON, referencedJSON string
	var public int

	if err := row.Scan(&entry.Fingerprint, &entry.Text, &paramsJSON, &validatorsJSON, &referencedJSON, &public); err != nil {
		return ir.WhitelistEntry{}, err
	}

	return finishWhitelistEntry(entry, paramsJSON, validatorsJSON, referencedJSON, public)
}

func finishWhitelistEntry(entry ir.WhitelistEntry, paramsJSON, validatorsJSON, referencedJSON string, public int) (ir.WhitelistEntry, error) {
	params, err := unmarshalParams(paramsJSON)
	if err != nil {
		return ir.WhitelistEntry{}, err
	}
	entry.Params = params

	validators, err := unmarshalValidators(validatorsJSON)
	if err != nil {
		return ir.WhitelistEntry{}, err
	}
	entry.Validators = validators

	referenced, err := unmarshalReferenced(referencedJSON)
	if err != nil {
		return ir.WhitelistEntry{}, err
	}
	entry.Referenced = referenced

	entry.Public = public != 0

	return entry, nil
}

// LatestCompileRun returns the id of the most recently written compile
// run, or 0 with sql.ErrNoRows if none exist.
func (s *Store) LatestCompileRun(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM compile_runs ORDER BY created_at DESC, id DESC LIMIT 1
	`).Scan(&id)
	return id, err
}
