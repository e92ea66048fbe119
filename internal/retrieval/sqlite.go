package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"emsadvisor/internal/corpus"
	"emsadvisor/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend over a local protocols database. It is
// constructed only when the database retrieval feature flag is enabled.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the protocols database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open protocols database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach protocols database: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

const protocolColumns = `tp_code, name, category, version, effective_date, expiration_date,
	is_current, full_text, keywords, base_contact_required, warnings, contraindications`

// GetProtocolByCode returns the current protocol for a code, or nil when no
// record exists.
func (b *SQLiteBackend) GetProtocolByCode(ctx context.Context, code string) (*models.Protocol, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT `+protocolColumns+` FROM protocols WHERE tp_code = ? ORDER BY is_current DESC LIMIT 1`,
		corpus.NormalizeCode(code))

	p, err := scanProtocol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("protocol lookup failed: %w", err)
	}
	return p, nil
}

// SearchProtocols returns protocols whose name, keywords or text match the
// query.
func (b *SQLiteBackend) SearchProtocols(ctx context.Context, query string, limit int) ([]models.Protocol, error) {
	if limit <= 0 {
		limit = 6
	}
	like := "%" + query + "%"
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+protocolColumns+` FROM protocols
		 WHERE name LIKE ? OR keywords LIKE ? OR full_text LIKE ?
		 ORDER BY is_current DESC, tp_code LIMIT ?`,
		like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("protocol search failed: %w", err)
	}
	defer rows.Close()

	var out []models.Protocol
	for rows.Next() {
		p, err := scanProtocol(rows)
		if err != nil {
			return nil, fmt.Errorf("protocol scan failed: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SearchProtocolChunks returns chunked protocol text matching the query.
func (b *SQLiteBackend) SearchProtocolChunks(ctx context.Context, query string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 6
	}
	like := "%" + query + "%"
	rows, err := b.db.QueryContext(ctx,
		`SELECT c.tp_code, c.seq, c.content, p.name, p.category
		 FROM protocol_chunks c JOIN protocols p ON p.tp_code = c.tp_code
		 WHERE c.content LIKE ? ORDER BY c.tp_code, c.seq LIMIT ?`,
		like, limit)
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var (
			code, content, name, category string
			seq                           int
		)
		if err := rows.Scan(&code, &seq, &content, &name, &category); err != nil {
			return nil, fmt.Errorf("chunk scan failed: %w", err)
		}
		out = append(out, models.Document{
			ID:       fmt.Sprintf("%s#%d", code, seq),
			Title:    fmt.Sprintf("TP %s %s", code, name),
			Category: category,
			Content:  content,
		})
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProtocol(row rowScanner) (*models.Protocol, error) {
	var (
		p                   models.Protocol
		effective           string
		expiration          sql.NullString
		keywords, warnings  sql.NullString
		contraindications   sql.NullString
		isCurrent, baseReq  int
	)
	if err := row.Scan(&p.TPCode, &p.Name, &p.Category, &p.Version, &effective, &expiration,
		&isCurrent, &p.FullText, &keywords, &baseReq, &warnings, &contraindications); err != nil {
		return nil, err
	}

	p.IsCurrent = isCurrent == 1
	p.BaseContactRequired = baseReq == 1

	t, err := time.Parse(time.RFC3339, effective)
	if err != nil {
		return nil, fmt.Errorf("bad effective_date %q: %w", effective, err)
	}
	p.EffectiveDate = t

	if expiration.Valid && expiration.String != "" {
		exp, err := time.Parse(time.RFC3339, expiration.String)
		if err != nil {
			return nil, fmt.Errorf("bad expiration_date %q: %w", expiration.String, err)
		}
		p.ExpirationDate = &exp
	}

	for target, col := range map[*[]string]sql.NullString{
		&p.Keywords:          keywords,
		&p.Warnings:          warnings,
		&p.Contraindications: contraindications,
	} {
		if col.Valid && col.String != "" {
			if err := json.Unmarshal([]byte(col.String), target); err != nil {
				return nil, fmt.Errorf("bad list column %q: %w", col.String, err)
			}
		}
	}
	return &p, nil
}
