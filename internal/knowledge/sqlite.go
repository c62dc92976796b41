package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists knowledge documents and chunks in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		name        TEXT NOT NULL,
		size        INTEGER DEFAULT 0,
		chunk_count INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		tenant_id   TEXT NOT NULL,
		doc_name    TEXT NOT NULL,
		content     TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		word_count  INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_tenant ON chunks(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(document_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AddDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, tenant_id, name, size, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Name, doc.Size, doc.ChunkCount, doc.CreatedAt,
	)
	if err != nil {
		return err
	}

	// Re-ingest replaces the old chunk set.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return err
	}

	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, tenant_id, doc_name, content, chunk_index, word_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, chunk.TenantID, chunk.DocName, chunk.Content, chunk.ChunkIndex, chunk.WordCount,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ChunksForTenant(ctx context.Context, tenantID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, tenant_id, doc_name, content, chunk_index, word_count
		 FROM chunks WHERE tenant_id = ?`, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.TenantID, &c.DocName, &c.Content, &c.ChunkIndex, &c.WordCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, tenantID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, size, chunk_count, created_at
		 FROM documents WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Size, &d.ChunkCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
