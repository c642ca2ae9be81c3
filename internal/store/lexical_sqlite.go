package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/Aman-CERP/mcb/internal/database"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// SQLiteLexical persists the BM25 postings in the shared database and
// scores in Go, so k1 and b stay configurable per collection.
type SQLiteLexical struct {
	db        *database.DB
	tokenizer *Tokenizer
	defaults  BM25Params

	mu     sync.RWMutex
	params map[string]BM25Params
	closed bool
}

var _ ports.LexicalIndex = (*SQLiteLexical)(nil)

// NewSQLiteLexical creates the backend over a migrated database.
func NewSQLiteLexical(db *database.DB, cfg BM25Config) *SQLiteLexical {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &SQLiteLexical{
		db:        db,
		tokenizer: NewTokenizer(cfg),
		defaults:  BM25Params{K1: cfg.K1, B: cfg.B},
		params:    make(map[string]BM25Params),
	}
}

// SetParams overrides k1 and b for one collection.
func (s *SQLiteLexical) SetParams(collection string, p BM25Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[collection] = p
}

func (s *SQLiteLexical) paramsFor(collection string) BM25Params {
	if p, ok := s.params[collection]; ok {
		return p
	}
	return s.defaults
}

// Index replaces each document's postings. Content is tokenized in Go so
// that indexing and querying share one tokenizer.
func (s *SQLiteLexical) Index(ctx context.Context, collection string, docs []ports.LexicalDocument) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed("lexical index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delPostings, err := tx.PrepareContext(ctx, `DELETE FROM lexical_postings WHERE collection = ? AND doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer delPostings.Close()
	upsertDoc, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO lexical_documents (collection, doc_id, length) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer upsertDoc.Close()
	insPosting, err := tx.PrepareContext(ctx,
		`INSERT INTO lexical_postings (collection, term, doc_id, tf) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare posting statement: %w", err)
	}
	defer insPosting.Close()

	for _, d := range docs {
		tf, length := s.tokenizer.TermFrequencies(d.Content)
		if _, err := delPostings.ExecContext(ctx, collection, d.ID); err != nil {
			return fmt.Errorf("failed to delete postings for %s: %w", d.ID, err)
		}
		if _, err := upsertDoc.ExecContext(ctx, collection, d.ID, length); err != nil {
			return fmt.Errorf("failed to index document %s: %w", d.ID, err)
		}
		for term, n := range tf {
			if _, err := insPosting.ExecContext(ctx, collection, term, d.ID, n); err != nil {
				return fmt.Errorf("failed to insert posting for %s: %w", d.ID, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteLexical) Search(ctx context.Context, collection, query string, limit int) ([]ports.LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed("lexical index")
	}
	terms := uniqueTerms(s.tokenizer.Tokenize(query))
	if len(terms) == 0 {
		return []ports.LexicalHit{}, nil
	}

	var n int
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(length) FROM lexical_documents WHERE collection = ?`, collection).Scan(&n, &total)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus stats: %w", err)
	}
	if n == 0 {
		return []ports.LexicalHit{}, nil
	}
	avg := float64(total.Int64) / float64(n)

	args := append([]any{collection}, database.InArgs(terms)...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.term, p.doc_id, p.tf, d.length
		FROM lexical_postings p
		JOIN lexical_documents d ON d.collection = p.collection AND d.doc_id = p.doc_id
		WHERE p.collection = ? AND p.term IN (`+database.Placeholders(len(terms))+`)`, args...)
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("search failed: %w", err))
	}
	defer rows.Close()

	type posting struct {
		doc    string
		tf     int
		length int
	}
	byTerm := make(map[string][]posting, len(terms))
	for rows.Next() {
		var term string
		var p posting
		if err := rows.Scan(&term, &p.doc, &p.tf, &p.length); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		byTerm[term] = append(byTerm[term], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read postings: %w", err)
	}

	params := s.paramsFor(collection)
	scores := make(map[string]float64)
	for _, postings := range byTerm {
		idf := IDF(n, len(postings))
		for _, p := range postings {
			scores[p.doc] += TermScore(params, idf, p.tf, p.length, avg)
		}
	}
	return rankHits(scores, limit), nil
}

func (s *SQLiteLexical) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed("lexical index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := append([]any{collection}, database.InArgs(ids)...)
	in := database.Placeholders(len(ids))
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM lexical_postings WHERE collection = ? AND doc_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM lexical_documents WHERE collection = ? AND doc_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return tx.Commit()
}

// DeleteByFile narrows candidates with a LIKE on the id prefix, then checks
// each id exactly, since paths may contain ':'.
func (s *SQLiteLexical) DeleteByFile(ctx context.Context, collection, path string) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id FROM lexical_documents WHERE collection = ? AND doc_id LIKE ? ESCAPE '\'`,
		collection, likePrefix(collection+":"+path+":"))
	if err != nil {
		return 0, mcberrors.FromContext(fmt.Errorf("failed to list documents for %s: %w", path, err))
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan document id: %w", err)
		}
		if docFile(id) == path {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to read document ids: %w", err)
	}
	rows.Close()
	if err := s.Delete(ctx, collection, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *SQLiteLexical) DocumentCount(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lexical_documents WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SQLiteLexical) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lexical_postings WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to drop postings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lexical_documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to drop documents: %w", err)
	}
	delete(s.params, collection)
	return nil
}

// Close marks the index closed. The database handle belongs to the caller.
func (s *SQLiteLexical) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
