// Package memory is the SQLite observation store: agent memories with
// content-hash deduplication, an FTS5 mirror kept in sync by triggers,
// a timeline view and per-session summaries.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/Aman-CERP/mcb/internal/database"
	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// MaxContentLength bounds a single observation.
const MaxContentLength = 64 * 1024

const observationColumns = `id, project_id, content, content_hash, tags, observation_type, metadata, created_at, embedding_id`

// Store implements ports.MemoryRepository on the shared database.
type Store struct {
	db        *database.DB
	orgID     string
	projectID string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex // serializes writes
	ensured map[string]bool
}

var _ ports.MemoryRepository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithProject sets the default organization and project.
func WithProject(orgID, projectID string) Option {
	return func(s *Store) {
		if orgID != "" {
			s.orgID = orgID
		}
		if projectID != "" {
			s.projectID = projectID
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over db.
func New(db *database.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		orgID:     database.DefaultOrgID,
		projectID: database.DefaultProjectID,
		logger:    slog.Default(),
		now:       time.Now,
		ensured:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureProject must be called with mu held.
func (s *Store) ensureProject(ctx context.Context, orgID, projectID string) error {
	key := orgID + "/" + projectID
	if s.ensured[key] {
		return nil
	}
	if err := database.EnsureProject(ctx, s.db, orgID, projectID); err != nil {
		return err
	}
	s.ensured[key] = true
	return nil
}

// StoreObservation inserts obs, filling id, hash, type and timestamp when
// unset. Content already stored in the same project is not duplicated: the
// existing id is returned with created=false and the first row is kept.
func (s *Store) StoreObservation(ctx context.Context, obs *domain.Observation) (string, bool, error) {
	if obs == nil || strings.TrimSpace(obs.Content) == "" {
		return "", false, mcberrors.InvalidArgument("observation content is empty")
	}
	if len(obs.Content) > MaxContentLength {
		return "", false, mcberrors.InvalidArgument(fmt.Sprintf("observation content exceeds %d bytes", MaxContentLength))
	}
	if obs.ContentHash == "" {
		obs.ContentHash = domain.ContentHash(obs.Content)
	}
	if obs.ID == "" {
		obs.ID = ulid.Make().String()
	}
	if obs.Type == "" {
		obs.Type = domain.ObservationContext
	}
	if obs.ProjectID == "" {
		obs.ProjectID = s.projectID
	}
	if obs.CreatedAt == 0 {
		obs.CreatedAt = s.now().Unix()
	}
	if obs.Tags == nil {
		obs.Tags = []string{}
	}

	tags, err := json.Marshal(obs.Tags)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode tags: %w", err)
	}
	md, err := json.Marshal(obs.Metadata)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureProject(ctx, s.orgID, obs.ProjectID); err != nil {
		return "", false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (`+observationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, content_hash) DO NOTHING`,
		obs.ID, obs.ProjectID, obs.Content, obs.ContentHash, string(tags), string(obs.Type),
		string(md), obs.CreatedAt, nullString(obs.EmbeddingID))
	if err != nil {
		return "", false, mcberrors.FromContext(fmt.Errorf("failed to store observation: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.FindByHash(ctx, obs.ProjectID, obs.ContentHash)
		if err != nil {
			return "", false, err
		}
		if existing == nil {
			return "", false, mcberrors.Internal("observation conflicted on hash but no row exists", nil)
		}
		s.logger.Debug("observation_deduplicated", slog.String("id", existing.ID))
		return existing.ID, false, nil
	}
	s.logger.Debug("observation_stored", slog.String("id", obs.ID), slog.String("type", string(obs.Type)))
	return obs.ID, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*domain.Observation, error) {
	var (
		o         domain.Observation
		tags, md  string
		obsType   string
		embedding sql.NullString
	)
	if err := row.Scan(&o.ID, &o.ProjectID, &o.Content, &o.ContentHash, &tags, &obsType, &md, &o.CreatedAt, &embedding); err != nil {
		return nil, err
	}
	// Rows written by other tools may carry malformed JSON; keep the row.
	if json.Unmarshal([]byte(tags), &o.Tags) != nil || o.Tags == nil {
		o.Tags = []string{}
	}
	_ = json.Unmarshal([]byte(md), &o.Metadata)
	o.Type = domain.ObservationType(obsType)
	if t, err := domain.ParseObservationType(obsType); err == nil {
		o.Type = t
	}
	o.EmbeddingID = embedding.String
	return &o, nil
}

// GetObservation returns NotFound when id is absent.
func (s *Store) GetObservation(ctx context.Context, id string) (*domain.Observation, error) {
	o, err := scanObservation(s.db.QueryRowContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, mcberrors.NotFound("observation " + id)
	}
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to get observation: %w", err))
	}
	return o, nil
}

// FindByHash returns the project's observation with hash, or nil without
// error when there is none. An empty projectID selects the store's project.
func (s *Store) FindByHash(ctx context.Context, projectID, hash string) (*domain.Observation, error) {
	if projectID == "" {
		projectID = s.projectID
	}
	o, err := scanObservation(s.db.QueryRowContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE project_id = ? AND content_hash = ?`,
		projectID, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to find observation by hash: %w", err))
	}
	return o, nil
}

// DeleteObservation removes the row; the FTS entry goes with it.
func (s *Store) DeleteObservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE id = ?`, id); err != nil {
		return mcberrors.FromContext(fmt.Errorf("failed to delete observation: %w", err))
	}
	return nil
}

// ftsQuery quotes every word so user input cannot use FTS5 syntax. Words
// are ANDed.
func ftsQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " ")
}

// SearchFTS returns matching ids, best first.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]string, error) {
	ranked, err := s.SearchFTSRanked(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}
	return ids, nil
}

// SearchFTSRanked returns ids with FTS5 bm25 ranks rescaled to [0,1]
// relative to the best hit, which scores 1.
func (s *Store) SearchFTSRanked(ctx context.Context, query string, limit int) ([]domain.RankedID, error) {
	match := ftsQuery(query)
	if match == "" {
		return []domain.RankedID{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT observations_fts.id, observations_fts.rank
		FROM observations_fts
		JOIN observations o ON o.rowid = observations_fts.rowid
		WHERE observations_fts MATCH ? AND o.project_id = ?
		ORDER BY observations_fts.rank, observations_fts.id
		LIMIT ?`, match, s.projectID, limit)
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to search observations: %w", err))
	}
	defer rows.Close()

	var out []domain.RankedID
	best := 0.0
	for rows.Next() {
		var r domain.RankedID
		var rank float64
		if err := rows.Scan(&r.ID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan fts row: %w", err)
		}
		// bm25() is negative; more negative is better.
		r.Score = -rank
		if r.Score > best {
			best = r.Score
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fts rows: %w", err)
	}
	for i := range out {
		out[i].Score = normalizeRank(out[i].Score, best)
	}
	if out == nil {
		out = []domain.RankedID{}
	}
	return out, nil
}

func normalizeRank(score, best float64) float64 {
	if best <= 0 {
		return 1
	}
	v := score / best
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// GetByIDs returns observations in the order of ids, skipping unknown ids.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]*domain.Observation, error) {
	if len(ids) == 0 {
		return []*domain.Observation{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id IN (`+database.Placeholders(len(ids))+`)`,
		database.InArgs(ids)...)
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to get observations: %w", err))
	}
	defer rows.Close()

	byID := make(map[string]*domain.Observation, len(ids))
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*domain.Observation, 0, len(byID))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
			delete(byID, id)
		}
	}
	return out, nil
}

// filterClause renders f as SQL conditions over observations.
func filterClause(f domain.MemoryFilter) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	jsonEq := func(field, v string) {
		if v != "" {
			b.WriteString(" AND json_extract(metadata, '$." + field + "') = ?")
			args = append(args, v)
		}
	}
	jsonEq("session_id", f.SessionID)
	jsonEq("parent_session_id", f.ParentSessionID)
	jsonEq("repo_id", f.RepoID)
	jsonEq("branch", f.Branch)
	jsonEq("commit", f.Commit)
	if f.Type != "" {
		b.WriteString(" AND observation_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Since > 0 {
		b.WriteString(" AND created_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		b.WriteString(" AND created_at <= ?")
		args = append(args, f.Until)
	}
	for _, tag := range f.Tags {
		b.WriteString(" AND EXISTS (SELECT 1 FROM json_each(observations.tags) WHERE value = ?)")
		args = append(args, tag)
	}
	return b.String(), args
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*domain.Observation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to query observations: %w", err))
	}
	defer rows.Close()
	out := []*domain.Observation{}
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetTimeline returns up to before observations created before the anchor,
// the anchor itself, and up to after observations created after it, in
// ascending creation order. Equal timestamps are ordered by id.
func (s *Store) GetTimeline(ctx context.Context, anchorID string, before, after int, filter domain.MemoryFilter) ([]*domain.Observation, error) {
	if before < 0 || after < 0 {
		return nil, mcberrors.InvalidArgument("timeline window must not be negative")
	}
	anchor, err := s.GetObservation(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	cond, args := filterClause(filter)
	base := `SELECT ` + observationColumns + ` FROM observations WHERE project_id = ?` + cond
	baseArgs := append([]any{anchor.ProjectID}, args...)

	var earlier []*domain.Observation
	if before > 0 {
		earlier, err = s.query(ctx,
			base+` AND (created_at, id) < (?, ?) ORDER BY created_at DESC, id DESC LIMIT ?`,
			append(append([]any{}, baseArgs...), anchor.CreatedAt, anchor.ID, before)...)
		if err != nil {
			return nil, err
		}
	}
	var later []*domain.Observation
	if after > 0 {
		later, err = s.query(ctx,
			base+` AND (created_at, id) > (?, ?) ORDER BY created_at ASC, id ASC LIMIT ?`,
			append(append([]any{}, baseArgs...), anchor.CreatedAt, anchor.ID, after)...)
		if err != nil {
			return nil, err
		}
	}

	timeline := make([]*domain.Observation, 0, len(earlier)+1+len(later))
	for i := len(earlier) - 1; i >= 0; i-- {
		timeline = append(timeline, earlier[i])
	}
	timeline = append(timeline, anchor)
	return append(timeline, later...), nil
}

// Result is one memory search hit.
type Result struct {
	Observation *domain.Observation
	Score       float64
}

// Search ranks observations matching query and filter. Without a query it
// lists the newest matches, scored by recency position.
func (s *Store) Search(ctx context.Context, query string, filter domain.MemoryFilter, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	if strings.TrimSpace(query) == "" {
		cond, args := filterClause(filter)
		obs, err := s.query(ctx,
			`SELECT `+observationColumns+` FROM observations WHERE project_id = ?`+cond+
				` ORDER BY created_at DESC, id DESC LIMIT ?`,
			append(append([]any{s.projectID}, args...), limit)...)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(obs))
		for i, o := range obs {
			out[i] = Result{Observation: o, Score: max(1-float64(i)*0.1, 0.1)}
		}
		return out, nil
	}

	// Over-fetch so post-filtering still fills the page.
	ranked, err := s.SearchFTSRanked(ctx, query, limit*4)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ranked))
	scores := make(map[string]float64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
		scores[r.ID] = r.Score
	}
	obs, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, limit)
	for _, o := range obs {
		if !filter.Match(o) {
			continue
		}
		out = append(out, Result{Observation: o, Score: scores[o.ID]})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// StoreSessionSummary upserts a summary by id. Ids are UUIDs.
func (s *Store) StoreSessionSummary(ctx context.Context, sum *domain.SessionSummary) error {
	if sum == nil || sum.SessionID == "" {
		return mcberrors.InvalidArgument("session summary requires a session id")
	}
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.OrgID == "" {
		sum.OrgID = s.orgID
	}
	if sum.ProjectID == "" {
		sum.ProjectID = s.projectID
	}
	if sum.CreatedAt == 0 {
		sum.CreatedAt = s.now().Unix()
	}
	enc := func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	fields := make([]string, 5)
	for i, v := range []any{nonNil(sum.Topics), nonNil(sum.Decisions), nonNil(sum.NextSteps), nonNil(sum.KeyFiles), sum.OriginContext} {
		var err error
		if fields[i], err = enc(v); err != nil {
			return fmt.Errorf("failed to encode session summary: %w", err)
		}
	}
	if sum.OriginContext == nil {
		fields[4] = "{}"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureProject(ctx, sum.OrgID, sum.ProjectID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_summaries (id, org_id, project_id, session_id, topics, decisions, next_steps, key_files, origin_context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topics = excluded.topics,
			decisions = excluded.decisions,
			next_steps = excluded.next_steps,
			key_files = excluded.key_files,
			origin_context = excluded.origin_context`,
		sum.ID, sum.OrgID, sum.ProjectID, sum.SessionID,
		fields[0], fields[1], fields[2], fields[3], fields[4], sum.CreatedAt)
	if err != nil {
		return mcberrors.FromContext(fmt.Errorf("failed to store session summary: %w", err))
	}
	s.logger.Debug("session_summary_stored", slog.String("session_id", sum.SessionID))
	return nil
}

// GetSessionSummary returns the newest summary for a session.
func (s *Store) GetSessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	var sum domain.SessionSummary
	var org sql.NullString
	var topics, decisions, next, keys, origin string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, project_id, session_id, topics, decisions, next_steps, key_files, origin_context, created_at
		FROM session_summaries
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, sessionID,
	).Scan(&sum.ID, &org, &sum.ProjectID, &sum.SessionID, &topics, &decisions, &next, &keys, &origin, &sum.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, mcberrors.NotFound("session summary for " + sessionID)
	}
	if err != nil {
		return nil, mcberrors.FromContext(fmt.Errorf("failed to get session summary: %w", err))
	}
	sum.OrgID = org.String
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{topics, &sum.Topics}, {decisions, &sum.Decisions}, {next, &sum.NextSteps}, {keys, &sum.KeyFiles}} {
		if json.Unmarshal([]byte(f.raw), f.dst) != nil || *f.dst == nil {
			*f.dst = []string{}
		}
	}
	_ = json.Unmarshal([]byte(origin), &sum.OriginContext)
	return &sum, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
