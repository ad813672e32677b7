package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"voiceline/internal/config"
)

// Store manages speaker identity persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	// mu serializes every mutating operation. Combined with the flock
	// below it makes MatchOrRegister a single global critical section.
	mu  sync.Mutex
	dim int
}

// Open initializes or connects to the identity database. It takes an
// exclusive lock file in the data directory; a second process opening
// the same store fails fast instead of racing registrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "identity.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("identity store at %s is locked by another process", cfg.Paths.DataDir)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, lock: lock}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	if err := store.loadDimension(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return store, nil
}

// Close releases the database connection and the store lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

func (s *Store) loadDimension(ctx context.Context) error {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT embedding_dim FROM speakers ORDER BY speaker_id LIMIT 1`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load embedding dimension: %w", err)
	}
	s.dim = dim
	return nil
}

// Dim returns the signature dimension fixed by the first registered
// speaker, or 0 when the store is empty.
func (s *Store) Dim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type candidate struct {
	id           int64
	signature    Vector
	segmentCount int
}

// bestMatch scans every stored signature and returns the most similar
// candidate. The query must already be unit-normalized.
func bestMatch(ctx context.Context, q querier, query Vector) (*candidate, float64, error) {
	rows, err := q.QueryContext(ctx, `SELECT speaker_id, embedding, embedding_dim, segment_count FROM speakers ORDER BY speaker_id`)
	if err != nil {
		return nil, 0, fmt.Errorf("scan speakers: %w", err)
	}
	defer rows.Close()

	var (
		best     *candidate
		bestSim  float64
		returned bool
	)
	for rows.Next() {
		var (
			id       int64
			blob     []byte
			dim      int
			segments int
		)
		if err := rows.Scan(&id, &blob, &dim, &segments); err != nil {
			return nil, 0, fmt.Errorf("scan speaker row: %w", err)
		}
		if dim != len(query) {
			return nil, 0, fmt.Errorf("signature dimension %d does not match store dimension %d", len(query), dim)
		}
		stored, err := decodeVector(blob, dim)
		if err != nil {
			return nil, 0, fmt.Errorf("speaker %d: %w", id, err)
		}
		sim := Dot(query, stored)
		if !returned || sim > bestSim {
			best = &candidate{id: id, signature: stored, segmentCount: segments}
			bestSim = sim
			returned = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if !returned {
		return nil, 0, nil
	}
	return best, bestSim, nil
}

// FindMostSimilar returns the stored speaker closest to the signature
// and the cosine similarity, or (nil, 0) on an empty store. The query
// is normalized before comparison.
func (s *Store) FindMostSimilar(ctx context.Context, signature Vector) (*Speaker, float64, error) {
	query := signature.Unit()
	best, sim, err := bestMatch(ctx, s.db, query)
	if err != nil {
		return nil, 0, err
	}
	if best == nil {
		return nil, 0, nil
	}
	speaker, err := s.SpeakerByID(ctx, best.id)
	if err != nil {
		return nil, 0, err
	}
	return speaker, sim, nil
}

// MatchOrRegister resolves one consolidated signature: when the best
// stored similarity strictly exceeds opts.Threshold the appearance is
// recorded against that speaker (replacing any prior row for the same
// episode), otherwise a new speaker is registered. The similarity scan
// and the write happen in one transaction under the store mutex.
func (s *Store) MatchOrRegister(ctx context.Context, signature Vector, episodeNum int, localLabel string, segmentCount int, opts MatchOptions) (MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := signature.Unit()
	if s.dim != 0 && len(query) != s.dim {
		return MatchResult{}, fmt.Errorf("signature dimension %d does not match store dimension %d", len(query), s.dim)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MatchResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	best, bestSim, err := bestMatch(ctx, tx, query)
	if err != nil {
		return MatchResult{}, err
	}

	var result MatchResult
	// Strict comparison: a score exactly at the threshold is not a match.
	if best != nil && bestSim > opts.Threshold {
		if opts.UpdateOnMatch {
			// The stored side weighs max(1, segment_count) as read
			// before this episode's counts are added.
			oldWeight := float64(best.segmentCount)
			if oldWeight < 1 {
				oldWeight = 1
			}
			newWeight := opts.UpdateWeight
			if newWeight <= 0 {
				newWeight = 1
			}
			blended := Blend(best.signature, oldWeight, query, newWeight)
			if _, err := tx.ExecContext(ctx,
				`UPDATE speakers SET embedding = ?, updated_at = ? WHERE speaker_id = ?`,
				encodeVector(blended), now, best.id,
			); err != nil {
				return MatchResult{}, fmt.Errorf("update signature: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO episode_appearances (speaker_id, episode_num, local_label, segment_count, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			best.id, episodeNum, localLabel, segmentCount, now,
		); err != nil {
			return MatchResult{}, fmt.Errorf("record appearance: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE speakers
             SET episode_count = (
                     SELECT COUNT(DISTINCT episode_num) FROM episode_appearances WHERE speaker_id = ?
                 ),
                 segment_count = segment_count + ?,
                 updated_at = ?
             WHERE speaker_id = ?`,
			best.id, segmentCount, now, best.id,
		); err != nil {
			return MatchResult{}, fmt.Errorf("update counters: %w", err)
		}

		result = MatchResult{SpeakerID: best.id, Matched: true, Similarity: bestSim}
	} else {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO speakers (embedding, embedding_dim, episode_count, segment_count, created_at, updated_at, notes)
             VALUES (?, ?, 1, ?, ?, ?, ?)`,
			encodeVector(query), len(query), segmentCount, now, now,
			fmt.Sprintf("First appeared in episode %d as %s", episodeNum, localLabel),
		)
		if err != nil {
			return MatchResult{}, fmt.Errorf("insert speaker: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return MatchResult{}, fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO episode_appearances (speaker_id, episode_num, local_label, segment_count, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			id, episodeNum, localLabel, segmentCount, now,
		); err != nil {
			return MatchResult{}, fmt.Errorf("record first appearance: %w", err)
		}

		result = MatchResult{SpeakerID: id, Matched: false, Similarity: bestSim}
	}

	if err := tx.Commit(); err != nil {
		return MatchResult{}, fmt.Errorf("commit match: %w", err)
	}
	if s.dim == 0 {
		s.dim = len(query)
	}
	return result, nil
}

// SpeakerByID fetches one speaker record, or nil when absent.
func (s *Store) SpeakerByID(ctx context.Context, id int64) (*Speaker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT speaker_id, embedding, embedding_dim, episode_count, segment_count, created_at, updated_at, notes
         FROM speakers WHERE speaker_id = ?`, id)
	speaker, err := scanSpeaker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get speaker: %w", err)
	}
	return speaker, nil
}

// ListSpeakers returns every speaker ordered by id.
func (s *Store) ListSpeakers(ctx context.Context) ([]*Speaker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker_id, embedding, embedding_dim, episode_count, segment_count, created_at, updated_at, notes
         FROM speakers ORDER BY speaker_id`)
	if err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}
	defer rows.Close()

	var speakers []*Speaker
	for rows.Next() {
		speaker, err := scanSpeaker(rows)
		if err != nil {
			return nil, err
		}
		speakers = append(speakers, speaker)
	}
	return speakers, rows.Err()
}

// Appearances returns a speaker's episode history ordered by episode.
func (s *Store) Appearances(ctx context.Context, speakerID int64) ([]Appearance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker_id, episode_num, local_label, segment_count, created_at
         FROM episode_appearances WHERE speaker_id = ? ORDER BY episode_num`, speakerID)
	if err != nil {
		return nil, fmt.Errorf("list appearances: %w", err)
	}
	defer rows.Close()

	var appearances []Appearance
	for rows.Next() {
		var (
			app        Appearance
			createdRaw string
		)
		if err := rows.Scan(&app.SpeakerID, &app.EpisodeNum, &app.LocalLabel, &app.SegmentCount, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan appearance: %w", err)
		}
		app.CreatedAt, _ = parseTimeString(createdRaw)
		appearances = append(appearances, app)
	}
	return appearances, rows.Err()
}

// EpisodeMapping returns the local label to global id mapping recorded
// for an episode. This is the audit trail a reprocessing run replaces.
func (s *Store) EpisodeMapping(ctx context.Context, episodeNum int) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT local_label, speaker_id FROM episode_appearances WHERE episode_num = ?`, episodeNum)
	if err != nil {
		return nil, fmt.Errorf("episode mapping: %w", err)
	}
	defer rows.Close()

	mapping := make(map[string]int64)
	for rows.Next() {
		var (
			label string
			id    int64
		)
		if err := rows.Scan(&label, &id); err != nil {
			return nil, fmt.Errorf("scan mapping row: %w", err)
		}
		mapping[label] = id
	}
	return mapping, rows.Err()
}

// ProcessedEpisodes returns the sorted set of processed episode numbers.
func (s *Store) ProcessedEpisodes(ctx context.Context) ([]int, error) {
	return s.processedEpisodes(ctx)
}

func (s *Store) processedEpisodes(ctx context.Context) ([]int, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM processing_state WHERE key = ?`, processedEpisodesKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed episodes: %w", err)
	}
	var episodes []int
	if err := json.Unmarshal([]byte(value), &episodes); err != nil {
		return nil, fmt.Errorf("decode processed episodes: %w", err)
	}
	return episodes, nil
}

// IsProcessed reports whether an episode was fully processed.
func (s *Store) IsProcessed(ctx context.Context, episodeNum int) (bool, error) {
	episodes, err := s.processedEpisodes(ctx)
	if err != nil {
		return false, err
	}
	for _, ep := range episodes {
		if ep == episodeNum {
			return true, nil
		}
	}
	return false, nil
}

// MarkEpisodeProcessed adds an episode to the processed set. The call
// is idempotent; marking twice leaves the set unchanged.
func (s *Store) MarkEpisodeProcessed(ctx context.Context, episodeNum int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	episodes, err := s.processedEpisodes(ctx)
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		if ep == episodeNum {
			return nil
		}
	}
	episodes = append(episodes, episodeNum)
	sort.Ints(episodes)

	return s.writeProcessedEpisodes(ctx, episodes)
}

// ClearProcessed empties the processed-episode set so every episode is
// eligible for reprocessing.
func (s *Store) ClearProcessed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeProcessedEpisodes(ctx, []int{})
}

func (s *Store) writeProcessedEpisodes(ctx context.Context, episodes []int) error {
	encoded, err := json.Marshal(episodes)
	if err != nil {
		return fmt.Errorf("encode processed episodes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processing_state (key, value, updated_at) VALUES (?, ?, ?)`,
		processedEpisodesKey, string(encoded), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write processed episodes: %w", err)
	}
	return nil
}

// Stats aggregates store contents for diagnostic output.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM speakers`).Scan(&stats.Speakers); err != nil {
		return Stats{}, fmt.Errorf("count speakers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT episode_num) FROM episode_appearances`).Scan(&stats.Episodes); err != nil {
		return Stats{}, fmt.Errorf("count episodes: %w", err)
	}
	var segments sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(segment_count) FROM speakers`).Scan(&segments); err != nil {
		return Stats{}, fmt.Errorf("sum segments: %w", err)
	}
	stats.Segments = int(segments.Int64)
	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseBytes = info.Size()
	}
	return stats, nil
}

func scanSpeaker(scanner interface{ Scan(dest ...any) error }) (*Speaker, error) {
	var (
		speaker    Speaker
		blob       []byte
		createdRaw string
		updatedRaw string
		notes      sql.NullString
	)
	if err := scanner.Scan(
		&speaker.ID,
		&blob,
		&speaker.Dim,
		&speaker.EpisodeCount,
		&speaker.SegmentCount,
		&createdRaw,
		&updatedRaw,
		&notes,
	); err != nil {
		return nil, err
	}

	signature, err := decodeVector(blob, speaker.Dim)
	if err != nil {
		return nil, fmt.Errorf("speaker %d: %w", speaker.ID, err)
	}
	speaker.Signature = signature
	speaker.Notes = notes.String
	speaker.CreatedAt, _ = parseTimeString(createdRaw)
	speaker.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &speaker, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
