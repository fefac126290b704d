package store

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
)

const schema = `
CREATE TABLE IF NOT EXISTS playlists (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	owner            TEXT NOT NULL DEFAULT '',
	is_current       INTEGER NOT NULL DEFAULT 0,
	is_public        INTEGER NOT NULL DEFAULT 0,
	visible          INTEGER NOT NULL DEFAULT 1,
	allow_duplicates INTEGER NOT NULL DEFAULT 0,
	auto_sort_likes  INTEGER NOT NULL DEFAULT 0,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	entry_count      INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL,
	modified_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	playlist_id TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	song_id     TEXT NOT NULL,
	position    INTEGER NOT NULL,
	added_by    TEXT NOT NULL DEFAULT '',
	added_at    TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	playing     INTEGER NOT NULL DEFAULT 0,
	free        INTEGER NOT NULL DEFAULT 0,
	visible     INTEGER NOT NULL DEFAULT 1,
	accepted    INTEGER NOT NULL DEFAULT 0,
	refused     INTEGER NOT NULL DEFAULT 0,
	upvotes     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entries_playlist_position ON entries(playlist_id, position);
`

// SQLiteStore is the durable Store implementation. Every position-changing
// operation runs in a single transaction so renumbering is all-or-nothing.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a sqlite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// sqlite allows a single writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle. Used by tests.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// CreatePlaylist stores a new playlist.
func (s *SQLiteStore) CreatePlaylist(p playlist.Playlist) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO playlists (id, name, owner, is_current, is_public, visible, allow_duplicates, auto_sort_likes, duration_ms, entry_count, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		p.ID, p.Name, p.Owner, p.Current, p.Public, p.Visible, p.AllowDuplicates, p.AutoSortLikes, p.CreatedAt, now)
	return errors.Wrap(err, "failed to insert playlist")
}

// UpdatePlaylist rewrites a playlist's editable fields.
func (s *SQLiteStore) UpdatePlaylist(p playlist.Playlist) error {
	res, err := s.db.Exec(`
		UPDATE playlists
		SET name = ?, owner = ?, is_current = ?, is_public = ?, visible = ?, allow_duplicates = ?, auto_sort_likes = ?, modified_at = ?
		WHERE id = ?`,
		p.Name, p.Owner, p.Current, p.Public, p.Visible, p.AllowDuplicates, p.AutoSortLikes, time.Now(), p.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update playlist")
	}
	return s.requireRows(res, ErrPlaylistNotFound, p.ID)
}

// DeletePlaylist removes a playlist and all its entries.
func (s *SQLiteStore) DeletePlaylist(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE playlist_id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete entries")
	}
	res, err := tx.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete playlist")
	}
	if err := s.requireRows(res, ErrPlaylistNotFound, id); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

// GetPlaylist returns a playlist.
func (s *SQLiteStore) GetPlaylist(id string) (playlist.Playlist, error) {
	row := s.db.QueryRow(`
		SELECT id, name, owner, is_current, is_public, visible, allow_duplicates, auto_sort_likes, duration_ms, entry_count, created_at, modified_at
		FROM playlists WHERE id = ?`, id)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return playlist.Playlist{}, errors.Wrapf(ErrPlaylistNotFound, "id=%s", id)
	}
	return p, err
}

// Playlists returns all playlists in creation order.
func (s *SQLiteStore) Playlists() ([]playlist.Playlist, error) {
	rows, err := s.db.Query(`
		SELECT id, name, owner, is_current, is_public, visible, allow_duplicates, auto_sort_likes, duration_ms, entry_count, created_at, modified_at
		FROM playlists ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlists")
	}
	defer rows.Close()

	var result []playlist.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, errors.Wrap(rows.Err(), "failed to iterate playlists")
}

// Insert places an entry, shifting later positions up by one inside a tx.
func (s *SQLiteStore) Insert(e playlist.Entry, pos int) (playlist.Entry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var size int
	err = tx.QueryRow(`SELECT COUNT(*) FROM entries WHERE playlist_id = ?`, e.PlaylistID).Scan(&size)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to count entries")
	}
	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM playlists WHERE id = ?`, e.PlaylistID).Scan(&exists)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to check playlist")
	}
	if exists == 0 {
		return playlist.Entry{}, errors.Wrapf(ErrPlaylistNotFound, "id=%s", e.PlaylistID)
	}

	if pos <= 0 || pos > size+1 {
		pos = size + 1
	} else {
		_, err = tx.Exec(`UPDATE entries SET position = position + 1 WHERE playlist_id = ? AND position >= ?`, e.PlaylistID, pos)
		if err != nil {
			return playlist.Entry{}, errors.Wrap(err, "failed to shift positions")
		}
	}

	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	e.Position = pos
	_, err = tx.Exec(`
		INSERT INTO entries (id, playlist_id, song_id, position, added_by, added_at, duration_ms, playing, free, visible, accepted, refused, upvotes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlaylistID, e.SongID, e.Position, e.AddedBy, e.AddedAt, e.Duration.Milliseconds(),
		e.Playing, e.Free, e.Visible, e.Accepted, e.Refused, e.UpvoteCount)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to insert entry")
	}

	if err := refreshAggregates(tx, e.PlaylistID); err != nil {
		return playlist.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to commit")
	}
	return e, nil
}

// Move relocates an entry with a two-phase shift inside a tx.
func (s *SQLiteStore) Move(entryID string, newPos int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var playlistID string
	var oldPos int
	err = tx.QueryRow(`SELECT playlist_id, position FROM entries WHERE id = ?`, entryID).Scan(&playlistID, &oldPos)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up entry")
	}

	var size int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM entries WHERE playlist_id = ?`, playlistID).Scan(&size); err != nil {
		return errors.Wrap(err, "failed to count entries")
	}
	if newPos < 1 || newPos > size {
		return errors.Wrapf(ErrBadPosition, "pos=%d size=%d", newPos, size)
	}

	switch {
	case newPos > oldPos:
		// Close the old gap: everything between shifts down.
		_, err = tx.Exec(`
			UPDATE entries SET position = position - 1
			WHERE playlist_id = ? AND position > ? AND position <= ?`,
			playlistID, oldPos, newPos)
	case newPos < oldPos:
		// Open the target gap: everything between shifts up.
		_, err = tx.Exec(`
			UPDATE entries SET position = position + 1
			WHERE playlist_id = ? AND position >= ? AND position < ?`,
			playlistID, newPos, oldPos)
	}
	if err != nil {
		return errors.Wrap(err, "failed to shift positions")
	}

	if _, err := tx.Exec(`UPDATE entries SET position = ? WHERE id = ?`, newPos, entryID); err != nil {
		return errors.Wrap(err, "failed to set position")
	}
	if err := refreshAggregates(tx, playlistID); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

// Remove deletes entries and renumbers their playlists in one tx.
func (s *SQLiteStore) Remove(entryIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	touched := make(map[string]struct{})
	for _, id := range entryIDs {
		var playlistID string
		err := tx.QueryRow(`SELECT playlist_id FROM entries WHERE id = ?`, id).Scan(&playlistID)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrEntryNotFound, "id=%s", id)
		}
		if err != nil {
			return errors.Wrap(err, "failed to look up entry")
		}
		touched[playlistID] = struct{}{}
		if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
			return errors.Wrap(err, "failed to delete entry")
		}
	}

	for playlistID := range touched {
		if err := renumberTx(tx, playlistID); err != nil {
			return err
		}
		if err := refreshAggregates(tx, playlistID); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

// Renumber rewrites positions to 1..N in current order.
func (s *SQLiteStore) Renumber(playlistID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := renumberTx(tx, playlistID); err != nil {
		return err
	}
	if err := refreshAggregates(tx, playlistID); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

// Reorder rewrites the playlist to the given total order.
func (s *SQLiteStore) Reorder(playlistID string, orderedIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var size int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM entries WHERE playlist_id = ?`, playlistID).Scan(&size); err != nil {
		return errors.Wrap(err, "failed to count entries")
	}
	if size != len(orderedIDs) {
		return errors.Wrapf(ErrBadOrder, "got %d ids, playlist has %d entries", len(orderedIDs), size)
	}

	// Park positions out of the live range first so the rewrite cannot
	// collide with itself.
	if _, err := tx.Exec(`UPDATE entries SET position = -position WHERE playlist_id = ?`, playlistID); err != nil {
		return errors.Wrap(err, "failed to park positions")
	}
	for i, id := range orderedIDs {
		res, err := tx.Exec(`UPDATE entries SET position = ? WHERE id = ? AND playlist_id = ?`, i+1, id, playlistID)
		if err != nil {
			return errors.Wrap(err, "failed to set position")
		}
		if err := s.requireRows(res, ErrBadOrder, id); err != nil {
			return err
		}
	}
	if err := refreshAggregates(tx, playlistID); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

// Entries returns a playlist's entries in position order.
func (s *SQLiteStore) Entries(playlistID string) ([]playlist.Entry, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM playlists WHERE id = ?`, playlistID).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "failed to check playlist")
	}
	if exists == 0 {
		return nil, errors.Wrapf(ErrPlaylistNotFound, "id=%s", playlistID)
	}

	rows, err := s.db.Query(`
		SELECT id, playlist_id, song_id, position, added_by, added_at, duration_ms, playing, free, visible, accepted, refused, upvotes
		FROM entries WHERE playlist_id = ? ORDER BY position ASC`, playlistID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query entries")
	}
	defer rows.Close()

	var result []playlist.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, errors.Wrap(rows.Err(), "failed to iterate entries")
}

// GetEntry returns a single entry.
func (s *SQLiteStore) GetEntry(entryID string) (playlist.Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, playlist_id, song_id, position, added_by, added_at, duration_ms, playing, free, visible, accepted, refused, upvotes
		FROM entries WHERE id = ?`, entryID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return playlist.Entry{}, errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
	}
	return e, err
}

// SetPlaying marks an entry playing and clears the flag from its playlist.
func (s *SQLiteStore) SetPlaying(entryID string) (*playlist.Entry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var playlistID string
	err = tx.QueryRow(`SELECT playlist_id FROM entries WHERE id = ?`, entryID).Scan(&playlistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrEntryNotFound, "id=%s", entryID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up entry")
	}

	var prev *playlist.Entry
	row := tx.QueryRow(`
		SELECT id, playlist_id, song_id, position, added_by, added_at, duration_ms, playing, free, visible, accepted, refused, upvotes
		FROM entries WHERE playlist_id = ? AND playing = 1 AND id != ?`, playlistID, entryID)
	if e, err := scanEntry(row); err == nil {
		prev = &e
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if _, err := tx.Exec(`UPDATE entries SET playing = 0 WHERE playlist_id = ?`, playlistID); err != nil {
		return nil, errors.Wrap(err, "failed to clear playing flag")
	}
	if _, err := tx.Exec(`UPDATE entries SET playing = 1 WHERE id = ?`, entryID); err != nil {
		return nil, errors.Wrap(err, "failed to set playing flag")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit")
	}
	return prev, nil
}

// SetFree marks an entry as free.
func (s *SQLiteStore) SetFree(entryID string) error {
	res, err := s.db.Exec(`UPDATE entries SET free = 1 WHERE id = ?`, entryID)
	if err != nil {
		return errors.Wrap(err, "failed to set free flag")
	}
	return s.requireRows(res, ErrEntryNotFound, entryID)
}

// SetUpvotes records an entry's distinct upvote count.
func (s *SQLiteStore) SetUpvotes(entryID string, count int) error {
	res, err := s.db.Exec(`UPDATE entries SET upvotes = ? WHERE id = ?`, count, entryID)
	if err != nil {
		return errors.Wrap(err, "failed to set upvotes")
	}
	return s.requireRows(res, ErrEntryNotFound, entryID)
}

// SetModeration flips the accepted/refused flags, all-or-nothing per batch.
func (s *SQLiteStore) SetModeration(entryIDs []string, accepted, refused bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	touched := make(map[string]struct{})
	for _, id := range entryIDs {
		var playlistID string
		err := tx.QueryRow(`SELECT playlist_id FROM entries WHERE id = ?`, id).Scan(&playlistID)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrEntryNotFound, "id=%s", id)
		}
		if err != nil {
			return errors.Wrap(err, "failed to look up entry")
		}
		if _, err := tx.Exec(`UPDATE entries SET accepted = ?, refused = ? WHERE id = ?`, accepted, refused, id); err != nil {
			return errors.Wrap(err, "failed to set moderation flags")
		}
		touched[playlistID] = struct{}{}
	}
	for playlistID := range touched {
		if err := refreshAggregates(tx, playlistID); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

func (s *SQLiteStore) requireRows(res sql.Result, sentinel error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return errors.Wrapf(sentinel, "id=%s", id)
	}
	return nil
}

func renumberTx(tx *sql.Tx, playlistID string) error {
	rows, err := tx.Query(`SELECT id FROM entries WHERE playlist_id = ? ORDER BY position ASC`, playlistID)
	if err != nil {
		return errors.Wrap(err, "failed to query entry order")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return errors.Wrap(err, "failed to scan entry id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to iterate entry ids")
	}

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE entries SET position = ? WHERE id = ?`, i+1, id); err != nil {
			return errors.Wrap(err, "failed to renumber entry")
		}
	}
	return nil
}

func refreshAggregates(tx *sql.Tx, playlistID string) error {
	_, err := tx.Exec(`
		UPDATE playlists SET
			duration_ms = (SELECT COALESCE(SUM(duration_ms), 0) FROM entries WHERE playlist_id = ? AND refused = 0),
			entry_count = (SELECT COUNT(*) FROM entries WHERE playlist_id = ?),
			modified_at = ?
		WHERE id = ?`,
		playlistID, playlistID, time.Now(), playlistID)
	return errors.Wrap(err, "failed to refresh aggregates")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaylist(row rowScanner) (playlist.Playlist, error) {
	var p playlist.Playlist
	var durationMs int64
	err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.Current, &p.Public, &p.Visible, &p.AllowDuplicates,
		&p.AutoSortLikes, &durationMs, &p.EntryCount, &p.CreatedAt, &p.ModifiedAt)
	if err != nil {
		return playlist.Playlist{}, errors.Wrap(err, "failed to scan playlist")
	}
	p.Duration = time.Duration(durationMs) * time.Millisecond
	return p, nil
}

func scanEntry(row rowScanner) (playlist.Entry, error) {
	var e playlist.Entry
	var durationMs int64
	err := row.Scan(&e.ID, &e.PlaylistID, &e.SongID, &e.Position, &e.AddedBy, &e.AddedAt, &durationMs,
		&e.Playing, &e.Free, &e.Visible, &e.Accepted, &e.Refused, &e.UpvoteCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return playlist.Entry{}, err
		}
		return playlist.Entry{}, errors.Wrap(err, "failed to scan entry")
	}
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}
