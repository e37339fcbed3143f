package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// Repository defines the interface for inbox persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// List retrieves all inbox entries.
	List(ctx context.Context) ([]Entry, error)

	// Get retrieves an entry by thing UID.
	// Returns ErrNotInInbox if no entry exists.
	Get(ctx context.Context, uid discovery.ThingUID) (*Entry, error)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, e *Entry) error

	// Delete removes an entry by thing UID.
	// Returns ErrNotInInbox if no entry exists.
	Delete(ctx context.Context, uid discovery.ThingUID) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `thing_uid, thing_type_uid, bridge_uid, label,
	representation_property, properties, flag, ttl_secs, timestamp, discoverer`

// List retrieves all inbox entries.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM inbox_results ORDER BY thing_uid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying inbox results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inbox result: %w", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inbox results: %w", err)
	}
	return entries, nil
}

// Get retrieves an entry by thing UID.
func (r *SQLiteRepository) Get(ctx context.Context, uid discovery.ThingUID) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM inbox_results WHERE thing_uid = ?`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, string(uid)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotInInbox
		}
		return nil, fmt.Errorf("querying inbox result: %w", err)
	}
	return e, nil
}

// Put inserts or replaces an entry.
func (r *SQLiteRepository) Put(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	propsJSON, err := json.Marshal(orEmptyMap(e.Result.Properties))
	if err != nil {
		return fmt.Errorf("marshalling properties: %w", err)
	}

	query := `
		INSERT INTO inbox_results (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thing_uid) DO UPDATE SET
			thing_type_uid = excluded.thing_type_uid,
			bridge_uid = excluded.bridge_uid,
			label = excluded.label,
			representation_property = excluded.representation_property,
			properties = excluded.properties,
			flag = excluded.flag,
			ttl_secs = excluded.ttl_secs,
			timestamp = excluded.timestamp,
			discoverer = excluded.discoverer`

	_, err = r.db.ExecContext(ctx, query,
		string(e.Result.ThingUID),
		string(e.Result.ThingTypeUID),
		nullableUID(e.Result.BridgeUID),
		e.Result.Label,
		e.Result.RepresentationProperty,
		string(propsJSON),
		string(e.Result.Flag),
		e.Result.TTL,
		e.Result.Timestamp.UTC().Format(time.RFC3339),
		e.Discoverer,
	)
	if err != nil {
		return fmt.Errorf("upserting inbox result: %w", err)
	}
	return nil
}

// Delete removes an entry by thing UID.
func (r *SQLiteRepository) Delete(ctx context.Context, uid discovery.ThingUID) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM inbox_results WHERE thing_uid = ?", string(uid))
	if err != nil {
		return fmt.Errorf("deleting inbox result: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotInInbox
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a row or rows result into an Entry.
func scanEntry(scanner rowScanner) (*Entry, error) {
	var e Entry
	var uid, typeUID string
	var bridgeUID sql.NullString
	var propsJSON, flag, timestamp string

	err := scanner.Scan(
		&uid,
		&typeUID,
		&bridgeUID,
		&e.Result.Label,
		&e.Result.RepresentationProperty,
		&propsJSON,
		&flag,
		&e.Result.TTL,
		&timestamp,
		&e.Discoverer,
	)
	if err != nil {
		return nil, err
	}

	e.Result.ThingUID = discovery.ThingUID(uid)
	e.Result.ThingTypeUID = discovery.ThingTypeUID(typeUID)
	if bridgeUID.Valid {
		e.Result.BridgeUID = discovery.ThingUID(bridgeUID.String)
	}
	e.Result.Flag = discovery.Flag(flag)

	e.Result.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	if err := json.Unmarshal([]byte(propsJSON), &e.Result.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling properties: %w", err)
	}

	return &e, nil
}

// orEmptyMap maps nil to an empty map so JSON columns never store "null".
func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// nullableUID returns a sql.NullString for optional UID columns.
func nullableUID(uid discovery.ThingUID) sql.NullString {
	if uid == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(uid), Valid: true}
}
