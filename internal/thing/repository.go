package thing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hearth-home/hearth-core/internal/discovery"
)

// Repository defines the interface for thing persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByUID retrieves a thing by its UID.
	// Returns ErrThingNotFound if the thing does not exist.
	GetByUID(ctx context.Context, uid discovery.ThingUID) (*Thing, error)

	// List retrieves all things.
	List(ctx context.Context) ([]Thing, error)

	// ListByBridge retrieves all things reached through the given bridge.
	ListByBridge(ctx context.Context, bridgeUID discovery.ThingUID) ([]Thing, error)

	// Create inserts a new thing.
	// Returns ErrThingExists if a thing with the same UID already exists.
	Create(ctx context.Context, t *Thing) error

	// Update modifies an existing thing.
	// Returns ErrThingNotFound if the thing does not exist.
	Update(ctx context.Context, t *Thing) error

	// Delete removes a thing by UID.
	// Returns ErrThingNotFound if the thing does not exist.
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

const thingColumns = `uid, thing_type_uid, bridge_uid, label, properties, config, enabled, created_at, updated_at`

// GetByUID retrieves a thing by its UID.
func (r *SQLiteRepository) GetByUID(ctx context.Context, uid discovery.ThingUID) (*Thing, error) {
	query := `SELECT ` + thingColumns + ` FROM things WHERE uid = ?`

	t, err := scanThing(r.db.QueryRowContext(ctx, query, string(uid)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThingNotFound
		}
		return nil, fmt.Errorf("querying thing by uid: %w", err)
	}
	return t, nil
}

// List retrieves all things.
func (r *SQLiteRepository) List(ctx context.Context) ([]Thing, error) {
	query := `SELECT ` + thingColumns + ` FROM things ORDER BY uid`
	return r.queryThings(ctx, query)
}

// ListByBridge retrieves all things reached through the given bridge.
func (r *SQLiteRepository) ListByBridge(ctx context.Context, bridgeUID discovery.ThingUID) ([]Thing, error) {
	query := `SELECT ` + thingColumns + ` FROM things WHERE bridge_uid = ? ORDER BY uid`
	return r.queryThings(ctx, query, string(bridgeUID))
}

// Create inserts a new thing.
func (r *SQLiteRepository) Create(ctx context.Context, t *Thing) error {
	propsJSON, configJSON, err := marshalThingJSON(t)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	query := `
		INSERT INTO things (` + thingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		string(t.UID),
		string(t.ThingTypeUID),
		nullableUID(t.BridgeUID),
		t.Label,
		propsJSON,
		configJSON,
		boolToInt(t.Enabled),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrThingExists
		}
		return fmt.Errorf("inserting thing: %w", err)
	}
	return nil
}

// Update modifies an existing thing.
func (r *SQLiteRepository) Update(ctx context.Context, t *Thing) error {
	propsJSON, configJSON, err := marshalThingJSON(t)
	if err != nil {
		return err
	}

	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE things SET
			thing_type_uid = ?, bridge_uid = ?, label = ?, properties = ?,
			config = ?, enabled = ?, updated_at = ?
		WHERE uid = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(t.ThingTypeUID),
		nullableUID(t.BridgeUID),
		t.Label,
		propsJSON,
		configJSON,
		boolToInt(t.Enabled),
		t.UpdatedAt.Format(time.RFC3339),
		string(t.UID),
	)
	if err != nil {
		return fmt.Errorf("updating thing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrThingNotFound
	}
	return nil
}

// Delete removes a thing by UID.
func (r *SQLiteRepository) Delete(ctx context.Context, uid discovery.ThingUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM things WHERE uid = ?", string(uid))
	if err != nil {
		return fmt.Errorf("deleting thing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrThingNotFound
	}
	return nil
}

// queryThings executes a query and returns a slice of things.
func (r *SQLiteRepository) queryThings(ctx context.Context, query string, args ...any) ([]Thing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying things: %w", err)
	}
	defer rows.Close()

	var things []Thing
	for rows.Next() {
		t, err := scanThing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thing: %w", err)
		}
		things = append(things, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating things: %w", err)
	}
	return things, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanThing scans a row or rows result into a Thing.
func scanThing(scanner rowScanner) (*Thing, error) {
	var t Thing
	var uid, typeUID string
	var bridgeUID sql.NullString
	var propsJSON, configJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&uid,
		&typeUID,
		&bridgeUID,
		&t.Label,
		&propsJSON,
		&configJSON,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.UID = discovery.ThingUID(uid)
	t.ThingTypeUID = discovery.ThingTypeUID(typeUID)
	if bridgeUID.Valid {
		t.BridgeUID = discovery.ThingUID(bridgeUID.String)
	}
	t.Enabled = enabled != 0

	var parseErr error
	t.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	t.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(propsJSON), &t.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling properties: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &t.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &t, nil
}

// marshalThingJSON marshals the JSON columns of a thing.
func marshalThingJSON(t *Thing) (props, config string, err error) {
	propsJSON, err := json.Marshal(orEmptyMap(t.Properties))
	if err != nil {
		return "", "", fmt.Errorf("marshalling properties: %w", err)
	}
	configJSON, err := json.Marshal(orEmptyMap(t.Config))
	if err != nil {
		return "", "", fmt.Errorf("marshalling config: %w", err)
	}
	return string(propsJSON), string(configJSON), nil
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

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
