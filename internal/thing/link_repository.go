package thing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LinkRepository defines the interface for item/channel link persistence.
type LinkRepository interface {
	// ListLinks retrieves all links.
	ListLinks(ctx context.Context) ([]Link, error)

	// GetLink retrieves a single link.
	// Returns ErrLinkNotFound if the link does not exist.
	GetLink(ctx context.Context, itemName, channelUID string) (*Link, error)

	// PutLink inserts or replaces a link.
	PutLink(ctx context.Context, l *Link) error

	// DeleteLink removes a link.
	// Returns ErrLinkNotFound if the link does not exist.
	DeleteLink(ctx context.Context, itemName, channelUID string) error
}

// SQLiteLinkRepository implements LinkRepository using SQLite.
type SQLiteLinkRepository struct {
	db *sql.DB
}

// NewSQLiteLinkRepository creates a new SQLite-backed link repository.
func NewSQLiteLinkRepository(db *sql.DB) *SQLiteLinkRepository {
	return &SQLiteLinkRepository{db: db}
}

// ListLinks retrieves all links.
func (r *SQLiteLinkRepository) ListLinks(ctx context.Context) ([]Link, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT item_name, channel_uid, config, created_at FROM links ORDER BY item_name, channel_uid")
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		links = append(links, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}
	return links, nil
}

// GetLink retrieves a single link.
func (r *SQLiteLinkRepository) GetLink(ctx context.Context, itemName, channelUID string) (*Link, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT item_name, channel_uid, config, created_at FROM links WHERE item_name = ? AND channel_uid = ?",
		itemName, channelUID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("querying link: %w", err)
	}
	return l, nil
}

// PutLink inserts or replaces a link.
func (r *SQLiteLinkRepository) PutLink(ctx context.Context, l *Link) error {
	if err := l.Validate(); err != nil {
		return err
	}

	configJSON, err := json.Marshal(orEmptyMap(l.Config))
	if err != nil {
		return fmt.Errorf("marshalling link config: %w", err)
	}

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO links (item_name, channel_uid, config, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_name, channel_uid) DO UPDATE SET config = excluded.config`

	_, err = r.db.ExecContext(ctx, query,
		l.ItemName,
		l.ChannelUID,
		string(configJSON),
		l.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting link: %w", err)
	}
	return nil
}

// DeleteLink removes a link.
func (r *SQLiteLinkRepository) DeleteLink(ctx context.Context, itemName, channelUID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM links WHERE item_name = ? AND channel_uid = ?", itemName, channelUID)
	if err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// scanLink scans a row or rows result into a Link.
func scanLink(scanner rowScanner) (*Link, error) {
	var l Link
	var configJSON, createdAt string

	if err := scanner.Scan(&l.ItemName, &l.ChannelUID, &configJSON, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(configJSON), &l.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling link config: %w", err)
	}

	var err error
	l.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &l, nil
}
