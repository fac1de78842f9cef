package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one audited command.
type Entry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Attribute string    `json:"attribute"`
	Channel   *int      `json:"channel,omitempty"`
	Value     string    `json:"value,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Actions and sources.
const (
	ActionSet = "set"

	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Filter controls which entries List returns.
type Filter struct {
	Attribute string // optional
	Source    string // optional: http or mqtt
	Failed    bool   // only unsuccessful commands
	Limit     int    // default 50, max 200
	Offset    int
}

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout has a fixed width so that created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// ListResult is one page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID, Action and CreatedAt are filled in when
// empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()[:8]
	}
	if e.Action == "" {
		e.Action = ActionSet
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var channel any
	if e.Channel != nil {
		channel = *e.Channel
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, attribute, channel, value, success, error, source, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.Attribute, channel,
		nullable(e.Value), boolInt(e.Success), nullable(e.Error),
		e.Source, nullable(e.RequestID),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Attribute != "" {
		conditions = append(conditions, "attribute = ?")
		args = append(args, filter.Attribute)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Failed {
		conditions = append(conditions, "success = 0")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // conditions are constant fragments
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := "SELECT id, action, attribute, channel, value, success, error, source, request_id, created_at FROM audit_logs " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                         Entry
			channel                   sql.NullInt64
			value, errText, requestID sql.NullString
			success                   int
			createdAt                 string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Attribute, &channel, &value,
			&success, &errText, &e.Source, &requestID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if channel.Valid {
			ch := int(channel.Int64)
			e.Channel = &ch
		}
		e.Value = value.String
		e.Error = errText.String
		e.RequestID = requestID.String
		e.Success = success != 0

		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
