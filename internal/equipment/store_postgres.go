package equipment

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kneutral-org/itconsole/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

const selectColumns = `SELECT id, name, online, last_updated, estimation, document, created_at FROM equipment`

// document is the JSONB payload holding the descriptive part of a record.
type document struct {
	Owner           string      `json:"owner,omitempty"`
	Department      string      `json:"department,omitempty"`
	Division        string      `json:"division,omitempty"`
	OSVersion       string      `json:"osVersion,omitempty"`
	IPAddress       IPAddress   `json:"ipAddress"`
	AnyDesk         string      `json:"anyDesk,omitempty"`
	TeamViewer      string      `json:"teamViewer,omitempty"`
	Printer         *Printer    `json:"printer,omitempty"`
	Components      []Component `json:"components"`
	Disks           []Disk      `json:"disks"`
	InventoryNumber string      `json:"inventoryNumber,omitempty"`
}

func documentOf(r *Record) document {
	return document{
		Owner:           r.Owner,
		Department:      r.Department,
		Division:        r.Division,
		OSVersion:       r.OSVersion,
		IPAddress:       r.IPAddress,
		AnyDesk:         r.AnyDesk,
		TeamViewer:      r.TeamViewer,
		Printer:         r.Printer,
		Components:      r.Components,
		Disks:           r.Disks,
		InventoryNumber: r.InventoryNumber,
	}
}

func (d document) applyTo(r *Record) {
	r.Owner = d.Owner
	r.Department = d.Department
	r.Division = d.Division
	r.OSVersion = d.OSVersion
	r.IPAddress = d.IPAddress
	r.AnyDesk = d.AnyDesk
	r.TeamViewer = d.TeamViewer
	r.Printer = d.Printer
	r.Components = d.Components
	r.Disks = d.Disks
	r.InventoryNumber = d.InventoryNumber
	if r.InventoryNumber == "" {
		r.InventoryNumber = UnknownInventoryNumber
	}
}

// PostgresStore implements Store on PostgreSQL, keeping the descriptive part
// of each record in a JSONB document and liveness in indexed columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the equipment table and its indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply equipment schema: %w", err)
	}
	return nil
}

// Get retrieves a record by device name.
func (s *PostgresStore) Get(ctx context.Context, name string) (*Record, error) {
	defer observe("get")()

	r, err := scanRecord(s.pool.QueryRow(ctx, selectColumns+` WHERE name = $1`, name))
	if err != nil {
		return nil, fmt.Errorf("query equipment by name: %w", err)
	}
	return r, nil
}

// GetByID retrieves a record by its ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Record, error) {
	defer observe("get_by_id")()

	r, err := scanRecord(s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("query equipment by id: %w", err)
	}
	return r, nil
}

// List retrieves records matching the filter, ordered by name.
func (s *PostgresStore) List(ctx context.Context, filter *ListFilter) ([]*Record, error) {
	defer observe("list")()

	query := selectColumns + ` WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter != nil {
		if filter.Name != "" {
			query += fmt.Sprintf(" AND name = $%d", argIndex)
			args = append(args, filter.Name)
			argIndex++
		}
		if filter.Online != nil {
			query += fmt.Sprintf(" AND online = $%d", argIndex)
			args = append(args, *filter.Online)
			argIndex++
		}
		for _, field := range []struct {
			key   string
			value string
		}{
			{"owner", filter.Owner},
			{"department", filter.Department},
			{"division", filter.Division},
			{"inventoryNumber", filter.InventoryNumber},
		} {
			if field.value == "" {
				continue
			}
			query += fmt.Sprintf(" AND document->>'%s' = $%d", field.key, argIndex)
			args = append(args, field.value)
			argIndex++
		}
	}

	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}
	return collectRecords(rows)
}

// Upsert creates or replaces the record for name with the result of fn.
// The row is created if missing and locked with SELECT ... FOR UPDATE, so
// concurrent upserts for one name run one after another.
func (s *PostgresStore) Upsert(ctx context.Context, name string, fn MergeFunc) (*Record, error) {
	defer observe("upsert")()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO equipment (id, name, document)
		VALUES ($1, $2, '{}'::jsonb)
		ON CONFLICT (name) DO NOTHING
	`, uuid.New().String(), name)
	if err != nil {
		return nil, fmt.Errorf("reserve equipment row: %w", err)
	}
	created := tag.RowsAffected() == 1

	current, err := scanRecord(tx.QueryRow(ctx, selectColumns+` WHERE name = $1 FOR UPDATE`, name))
	if err != nil {
		return nil, fmt.Errorf("lock equipment row: %w", err)
	}

	var existing *Record
	if !created {
		existing = current.Clone()
	}

	next, err := fn(existing)
	if err != nil {
		return nil, err
	}
	next = next.Clone()
	next.ID = current.ID
	next.Name = name
	next.CreatedAt = current.CreatedAt

	doc, err := json.Marshal(documentOf(next))
	if err != nil {
		return nil, fmt.Errorf("marshal equipment document: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE equipment SET online = $2, last_updated = $3, estimation = $4, document = $5
		WHERE id = $1
	`, next.ID, next.Online, next.LastUpdated, next.Estimation, doc); err != nil {
		return nil, fmt.Errorf("write equipment row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return next, nil
}

// SetEstimation stores the performance score of a record.
func (s *PostgresStore) SetEstimation(ctx context.Context, name string, score float64) error {
	defer observe("set_estimation")()

	tag, err := s.pool.Exec(ctx, `UPDATE equipment SET estimation = $2 WHERE name = $1`, name, score)
	if err != nil {
		return fmt.Errorf("update estimation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch marks a known device online as of at.
func (s *PostgresStore) Touch(ctx context.Context, name string, at time.Time) (*Record, error) {
	defer observe("touch")()

	r, err := scanRecord(s.pool.QueryRow(ctx, `
		UPDATE equipment SET online = TRUE, last_updated = $2
		WHERE name = $1
		RETURNING id, name, online, last_updated, estimation, document, created_at
	`, name, at))
	if err != nil {
		return nil, fmt.Errorf("touch equipment: %w", err)
	}
	return r, nil
}

// MarkOffline flips every online record last updated before cutoff in a
// single statement and returns the flipped records.
func (s *PostgresStore) MarkOffline(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	defer observe("mark_offline")()

	rows, err := s.pool.Query(ctx, `
		UPDATE equipment SET online = FALSE
		WHERE online AND last_updated < $1
		RETURNING id, name, online, last_updated, estimation, document, created_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("mark equipment offline: %w", err)
	}
	return collectRecords(rows)
}

// Update applies an operator edit to the record with the given ID.
func (s *PostgresStore) Update(ctx context.Context, id string, patch *RecordPatch) (*Record, error) {
	if patch.Empty() {
		return nil, ErrInvalidPatch
	}
	defer observe("update")()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := scanRecord(tx.QueryRow(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock equipment row: %w", err)
	}
	if err := applyPatch(r, patch); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(documentOf(r))
	if err != nil {
		return nil, fmt.Errorf("marshal equipment document: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE equipment SET document = $2 WHERE id = $1`, id, doc); err != nil {
		return nil, fmt.Errorf("update equipment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return r, nil
}

// Delete removes a record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	defer observe("delete")()

	tag, err := s.pool.Exec(ctx, "DELETE FROM equipment WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete equipment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	r := &Record{}
	var doc []byte
	err := row.Scan(&r.ID, &r.Name, &r.Online, &r.LastUpdated, &r.Estimation, &doc, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var d document
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("decode equipment document: %w", err)
		}
	}
	d.applyTo(r)
	return r, nil
}

func collectRecords(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.RecordDatabaseQuery(operation, time.Since(start).Seconds())
	}
}
