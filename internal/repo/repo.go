package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"table1837/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q runs on tx when one is given, otherwise on the pool.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const itemColumns = `id,name,category,added_by,added_at,COALESCE(reason,''),COALESCE(estimated_return,'')`

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.EightySixItem) error {
	var ret any
	if it.EstimatedReturn != nil {
		ret = formatTime(*it.EstimatedReturn)
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO eighty_six_items(id,name,category,added_by,added_at,reason,estimated_return,seq)
VALUES (?,?,?,?,?,?,?,(SELECT COALESCE(MAX(seq),0)+1 FROM eighty_six_items))`,
		it.ID, it.Name, string(it.Category), it.AddedBy, formatTime(it.AddedAt), nullable(it.Reason), ret)
	return err
}

func (r Repo) GetItem(ctx context.Context, tx *sql.Tx, id string) (domain.EightySixItem, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM eighty_six_items WHERE id=?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return it, ErrNotFound
	}
	return it, err
}

func (r Repo) DeleteItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM eighty_six_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns the active 86 list in the order items were added.
func (r Repo) ListItems(ctx context.Context) ([]domain.EightySixItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+itemColumns+` FROM eighty_six_items ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.EightySixItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (domain.EightySixItem, error) {
	var it domain.EightySixItem
	var category, addedAt, ret string
	if err := s.Scan(&it.ID, &it.Name, &category, &it.AddedBy, &addedAt, &it.Reason, &ret); err != nil {
		return it, err
	}
	it.Category = domain.Category(category)
	t, err := parseTime(addedAt)
	if err != nil {
		return it, fmt.Errorf("item %s added_at: %w", it.ID, err)
	}
	it.AddedAt = t
	if ret != "" {
		t, err := parseTime(ret)
		if err != nil {
			return it, fmt.Errorf("item %s estimated_return: %w", it.ID, err)
		}
		it.EstimatedReturn = &t
	}
	return it, nil
}

func (r Repo) UpsertCompletion(ctx context.Context, tx *sql.Tx, c domain.TaskCompletion) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO checklist_completions(checklist_id,task_id,completed_by,completed_at) VALUES (?,?,?,?)
ON CONFLICT(checklist_id,task_id) DO UPDATE SET completed_by=excluded.completed_by, completed_at=excluded.completed_at`,
		c.ChecklistID, c.TaskID, c.CompletedBy, formatTime(c.CompletedAt))
	return err
}

func (r Repo) DeleteCompletion(ctx context.Context, tx *sql.Tx, checklistID, taskID string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM checklist_completions WHERE checklist_id=? AND task_id=?`, checklistID, taskID)
	return err
}

// ListCompletions returns persisted sign-offs, for one checklist when
// checklistID is set.
func (r Repo) ListCompletions(ctx context.Context, tx *sql.Tx, checklistID string) ([]domain.TaskCompletion, error) {
	query := `SELECT checklist_id,task_id,completed_by,completed_at FROM checklist_completions`
	var args []any
	if checklistID != "" {
		query += ` WHERE checklist_id=?`
		args = append(args, checklistID)
	}
	query += ` ORDER BY checklist_id, task_id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskCompletion
	for rows.Next() {
		var c domain.TaskCompletion
		var at string
		if err := rows.Scan(&c.ChecklistID, &c.TaskID, &c.CompletedBy, &at); err != nil {
			return nil, err
		}
		if c.CompletedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ClearCompletions resets sign-offs, all of them when checklistID is empty.
func (r Repo) ClearCompletions(ctx context.Context, tx *sql.Tx, checklistID string) (int64, error) {
	query := `DELETE FROM checklist_completions`
	var args []any
	if checklistID != "" {
		query += ` WHERE checklist_id=?`
		args = append(args, checklistID)
	}
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type EventFilters struct {
	Type       string
	Channel    string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     int64
}

// LatestEvents returns events newest first; Cursor pages to ids below it.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Channel != "" {
		clauses = append(clauses, "channel=?")
		args = append(args, f.Channel)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(channel,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,COALESCE(channel,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Channel, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// SaveChannelMessage stores a broadcast payload verbatim.
func (r Repo) SaveChannelMessage(ctx context.Context, msg domain.ChannelMessage) error {
	if msg.TS == "" {
		msg.TS = formatTime(time.Now())
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO channel_messages(channel,event,payload_json,ts) VALUES (?,?,?,?)`,
		msg.Channel, msg.Event, msg.Payload, msg.TS)
	return err
}

// ChannelMessages returns the most recent messages of channel, oldest first.
func (r Repo) ChannelMessages(ctx context.Context, channel string, limit int) ([]domain.ChannelMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,channel,event,payload_json,ts FROM (
  SELECT id,channel,event,payload_json,ts FROM channel_messages WHERE channel=? ORDER BY id DESC LIMIT ?
) ORDER BY id ASC`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChannelMessage
	for rows.Next() {
		var m domain.ChannelMessage
		if err := rows.Scan(&m.ID, &m.Channel, &m.Event, &m.Payload, &m.TS); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
