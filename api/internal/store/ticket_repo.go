package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ticket-proxy/api/internal/ticket"
)

var ErrNotFound = sql.ErrNoRows

const schema = `
create table if not exists tickets (
	id           bigserial primary key,
	created_at   timestamptz not null default now(),
	payload_hash text not null,
	engine       text not null,
	model        text not null,
	strategy     text not null,
	attempts     int  not null,
	fallbacks    text not null default '',
	result_json  jsonb not null,
	client_name  text,
	phone        text,
	price        text,
	model_name   text,
	imei         text
);
create index if not exists tickets_payload_hash_idx on tickets (payload_hash, created_at desc);`

// TicketRepo journals extracted records in Postgres.
type TicketRepo struct{ DB *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{DB: db} }

// Entry is one extraction to journal.
type Entry struct {
	PayloadHash string
	Engine      string
	Model       string
	Strategy    string
	Attempts    int
	Fallbacks   []string
	Record      ticket.Record
}

// TicketRow is a journaled extraction.
type TicketRow struct {
	ID          int64
	CreatedAt   time.Time
	PayloadHash string
	Engine      string
	Model       string
	Strategy    string
	Attempts    int
	Fallbacks   []string
	Record      ticket.Record
}

func (r *TicketRepo) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

func (r *TicketRepo) Insert(ctx context.Context, e Entry) error {
	js, err := json.Marshal(e.Record)
	if err != nil {
		return err
	}
	t := e.Record.Ticket()
	const q = `
insert into tickets(payload_hash, engine, model, strategy, attempts, fallbacks, result_json,
                    client_name, phone, price, model_name, imei)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = r.DB.ExecContext(ctx, q,
		e.PayloadHash, e.Engine, e.Model, e.Strategy, e.Attempts, strings.Join(e.Fallbacks, ","), js,
		nullable(t.ClientName), nullable(t.Phone), nullable(t.Price), nullable(t.Model), nullable(t.IMEI))
	return err
}

// FindByHash returns the freshest row for hash. With maxAge > 0 older rows count as missing.
func (r *TicketRepo) FindByHash(ctx context.Context, hash string, maxAge time.Duration) (*TicketRow, error) {
	const q = `
select id, created_at, payload_hash, engine, model, strategy, attempts, fallbacks, result_json
from tickets
where payload_hash = $1
order by created_at desc
limit 1`
	var (
		row       TicketRow
		fallbacks string
		js        []byte
	)
	err := r.DB.QueryRowContext(ctx, q, hash).Scan(&row.ID, &row.CreatedAt, &row.PayloadHash,
		&row.Engine, &row.Model, &row.Strategy, &row.Attempts, &fallbacks, &js)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	if err := dec.Decode(&row.Record); err != nil {
		// broken JSON counts as not found
		return nil, ErrNotFound
	}
	if fallbacks != "" {
		row.Fallbacks = strings.Split(fallbacks, ",")
	}
	return &row, nil
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
