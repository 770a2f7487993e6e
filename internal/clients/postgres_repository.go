package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores clients in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository accepts a *pgxpool.Pool or anything with the same query surface.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("clients: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, phone string) (*Client, error) {
	query := `
		SELECT phone, name, notes, created_at, last_contact, pending_appointment, pending_message
		FROM clients
		WHERE phone = $1
	`
	var c Client
	if err := r.db.QueryRow(ctx, query, phone).Scan(
		&c.Phone,
		&c.Name,
		&c.Notes,
		&c.CreatedAt,
		&c.LastContact,
		&c.PendingAppointment,
		&c.PendingMessage,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("clients: select failed: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, client *Client) error {
	if err := validate(client); err != nil {
		return err
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO clients (phone, name, notes, created_at, last_contact, pending_appointment, pending_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (phone) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		client.Phone,
		client.Name,
		client.Notes,
		client.CreatedAt,
		client.LastContact,
		client.PendingAppointment,
		client.PendingMessage,
	)
	if err != nil {
		return fmt.Errorf("clients: insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientExists
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, client *Client) error {
	if err := validate(client); err != nil {
		return err
	}
	query := `
		UPDATE clients
		SET name = $2, notes = $3, last_contact = $4, pending_appointment = $5, pending_message = $6
		WHERE phone = $1
	`
	tag, err := r.db.Exec(ctx, query,
		client.Phone,
		client.Name,
		client.Notes,
		client.LastContact,
		client.PendingAppointment,
		client.PendingMessage,
	)
	if err != nil {
		return fmt.Errorf("clients: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, phone string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE phone = $1`, phone)
	if err != nil {
		return fmt.Errorf("clients: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}
