package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on PostgreSQL using pgx directly (no ORM).
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const eventColumns = `id, name, description, capacity, admitted_count, created_at`

const invitationColumns = `id, event_id, invitee_email, token, status, expires_at, responded_at, created_at`

const entryColumns = `id, event_id, invitee_email, name, position, status, joined_at, offered_at, seq`

const membershipColumns = `id, event_id, invitee_email, status, role, created_at, removed_at`

// classify maps driver errors onto the package sentinels.
func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
		case "23505":
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		}
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Capacity, &e.AdmittedCount, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanInvitation(row scanner) (*model.Invitation, error) {
	var inv model.Invitation
	var status string
	if err := row.Scan(&inv.ID, &inv.EventID, &inv.InviteeEmail, &inv.Token, &status,
		&inv.ExpiresAt, &inv.RespondedAt, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Status = model.InvitationStatus(status)
	if !inv.Status.Valid() {
		return nil, fmt.Errorf("invitation %s: unknown status %q", inv.ID, status)
	}
	return &inv, nil
}

func scanEntry(row scanner) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var status string
	if err := row.Scan(&e.ID, &e.EventID, &e.InviteeEmail, &e.Name, &e.Position, &status, &e.JoinedAt, &e.OfferedAt, &e.Seq); err != nil {
		return nil, err
	}
	e.Status = model.WaitlistStatus(status)
	if !e.Status.Valid() {
		return nil, fmt.Errorf("waitlist entry %s: unknown status %q", e.ID, status)
	}
	return &e, nil
}

func scanMembership(row scanner) (*model.MembershipRecord, error) {
	var m model.MembershipRecord
	var status string
	if err := row.Scan(&m.ID, &m.EventID, &m.InviteeEmail, &status, &m.Role, &m.CreatedAt, &m.RemovedAt); err != nil {
		return nil, err
	}
	m.Status = model.MembershipStatus(status)
	if !m.Status.Valid() {
		return nil, fmt.Errorf("membership %s: unknown status %q", m.ID, status)
	}
	return &m, nil
}

func collect[T any](rows pgx.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// CreateEvent inserts a new event.
func (s *PGStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (id, name, description, capacity, admitted_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Name, e.Description, e.Capacity, e.AdmittedCount, e.CreatedAt,
	)
	if err != nil {
		return classify("insert event", err)
	}
	return nil
}

// GetEvent returns a single event or ErrNotFound.
func (s *PGStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, classify("get event", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *PGStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, classify("list events", err)
	}
	events, err := collect(rows, scanEvent)
	if err != nil {
		return nil, classify("scan events", err)
	}
	return events, nil
}

// InvitationByToken looks an invitation up by its public token.
func (s *PGStore) InvitationByToken(ctx context.Context, token string) (*model.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token))
	if err != nil {
		return nil, classify("get invitation", err)
	}
	return inv, nil
}

// OverdueInvitations returns PENDING invitations past their deadline.
func (s *PGStore) OverdueInvitations(ctx context.Context, now time.Time, limit int) ([]model.Invitation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE status = 'PENDING' AND expires_at < $1
		 ORDER BY expires_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, classify("list overdue invitations", err)
	}
	invs, err := collect(rows, scanInvitation)
	if err != nil {
		return nil, classify("scan invitations", err)
	}
	return invs, nil
}

// ListWaitlist returns every waitlist entry of an event in creation order.
func (s *PGStore) ListWaitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entries WHERE event_id = $1 ORDER BY seq ASC`, eventID)
	if err != nil {
		return nil, classify("list waitlist", err)
	}
	entries, err := collect(rows, scanEntry)
	if err != nil {
		return nil, classify("scan waitlist", err)
	}
	return entries, nil
}

// ListMemberships returns every membership record of an event.
func (s *PGStore) ListMemberships(ctx context.Context, eventID string) ([]model.MembershipRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, classify("list memberships", err)
	}
	members, err := collect(rows, scanMembership)
	if err != nil {
		return nil, classify("scan memberships", err)
	}
	return members, nil
}

// StaleOffers returns INVITED entries whose offer is older than cutoff.
func (s *PGStore) StaleOffers(ctx context.Context, cutoff time.Time, limit int) ([]model.WaitlistEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entries
		 WHERE status = 'INVITED' AND offered_at < $1
		 ORDER BY offered_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, classify("list stale offers", err)
	}
	entries, err := collect(rows, scanEntry)
	if err != nil {
		return nil, classify("scan stale offers", err)
	}
	return entries, nil
}

// EventsAwaitingPromotion returns events with WAITING entries and seats
// that are neither taken nor already offered.
func (s *PGStore) EventsAwaitingPromotion(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id FROM events e
		 WHERE EXISTS (
		     SELECT 1 FROM waitlist_entries w
		     WHERE w.event_id = e.id AND w.status = 'WAITING'
		 )
		 AND (
		     e.capacity IS NULL OR
		     e.admitted_count + (
		         SELECT COUNT(*) FROM waitlist_entries w
		         WHERE w.event_id = e.id AND w.status = 'INVITED'
		     ) < e.capacity
		 )
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, classify("list events awaiting promotion", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan event id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list events awaiting promotion", err)
	}
	return ids, nil
}

// InEvent runs fn inside a transaction that holds the event row lock.
//
// ─────────────────────────────────────────────────────────────────────────────
// WHY THE ROW LOCK
// ─────────────────────────────────────────────────────────────────────────────
//
// Reading admitted_count and then writing it back in two statements lets two
// transactions both see the last free seat:
//
//	tx A: SELECT admitted_count → 9   (capacity 10)
//	tx B: SELECT admitted_count → 9
//	tx A: INSERT membership, admitted_count = 10
//	tx B: INSERT membership, admitted_count = 10   → 11 members, overbooked
//
// SELECT … FOR UPDATE takes an exclusive lock on the event row, so a second
// InEvent for the same event blocks until the first commits or rolls back.
// The same lock also serialises waitlist position repair for that event.
// The counter itself is bumped by a conditional UPDATE as well, so the
// capacity check never depends on a value read earlier.
// ─────────────────────────────────────────────────────────────────────────────
func (s *PGStore) InEvent(ctx context.Context, eventID string, fn func(tx Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		err = classify("lock event row", err)
		return err
	}

	if err = fn(&pgTx{tx: tx, event: event}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		err = classify("commit transaction", err)
		return err
	}
	return nil
}
