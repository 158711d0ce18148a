package repository

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/jackc/pgx/v5"
)

// pgTx is a Tx bound to one locked event row.
type pgTx struct {
	tx    pgx.Tx
	event *model.Event
}

func (t *pgTx) Event() *model.Event {
	return t.event
}

func (t *pgTx) TryIncrementAdmitted(ctx context.Context) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events SET admitted_count = admitted_count + 1
		 WHERE id = $1 AND (capacity IS NULL OR admitted_count < capacity)`,
		t.event.ID,
	)
	if err != nil {
		return false, classify("increment admitted_count", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	t.event.AdmittedCount++
	return true, nil
}

func (t *pgTx) DecrementAdmitted(ctx context.Context) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE events SET admitted_count = GREATEST(admitted_count - 1, 0) WHERE id = $1`,
		t.event.ID,
	)
	if err != nil {
		return classify("decrement admitted_count", err)
	}
	if t.event.AdmittedCount > 0 {
		t.event.AdmittedCount--
	}
	return nil
}

func (t *pgTx) ConfirmedMembership(ctx context.Context, email string) (*model.MembershipRecord, error) {
	m, err := scanMembership(t.tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM memberships
		 WHERE event_id = $1 AND invitee_email = $2 AND status = 'CONFIRMED'`,
		t.event.ID, email,
	))
	if err != nil {
		return nil, classify("get membership", err)
	}
	return m, nil
}

func (t *pgTx) InsertMembership(ctx context.Context, m *model.MembershipRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO memberships (id, event_id, invitee_email, status, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.EventID, m.InviteeEmail, string(m.Status), m.Role, m.CreatedAt,
	)
	if err != nil {
		return classify("insert membership", err)
	}
	return nil
}

func (t *pgTx) RemoveMembership(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE memberships SET status = 'REMOVED', removed_at = $2
		 WHERE id = $1 AND status = 'CONFIRMED'`,
		id, at,
	)
	if err != nil {
		return classify("remove membership", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ActiveEntry(ctx context.Context, email string) (*model.WaitlistEntry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entries
		 WHERE event_id = $1 AND invitee_email = $2 AND status IN ('WAITING', 'INVITED')`,
		t.event.ID, email,
	))
	if err != nil {
		return nil, classify("get waitlist entry", err)
	}
	return e, nil
}

func (t *pgTx) ActiveEntries(ctx context.Context) ([]model.WaitlistEntry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+entryColumns+` FROM waitlist_entries
		 WHERE event_id = $1 AND status IN ('WAITING', 'INVITED')
		 ORDER BY position ASC`,
		t.event.ID,
	)
	if err != nil {
		return nil, classify("list active entries", err)
	}
	entries, err := collect(rows, scanEntry)
	if err != nil {
		return nil, classify("scan active entries", err)
	}
	return entries, nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e *model.WaitlistEntry) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO waitlist_entries (id, event_id, invitee_email, name, position, status, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		e.ID, e.EventID, e.InviteeEmail, e.Name, e.Position, string(e.Status), e.JoinedAt,
	).Scan(&e.Seq)
	if err != nil {
		return classify("insert waitlist entry", err)
	}
	return nil
}

func (t *pgTx) SetEntryStatus(ctx context.Context, id string, status model.WaitlistStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE waitlist_entries SET status = $2, offered_at = NULL WHERE id = $1 AND event_id = $3`,
		id, string(status), t.event.ID,
	)
	if err != nil {
		return classify("update waitlist entry", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) OfferEntry(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE waitlist_entries SET status = 'INVITED', offered_at = $2
		 WHERE id = $1 AND event_id = $3 AND status = 'WAITING'`,
		id, at, t.event.ID,
	)
	if err != nil {
		return classify("offer waitlist entry", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) RequeueEntry(ctx context.Context, id string, position int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE waitlist_entries SET status = 'WAITING', offered_at = NULL, position = $2
		 WHERE id = $1 AND event_id = $3`,
		id, position, t.event.ID,
	)
	if err != nil {
		return classify("requeue waitlist entry", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ShiftPositionsAfter(ctx context.Context, position int) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE waitlist_entries SET position = position - 1
		 WHERE event_id = $1 AND status IN ('WAITING', 'INVITED') AND position > $2`,
		t.event.ID, position,
	)
	if err != nil {
		return classify("repair waitlist positions", err)
	}
	return nil
}

func (t *pgTx) PendingInvitation(ctx context.Context, email string) (*model.Invitation, error) {
	inv, err := scanInvitation(t.tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE event_id = $1 AND invitee_email = $2 AND status = 'PENDING'
		 FOR UPDATE`,
		t.event.ID, email,
	))
	if err != nil {
		return nil, classify("get pending invitation", err)
	}
	return inv, nil
}

func (t *pgTx) InvitationForUpdate(ctx context.Context, id string) (*model.Invitation, error) {
	inv, err := scanInvitation(t.tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE id = $1 AND event_id = $2
		 FOR UPDATE`,
		id, t.event.ID,
	))
	if err != nil {
		return nil, classify("lock invitation", err)
	}
	return inv, nil
}

func (t *pgTx) InsertInvitation(ctx context.Context, inv *model.Invitation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO invitations (id, event_id, invitee_email, token, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.EventID, inv.InviteeEmail, inv.Token, string(inv.Status), inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		return classify("insert invitation", err)
	}
	return nil
}

func (t *pgTx) ResolveInvitation(ctx context.Context, id string, status model.InvitationStatus, respondedAt *time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE invitations SET status = $2, responded_at = $3
		 WHERE id = $1 AND status = 'PENDING'`,
		id, string(status), respondedAt,
	)
	if err != nil {
		return false, classify("resolve invitation", err)
	}
	return tag.RowsAffected() == 1, nil
}
