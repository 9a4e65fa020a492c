package repository

import (
	"context"
	"fmt"
	"time"
)

// Notification is one inbox row for a requester.
type Notification struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"recipient_id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// InsertNotification stores one inbox notification.
func (q *Queries) InsertNotification(ctx context.Context, n Notification) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO notifications (id, recipient_id, kind, title, message, resource_type, resource_id, read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, now())`,
		n.ID,
		n.RecipientID,
		n.Kind,
		n.Title,
		n.Message,
		n.ResourceType,
		n.ResourceID,
	)
	if err != nil {
		return fmt.Errorf("insert notification for %s: %w", n.RecipientID, err)
	}
	return nil
}

// ListNotifications returns a recipient's inbox, newest first.
func (q *Queries) ListNotifications(ctx context.Context, recipientID string) ([]Notification, error) {
	return q.ListInbox(ctx, []string{recipientID})
}

// ListInbox returns the merged inbox of several recipients, newest first.
// Folding the shared reviewer inbox into a user's own happens here so the
// merged result keeps one global ordering.
func (q *Queries) ListInbox(ctx context.Context, recipientIDs []string) ([]Notification, error) {
	rows, err := q.db.Query(ctx, `
        SELECT id, recipient_id, kind, title, message, resource_type, resource_id, read, created_at
        FROM notifications
        WHERE recipient_id = ANY($1)
        ORDER BY created_at DESC, id DESC`,
		recipientIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %v: %w", recipientIDs, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Kind,
			&n.Title,
			&n.Message,
			&n.ResourceType,
			&n.ResourceID,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one inbox row as read.
func (q *Queries) MarkNotificationRead(ctx context.Context, id, recipientID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
        UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`,
		id,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteNotificationsBefore removes inbox rows older than cutoff; used by the
// retention cleanup job.
func (q *Queries) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
