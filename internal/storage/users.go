package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"coinalerts/internal/errs"
)

const (
	getUserContactSQL = `SELECT id, name, email, phone_number, subscribed, premium
    FROM users
    WHERE id = $1;`

	getUserContactsSQL = `SELECT id, name, email, phone_number, subscribed, premium
    FROM users
    WHERE id = ANY($1);`
)

// ContactStore resolves user contact and subscription state. Owned by the
// external account surface; only batch reads are needed here.
type ContactStore interface {
	GetContact(ctx context.Context, userID int64) (UserContact, error)
	GetContacts(ctx context.Context, userIDs []int64) (map[int64]UserContact, error)
}

// GetContact fetches one user's contact projection.
func (s *Store) GetContact(ctx context.Context, userID int64) (UserContact, error) {
	pool, err := s.getPool()
	if err != nil {
		return UserContact{}, err
	}

	var contact UserContact
	scanErr := pool.QueryRow(ctx, getUserContactSQL, userID).
		Scan(&contact.UserID, &contact.Name, &contact.Email, &contact.PhoneNumber, &contact.Subscribed, &contact.Premium)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return UserContact{}, errs.NotFound("user %d", userID)
	}
	if scanErr != nil {
		return UserContact{}, fmt.Errorf("get user contact: %w", scanErr)
	}
	return contact, nil
}

// GetContacts resolves a set of users in one query. Missing ids are simply
// absent from the map.
func (s *Store) GetContacts(ctx context.Context, userIDs []int64) (map[int64]UserContact, error) {
	contacts := make(map[int64]UserContact, len(userIDs))
	if len(userIDs) == 0 {
		return contacts, nil
	}

	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getUserContactsSQL, userIDs)
	if queryErr != nil {
		return nil, fmt.Errorf("get user contacts: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var contact UserContact
		if err := rows.Scan(&contact.UserID, &contact.Name, &contact.Email, &contact.PhoneNumber, &contact.Subscribed, &contact.Premium); err != nil {
			return nil, err
		}
		contacts[contact.UserID] = contact
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return contacts, nil
}

var _ ContactStore = (*Store)(nil)
