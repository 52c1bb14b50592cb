package domain

import "context"

// SubscriberRepository defines the persistence operations over subscriber records.
type SubscriberRepository interface {
	// ListAll returns every subscriber, or ErrNotFound when there are none.
	ListAll(ctx context.Context) ([]*Subscriber, error)
	GetByNumber(ctx context.Context, phoneNumber string) (*Subscriber, error)
	// Upsert inserts or partially updates the record at currentPhoneNumber,
	// renaming it when patch carries a different phone number.
	Upsert(ctx context.Context, currentPhoneNumber string, patch *SubscriberPatch) (*Subscriber, error)
	// Delete removes the record and returns its phone number.
	Delete(ctx context.Context, phoneNumber string) (string, error)
}
