package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID         snowflake.ID
	Status        Status
	BankAccountID snowflake.ID
	Cursor        *ListCursor
	Limit         int
}

type ListCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *PaymentReconciliation) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*PaymentReconciliation, error)
	// FindByIDForUpdate locks the session row for the duration of the
	// surrounding transaction.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*PaymentReconciliation, error)
	Update(ctx context.Context, db *gorm.DB, session *PaymentReconciliation) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PaymentReconciliation, error)
	ListSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]PaymentReconciliation, error)
}
