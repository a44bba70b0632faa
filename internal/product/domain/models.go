package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("product_not_found")

// Product is the catalog entry consulted once per price calculation.
// BasePrice is in minor currency units.
type Product struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Category  string       `json:"category" gorm:"type:text;index"`
	BasePrice int64        `json:"base_price" gorm:"not null"`
	Currency  string       `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Product, error)
}
