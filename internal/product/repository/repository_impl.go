package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/smallbiznis/meridian/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() productdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *productdomain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*productdomain.Product, error) {
	var product productdomain.Product
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}
