package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// Tax is a configured tax rate the UI offers when composing item or document
// taxes. Documents snapshot the name and rate at calculation time; editing a
// master later never rewrites computed documents.
type Tax struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"index;not null" json:"business_id" binding:"required"`
	Name       string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Rate       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate" binding:"required"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTax struct {
	Name string          `json:"name" binding:"required"`
	Rate decimal.Decimal `json:"rate" binding:"required"`
}

func taxCacheKey(businessId string, id int) string {
	return fmt.Sprintf("Tax:%s:%d", businessId, id)
}

// validate input for both create & update. (id = 0 for create)
func (input *NewTax) validate(ctx context.Context, businessId string, id int) error {
	if input.Rate.IsNegative() || input.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return &InvalidInputError{Field: "rate", Reason: "must be between 0 and 100"}
	}
	return utils.ValidateUnique[Tax](ctx, businessId, "name", input.Name, id)
}

func CreateTax(ctx context.Context, input *NewTax) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	tax := Tax{
		BusinessId: businessId,
		Name:       input.Name,
		Rate:       input.Rate,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&tax).Error; err != nil {
		return nil, err
	}
	return &tax, nil
}

func UpdateTax(ctx context.Context, id int, input *NewTax) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	tax, err := utils.FetchModel[Tax](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	tax.Name = input.Name
	tax.Rate = input.Rate

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(tax).Error; err != nil {
		return nil, err
	}
	// Drop the cached copy so rate lookups see the new value.
	if err := config.RemoveRedisKey(taxCacheKey(businessId, id)); err != nil {
		config.LogError(config.GetLogger(), "tax.go", "UpdateTax", "RemoveRedisKey", id, err)
	}
	return tax, nil
}

func GetTax(ctx context.Context, id int) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var cached Tax
	found, err := config.GetRedisObject(taxCacheKey(businessId, id), &cached)
	if err == nil && found {
		return &cached, nil
	}

	tax, err := utils.FetchModel[Tax](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(taxCacheKey(businessId, id), tax, time.Hour); err != nil {
		config.LogError(config.GetLogger(), "tax.go", "GetTax", "SetRedisObject", id, err)
	}
	return tax, nil
}

func GetTaxes(ctx context.Context) ([]*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Tax](ctx, businessId)
}

func DeleteTax(ctx context.Context, id int) (*Tax, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	tax, err := utils.FetchModel[Tax](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(tax).Error; err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(taxCacheKey(businessId, id)); err != nil {
		config.LogError(config.GetLogger(), "tax.go", "DeleteTax", "RemoveRedisKey", id, err)
	}
	return tax, nil
}
