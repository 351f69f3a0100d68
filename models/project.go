package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/utils"
)

func newTargetKey() string {
	return uuid.NewString()
}

// Project is an allocation target. Its string key (what allocation rows
// reference) is generated once at creation so targets survive renames.
type Project struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Key        string    `gorm:"size:64;not null;uniqueIndex" json:"key"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CustomerId int       `gorm:"index" json:"customer_id"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	Name       string `json:"name" binding:"required"`
	CustomerId int    `json:"customer_id"`
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Project](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}
	if input.CustomerId > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
			return nil, errors.New("customer not found")
		}
	}

	project := Project{
		BusinessId: businessId,
		Key:        newTargetKey(),
		Name:       input.Name,
		CustomerId: input.CustomerId,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Project](ctx, businessId, id)
}

func GetProjects(ctx context.Context) ([]*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Project](ctx, businessId)
}

// ValidateAllocationTargets checks that every project-type target in a set
// refers to an existing project of the caller's business.
func ValidateAllocationTargets(ctx context.Context, businessId string, allocations []NewAllocation) error {
	keys := make([]string, 0, len(allocations))
	for _, alloc := range allocations {
		if alloc.TargetType == "" || alloc.TargetType == AllocationTargetTypeProject {
			keys = append(keys, alloc.TargetId)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	unqKeys := utils.UniqueSlice(keys)
	count, err := utils.ResourceCountWhere[Project](ctx, businessId, "`key` IN ?", unqKeys)
	if err != nil {
		return err
	}
	if count != int64(len(unqKeys)) {
		return errors.New("allocation target project not found")
	}
	return nil
}
