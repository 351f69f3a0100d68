package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Allocation assigns a percentage of one document's amount to a target entity
// (project or service). The percentage is canonical; monetary amounts are
// derived for display and never persisted as the source of truth.
type Allocation struct {
	ID            int                     `gorm:"primary_key" json:"id"`
	BusinessId    string                  `gorm:"index;not null" json:"business_id"`
	ReferenceType AllocationReferenceType `gorm:"size:20;index:idx_allocation_ref;not null" json:"reference_type"`
	ReferenceId   int                     `gorm:"index:idx_allocation_ref;not null" json:"reference_id"`
	TargetType    AllocationTargetType    `gorm:"size:20;not null" json:"target_type"`
	TargetId      string                  `gorm:"size:64;not null" json:"target_id"`
	Percentage    decimal.Decimal         `gorm:"type:decimal(7,4);default:0" json:"percentage"`
	SortOrder     int                     `gorm:"default:0" json:"sort_order"`
	CreatedAt     time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAllocation struct {
	TargetType AllocationTargetType `json:"target_type"`
	TargetId   string               `json:"target_id" binding:"required"`
	Percentage decimal.Decimal      `json:"percentage" binding:"required"`
}

// AllocationTargetInput is one split target coming from the UI. Weight is only
// used by the proportional split (e.g. logged hours per project).
type AllocationTargetInput struct {
	TargetType AllocationTargetType `json:"target_type"`
	TargetId   string               `json:"target_id" binding:"required"`
	Weight     decimal.Decimal      `json:"weight"`
}

// AllocationAmount pairs a target's canonical percentage with its derived
// display amount.
type AllocationAmount struct {
	TargetId   string          `json:"target_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

var decimalHundred = decimal.NewFromInt(100)

// maxSplitTargets bounds generated splits. Past 100 targets an even split
// would emit 0% entries, which the validator refuses to save.
const maxSplitTargets = 100

// EvenSplit assigns each target floor(100/N) percent and gives the entire
// remainder to the FIRST entry, so the set always sums to exactly 100.
// The first-entry rule is deliberate and observable; do not switch it to
// largest-wins. An empty target list produces an empty split.
func EvenSplit(targets []AllocationTargetInput) ([]NewAllocation, error) {
	n := len(targets)
	if n == 0 {
		return []NewAllocation{}, nil
	}
	if n > maxSplitTargets {
		return nil, &InvalidInputError{Field: "targets", Reason: "must not exceed 100 entries"}
	}

	base := 100 / n
	remainder := 100 - n*base

	allocations := make([]NewAllocation, 0, n)
	for i, target := range targets {
		pct := base
		if i == 0 {
			pct += remainder
		}
		allocations = append(allocations, NewAllocation{
			TargetType: target.TargetType,
			TargetId:   target.TargetId,
			Percentage: decimal.NewFromInt(int64(pct)),
		})
	}
	return allocations, nil
}

// ProportionalSplit derives percentages from per-target weights (e.g. hours
// logged per project). Each raw percentage is integer-rounded; the rounding
// drift (100 - sum of raws) is added wholly to the entry with the largest raw
// percentage, first such entry winning ties. The result always sums to
// exactly 100. An empty target list produces an empty split; a non-empty list
// whose weights sum to zero is rejected.
func ProportionalSplit(targets []AllocationTargetInput) ([]NewAllocation, error) {
	n := len(targets)
	if n == 0 {
		return []NewAllocation{}, nil
	}
	if n > maxSplitTargets {
		return nil, &InvalidInputError{Field: "targets", Reason: "must not exceed 100 entries"}
	}

	totalWeight := decimal.Zero
	for _, target := range targets {
		if target.Weight.IsNegative() {
			return nil, &InvalidInputError{Field: "weight", Reason: "must not be negative"}
		}
		totalWeight = totalWeight.Add(target.Weight)
	}
	if !totalWeight.GreaterThan(decimal.Zero) {
		return nil, &InvalidInputError{Field: "weight", Reason: "weights must sum to a positive value"}
	}

	raws := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i, target := range targets {
		raws[i] = target.Weight.Div(totalWeight).Mul(decimalHundred).Round(0)
		sum = sum.Add(raws[i])
	}

	drift := decimalHundred.Sub(sum)
	if !drift.IsZero() {
		// First-wins linear scan for the largest raw percentage.
		largest := 0
		for i := 1; i < n; i++ {
			if raws[i].GreaterThan(raws[largest]) {
				largest = i
			}
		}
		raws[largest] = raws[largest].Add(drift)
	}

	allocations := make([]NewAllocation, 0, n)
	for i, target := range targets {
		allocations = append(allocations, NewAllocation{
			TargetType: target.TargetType,
			TargetId:   target.TargetId,
			Percentage: raws[i],
		})
	}
	return allocations, nil
}

// AllocationAmounts derives display amounts from the canonical percentages.
func AllocationAmounts(sourceAmount decimal.Decimal, allocations []NewAllocation) []AllocationAmount {
	amounts := make([]AllocationAmount, 0, len(allocations))
	for _, alloc := range allocations {
		amounts = append(amounts, AllocationAmount{
			TargetId:   alloc.TargetId,
			Percentage: alloc.Percentage,
			Amount:     utils.PercentageAmount(sourceAmount, alloc.Percentage),
		})
	}
	return amounts
}

// ValidateAllocations enforces the save-time rules on a working allocation
// set: every entry references a target, every percentage is > 0 and <= 100,
// and the percentages sum to at most 100 (strict; 100.01 is rejected, not
// clamped). An empty set passes: it means "unallocated".
func ValidateAllocations(allocations []NewAllocation) error {
	sum := decimal.Zero
	for i, alloc := range allocations {
		if alloc.TargetId == "" {
			return &EmptyTargetError{Position: i}
		}
		if !alloc.Percentage.GreaterThan(decimal.Zero) {
			return &InvalidInputError{Field: "percentage", Reason: "must be greater than 0"}
		}
		if alloc.Percentage.GreaterThan(decimalHundred) {
			return &InvalidInputError{Field: "percentage", Reason: "must not exceed 100"}
		}
		sum = sum.Add(alloc.Percentage)
	}
	if sum.GreaterThan(decimalHundred) {
		return &OverAllocationError{Sum: sum}
	}
	return nil
}

// ReplaceAllocations persists a document's allocation set wholesale: the
// existing rows for the reference are deleted and the submitted set is
// inserted in one transaction. There is no incremental update path. The
// redis lock is a best-effort guard against concurrent saves of the same
// document; the transaction is the real serializer.
func ReplaceAllocations(ctx context.Context, referenceType AllocationReferenceType, referenceId int, input []NewAllocation) ([]Allocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := ValidateAllocations(input); err != nil {
		return nil, err
	}

	if locker := config.GetRedisLock(); locker != nil {
		lockKey := fmt.Sprintf("alloc:%s:%d", referenceType, referenceId)
		lock, err := locker.Obtain(ctx, lockKey, 10*time.Second, nil)
		if err == nil {
			defer lock.Release(context.WithoutCancel(ctx))
		} else if err == redislock.ErrNotObtained {
			return nil, errors.New("another save for this document is in progress")
		}
	}

	var allocations []Allocation
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		allocations, txErr = replaceAllocationsInTx(tx, businessId, referenceType, referenceId, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// replaceAllocationsInTx performs the delete-then-insert inside the caller's
// transaction so document save and allocation save commit or roll back
// together. Callers validate the set before entering the transaction.
func replaceAllocationsInTx(tx *gorm.DB, businessId string, referenceType AllocationReferenceType, referenceId int, input []NewAllocation) ([]Allocation, error) {
	allocations := make([]Allocation, 0, len(input))
	for i, alloc := range input {
		targetType := alloc.TargetType
		if targetType == "" {
			targetType = AllocationTargetTypeProject
		}
		allocations = append(allocations, Allocation{
			BusinessId:    businessId,
			ReferenceType: referenceType,
			ReferenceId:   referenceId,
			TargetType:    targetType,
			TargetId:      alloc.TargetId,
			Percentage:    alloc.Percentage,
			SortOrder:     i,
		})
	}

	if err := tx.Where("business_id = ? AND reference_type = ? AND reference_id = ?",
		businessId, referenceType, referenceId).Delete(&Allocation{}).Error; err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return allocations, nil
	}
	if err := tx.Create(&allocations).Error; err != nil {
		return nil, err
	}
	return allocations, nil
}

// GetAllocations loads a document's allocation set in its saved order.
func GetAllocations(ctx context.Context, referenceType AllocationReferenceType, referenceId int) ([]Allocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var allocations []Allocation
	err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("sort_order ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}
