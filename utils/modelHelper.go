package utils

import (
	"context"

	"github.com/dlvery/dlvery_backend/config"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch all models from db
func FetchAllModels[T any](ctx context.Context, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return results, nil
}

// count rows of T matching the condition
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	db := config.GetDB()
	var v T
	var count int64
	err := db.WithContext(ctx).Model(&v).Where(condition, value...).Count(&count).Error
	return count, err
}

// ValidateUnique returns a Conflict error when another row of T already
// holds the value in the given column. exceptId skips the row being updated.
func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	db := config.GetDB()
	var v T
	query := db.WithContext(ctx).Model(&v).Where(column+" = ?", value)
	if exceptId != nil {
		query = query.Where("id != ?", exceptId)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ConflictError("%s already exists", column)
	}
	return nil
}
