package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Repository reads records of model T for search lookups and bulk sync.
type Repository[T any] struct {
	db     *gorm.DB
	schema *schema.Schema
}

// NewRepository parses the gorm schema of T.
func NewRepository[T any](db *gorm.DB) (*Repository[T], error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if stmt.Schema.PrioritizedPrimaryField == nil {
		return nil, fmt.Errorf("model %s has no primary key", stmt.Schema.Name)
	}
	return &Repository[T]{db: db, schema: stmt.Schema}, nil
}

// column resolves a Go field name to its column. Empty means the primary key.
func (r *Repository[T]) column(field string) (string, error) {
	if field == "" {
		return r.schema.PrioritizedPrimaryField.DBName, nil
	}
	f := r.schema.LookUpField(field)
	if f == nil || f.DBName == "" {
		return "", fmt.Errorf("model %s has no column for field %q", r.schema.Name, field)
	}
	return f.DBName, nil
}

// FindByKeys loads the records whose field is one of keys in a single query.
func (r *Repository[T]) FindByKeys(ctx context.Context, field string, keys []any) ([]T, error) {
	if len(keys) == 0 {
		return []T{}, nil
	}
	col, err := r.column(field)
	if err != nil {
		return nil, err
	}
	var out []T
	err = r.db.WithContext(ctx).
		Where(clause.IN{Column: clause.Column{Name: col}, Values: keys}).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", r.schema.Table, col, err)
	}
	return out, nil
}

// Batches walks the table in primary key order.
func (r *Repository[T]) Batches(ctx context.Context, size, offset int, fn func(batch []T, next int) error) error {
	if size <= 0 {
		return errors.New("batch size must be positive")
	}
	order := clause.OrderByColumn{Column: clause.Column{Name: r.schema.PrioritizedPrimaryField.DBName}}
	for {
		var batch []T
		err := r.db.WithContext(ctx).
			Order(order).
			Offset(offset).
			Limit(size).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("read %s at %d: %w", r.schema.Table, offset, err)
		}
		if len(batch) == 0 {
			return nil
		}
		offset += len(batch)
		if err := fn(batch, offset); err != nil {
			return err
		}
		if len(batch) < size {
			return nil
		}
	}
}

// Count returns the number of rows.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.schema.Table, err)
	}
	return n, nil
}
