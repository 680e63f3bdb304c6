package store

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pendingDeletes = "meilisync:pending_deletes:"

// Hooks receives row mutations of model T. *meilisync.Index[T] implements it.
type Hooks[T any] interface {
	Saved(ctx context.Context, item *T) error
	Deleted(ctx context.Context, item *T) error
}

// Bind registers gorm callbacks that forward created, updated and deleted
// rows of T to hooks. Hook errors are added to the statement, so the
// surrounding transaction is rolled back and the caller sees them.
//
// Deletes through an empty model (db.Delete(&T{}, id) or
// db.Where(...).Delete(&T{})) load the matching rows before the delete
// runs, so their documents are removed too.
func Bind[T any](db *gorm.DB, hooks Hooks[T]) error {
	typ := reflect.TypeFor[T]()
	name := typ.PkgPath() + "." + typ.Name()

	cb := db.Callback()
	if err := cb.Create().After("gorm:create").Register("meilisync:saved:"+name, forward(typ, hooks.Saved)); err != nil {
		return fmt.Errorf("register create callback: %w", err)
	}
	if err := cb.Update().After("gorm:update").Register("meilisync:saved:"+name, forward(typ, hooks.Saved)); err != nil {
		return fmt.Errorf("register update callback: %w", err)
	}
	if err := cb.Delete().Before("gorm:delete").Register("meilisync:collect:"+name, collect[T](typ, name)); err != nil {
		return fmt.Errorf("register delete callback: %w", err)
	}
	if err := cb.Delete().After("gorm:delete").Register("meilisync:deleted:"+name, forwardDeleted(typ, name, hooks.Deleted)); err != nil {
		return fmt.Errorf("register delete callback: %w", err)
	}
	return nil
}

func forward[T any](typ reflect.Type, hook func(context.Context, *T) error) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if !matches(tx, typ) {
			return
		}
		// Bulk updates carry an empty model; there is no row to mirror.
		run(tx, hook, keyed[T](tx))
	}
}

// collect loads the rows a key- or condition-based delete is about to remove.
func collect[T any](typ reflect.Type, name string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if !matches(tx, typ) || len(keyed[T](tx)) > 0 {
			return
		}
		c, ok := tx.Statement.Clauses["WHERE"]
		if !ok {
			return
		}
		where, ok := c.Expression.(clause.Where)
		if !ok || len(where.Exprs) == 0 {
			return
		}
		var rows []T
		err := tx.Session(&gorm.Session{NewDB: true}).
			WithContext(tx.Statement.Context).
			Model(new(T)).
			Clauses(clause.Where{Exprs: where.Exprs}).
			Find(&rows).Error
		if err != nil {
			_ = tx.AddError(fmt.Errorf("load rows to delete: %w", err))
			return
		}
		tx.Statement.Settings.Store(pendingDeletes+name, rows)
	}
}

func forwardDeleted[T any](typ reflect.Type, name string, hook func(context.Context, *T) error) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if !matches(tx, typ) {
			return
		}
		targets := keyed[T](tx)
		if v, ok := tx.Statement.Settings.LoadAndDelete(pendingDeletes + name); ok && len(targets) == 0 {
			rows := v.([]T)
			for i := range rows {
				targets = append(targets, &rows[i])
			}
		}
		run(tx, hook, targets)
	}
}

func matches(tx *gorm.DB, typ reflect.Type) bool {
	return tx.Error == nil && tx.Statement.Schema != nil && tx.Statement.Schema.ModelType == typ
}

// keyed returns the statement's rows whose primary key is set.
func keyed[T any](tx *gorm.DB) []*T {
	ctx := tx.Statement.Context
	pk := tx.Statement.Schema.PrioritizedPrimaryField
	var out []*T
	for _, item := range items[T](tx.Statement.ReflectValue) {
		if pk != nil {
			if _, zero := pk.ValueOf(ctx, reflect.ValueOf(item).Elem()); zero {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

func run[T any](tx *gorm.DB, hook func(context.Context, *T) error, targets []*T) {
	for _, item := range targets {
		if err := hook(tx.Statement.Context, item); err != nil {
			_ = tx.AddError(err)
			return
		}
	}
}

// items extracts *T values from a statement's reflect value, which may be
// a struct, a pointer or a slice of either.
func items[T any](rv reflect.Value) []*T {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if p, ok := rv.Interface().(*T); ok {
			return []*T{p}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]*T, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, items[T](rv.Index(i))...)
		}
		return out
	case reflect.Struct:
		if rv.CanAddr() {
			if p, ok := rv.Addr().Interface().(*T); ok {
				return []*T{p}
			}
		}
		if v, ok := rv.Interface().(T); ok {
			return []*T{&v}
		}
	}
	return nil
}
