package schema

import (
	"reflect"
	"time"
)

// Hook runs around a save operation. Hooks receive the entity being saved.
type Hook func(entity interface{}) error

// DirtyClearer is implemented by entities that track modified attributes.
// The dirty state is cleared after every successful save.
type DirtyClearer interface {
	ClearDirty()
}

// BeforeSave appends a hook that runs before insert and update.
func (t *Table) BeforeSave(h Hook) {
	t.beforeSave = append(t.beforeSave, h)
}

// AfterSave appends a hook that runs after a successful insert or update.
func (t *Table) AfterSave(h Hook) {
	t.afterSave = append(t.afterSave, h)
}

// RunBeforeSave runs the before-save hooks in registration order.
func (t *Table) RunBeforeSave(entity interface{}) error {
	for _, h := range t.beforeSave {
		if err := h(entity); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterSave runs the after-save hooks in registration order.
func (t *Table) RunAfterSave(entity interface{}) error {
	for _, h := range t.afterSave {
		if err := h(entity); err != nil {
			return err
		}
	}
	return nil
}

// stampTimestamps is registered implicitly at table construction. It sets
// updated_at on every save and created_at when still zero, but only for
// columns the table actually has.
func (t *Table) stampTimestamps(entity interface{}) error {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	now := time.Now()
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() || field.Type() != reflect.TypeOf(time.Time{}) {
			continue
		}
		col := FieldColumn(typ.Field(i))
		if col == "" || !t.HasColumn(col) {
			continue
		}
		switch col {
		case "updated_at":
			field.Set(reflect.ValueOf(now))
		case "created_at":
			if field.Interface().(time.Time).IsZero() {
				field.Set(reflect.ValueOf(now))
			}
		}
	}
	return nil
}

// clearDirtyState is registered implicitly at table construction.
func clearDirtyState(entity interface{}) error {
	if d, ok := entity.(DirtyClearer); ok {
		d.ClearDirty()
	}
	return nil
}
