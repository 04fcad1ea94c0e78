package postgres

import (
	"reflect"
	"sync"
)

// rowFields caches, per row type, the field indexes carrying a db tag.
var rowFields sync.Map // reflect.Type -> []rowField

type rowField struct {
	column string
	index  []int
}

func fieldsOf(t reflect.Type) []rowField {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := rowFields.Load(t); ok {
		return cached.([]rowField)
	}

	var fields []rowField
	if t.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(t) {
			if f.Anonymous {
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			fields = append(fields, rowField{column: tag, index: f.Index})
		}
	}
	rowFields.Store(t, fields)
	return fields
}

// Columns lists the db tags of row type T in field order, embedded structs included.
//
//	var transferColumns = postgres.Columns[transferRow]()
func Columns[T any]() []string {
	fields := fieldsOf(reflect.TypeFor[T]())
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// Values returns the tagged field values of row, aligned with Columns.
func Values(row any) []any {
	rv := reflect.ValueOf(row)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	fields := fieldsOf(rv.Type())
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = rv.FieldByIndex(f.index).Interface()
	}
	return out
}
