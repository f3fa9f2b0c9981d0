package codec

import (
	"fmt"
	"reflect"
	"sync"
)

var schemaCache sync.Map // reflect.Type -> *Schema

// SchemaOf 通过反射从 Go 结构体推导 Schema
//
// 支持的字段类型：定宽整数、[N]byte（含 types.Pubkey）、定宽整数数组、嵌套结构体（展开）。
// int/uint、string、slice、map、指针、bool、浮点以及未导出字段一律拒绝，
// 保证编码结果与 schema 宽度一一对应。字段名取 `codec:"name"` 标签，缺省为 Go 字段名。
func SchemaOf(v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct", ErrUnsupportedField, t)
	}
	return schemaOfType(t)
}

func schemaOfType(t reflect.Type) (*Schema, error) {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*Schema), nil
	}

	fields := make([]Field, 0, t.NumField())
	if err := collectFields(t, "", &fields); err != nil {
		return nil, err
	}
	s, err := NewSchema(t.Name(), fields...)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(t, s)
	return s, nil
}

func collectFields(t reflect.Type, prefix string, out *[]Field) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			return fmt.Errorf("%w: %s.%s is unexported", ErrUnsupportedField, t.Name(), sf.Name)
		}
		if sf.Tag.Get("borsh_skip") != "" || sf.Tag.Get("borsh_enum") != "" {
			return fmt.Errorf("%w: %s.%s uses borsh enum/skip tags", ErrUnsupportedField, t.Name(), sf.Name)
		}

		name := sf.Tag.Get("codec")
		if name == "" {
			name = sf.Name
		}
		name = prefix + name

		if err := appendField(sf.Type, name, out); err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name(), sf.Name, err)
		}
	}
	return nil
}

func appendField(ft reflect.Type, name string, out *[]Field) error {
	if k, ok := intKind(ft.Kind()); ok {
		*out = append(*out, Field{Name: name, Kind: k})
		return nil
	}

	switch ft.Kind() {
	case reflect.Array:
		elem := ft.Elem()
		if elem.Kind() == reflect.Uint8 {
			*out = append(*out, Bytes(name, ft.Len()))
			return nil
		}
		k, ok := intKind(elem.Kind())
		// 命名的整数元素类型无法被 borsh 直接写回数组元素，只接受内置类型
		if !ok || elem.PkgPath() != "" {
			return fmt.Errorf("%w: array of %v", ErrUnsupportedField, elem)
		}
		for j := 0; j < ft.Len(); j++ {
			*out = append(*out, Field{Name: fmt.Sprintf("%s[%d]", name, j), Kind: k})
		}
		return nil
	case reflect.Struct:
		return collectFields(ft, name+".", out)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedField, ft)
	}
}

func intKind(k reflect.Kind) (Kind, bool) {
	switch k {
	case reflect.Uint8:
		return KindU8, true
	case reflect.Uint16:
		return KindU16, true
	case reflect.Uint32:
		return KindU32, true
	case reflect.Uint64:
		return KindU64, true
	case reflect.Int8:
		return KindI8, true
	case reflect.Int16:
		return KindI16, true
	case reflect.Int32:
		return KindI32, true
	case reflect.Int64:
		return KindI64, true
	default:
		return 0, false
	}
}
