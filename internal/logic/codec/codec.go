package codec

import (
	"fmt"
	"reflect"

	"github.com/near/borsh-go"
)

// Encode 按 schema 编码结构体值，value 的布局必须与 schema 完全一致
func Encode(schema *Schema, value any) ([]byte, error) {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil value for %s", ErrSchemaMismatch, schema.Name)
		}
		v = v.Elem()
	}

	if err := checkLayout(schema, v.Type()); err != nil {
		return nil, err
	}

	// borsh 对指针会写入 option 标记字节，这里必须传值
	data, err := borsh.Serialize(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %s: %w", schema.Name, err)
	}
	if len(data) != schema.Width() {
		return nil, fmt.Errorf("%w: %s encoded to %d bytes, want %d", ErrSchemaMismatch, schema.Name, len(data), schema.Width())
	}
	return data, nil
}

// Decode 将定长缓冲区解码到 out（必须为结构体指针）
// 长度不等于 schema 宽度时返回 ErrSchemaMismatch，out 保持不变
func Decode(schema *Schema, data []byte, out any) (err error) {
	if len(data) != schema.Width() {
		return fmt.Errorf("%w: %s expects %d bytes, got %d", ErrSchemaMismatch, schema.Name, schema.Width(), len(data))
	}

	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer, got %T", ErrSchemaMismatch, out)
	}
	if err := checkLayout(schema, v.Type().Elem()); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: borsh decode %s panic: %v", ErrSchemaMismatch, schema.Name, r)
		}
	}()

	if err := borsh.Deserialize(out, data); err != nil {
		return fmt.Errorf("%w: borsh decode %s: %v", ErrSchemaMismatch, schema.Name, err)
	}
	return nil
}

// DecodeAs 使用 T 自身推导出的 schema 解码
func DecodeAs[T any](data []byte) (T, error) {
	var out T
	schema, err := SchemaOf(&out)
	if err != nil {
		return out, err
	}
	if err := Decode(schema, data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// EncodeValue 使用 value 自身推导出的 schema 编码
func EncodeValue(value any) ([]byte, error) {
	schema, err := SchemaOf(value)
	if err != nil {
		return nil, err
	}
	return Encode(schema, value)
}

func checkLayout(schema *Schema, t reflect.Type) error {
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %v is not a struct", ErrSchemaMismatch, t)
	}
	actual, err := schemaOfType(t)
	if err != nil {
		return err
	}
	if !schema.SameLayout(actual) {
		return fmt.Errorf("%w: %s does not match Go type %s", ErrSchemaMismatch, schema, actual)
	}
	return nil
}
