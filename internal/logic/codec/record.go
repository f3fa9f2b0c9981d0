package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/near/borsh-go"
)

var ErrBadRecordValue = errors.New("codec: bad record value")

// Record 运行期才知道 schema 时使用的动态记录，key 为字段名
//
// 数值字段解码为对应的 Go 定宽类型（u32 -> uint32），bytes 字段解码为 []byte。
type Record map[string]any

var recordTypes sync.Map // layout key -> reflect.Type

// recordType 为 schema 构造一个匿名结构体类型，字段依次命名为 F0..Fn，按布局复用
func recordType(s *Schema) reflect.Type {
	key := s.layoutKey()
	if t, ok := recordTypes.Load(key); ok {
		return t.(reflect.Type)
	}
	fields := make([]reflect.StructField, 0, len(s.Fields))
	for i, f := range s.Fields {
		fields = append(fields, reflect.StructField{
			Name: "F" + strconv.Itoa(i),
			Type: goType(f),
		})
	}
	t := reflect.StructOf(fields)
	recordTypes.Store(key, t)
	return t
}

func goType(f Field) reflect.Type {
	switch f.Kind {
	case KindU8:
		return reflect.TypeOf(uint8(0))
	case KindU16:
		return reflect.TypeOf(uint16(0))
	case KindU32:
		return reflect.TypeOf(uint32(0))
	case KindU64:
		return reflect.TypeOf(uint64(0))
	case KindI8:
		return reflect.TypeOf(int8(0))
	case KindI16:
		return reflect.TypeOf(int16(0))
	case KindI32:
		return reflect.TypeOf(int32(0))
	case KindI64:
		return reflect.TypeOf(int64(0))
	default:
		return reflect.ArrayOf(f.Len, reflect.TypeOf(uint8(0)))
	}
}

// EncodeRecord 编码动态记录，缺失字段按零值处理，多余字段报错
func EncodeRecord(s *Schema, rec Record) ([]byte, error) {
	for name := range rec {
		if _, _, ok := s.Offset(name); !ok {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrBadRecordValue, s.Name, name)
		}
	}

	v := reflect.New(recordType(s)).Elem()
	for i, f := range s.Fields {
		raw, ok := rec[f.Name]
		if !ok {
			continue
		}
		if err := setField(v.Field(i), f, raw); err != nil {
			return nil, err
		}
	}

	data, err := borsh.Serialize(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %s: %w", s.Name, err)
	}
	return data, nil
}

// DecodeRecord 将定长缓冲区解码为动态记录
func DecodeRecord(s *Schema, data []byte) (rec Record, err error) {
	if len(data) != s.Width() {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrSchemaMismatch, s.Name, s.Width(), len(data))
	}

	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("%w: borsh decode %s panic: %v", ErrSchemaMismatch, s.Name, r)
		}
	}()

	ptr := reflect.New(recordType(s))
	if err := borsh.Deserialize(ptr.Interface(), data); err != nil {
		return nil, fmt.Errorf("%w: borsh decode %s: %v", ErrSchemaMismatch, s.Name, err)
	}

	v := ptr.Elem()
	rec = make(Record, len(s.Fields))
	for i, f := range s.Fields {
		fv := v.Field(i)
		if f.Kind == KindBytes {
			b := make([]byte, f.Len)
			reflect.Copy(reflect.ValueOf(b), fv)
			rec[f.Name] = b
			continue
		}
		rec[f.Name] = fv.Interface()
	}
	return rec, nil
}

func setField(dst reflect.Value, f Field, raw any) error {
	if f.Kind == KindBytes {
		return setBytes(dst, f, raw)
	}

	src := reflect.ValueOf(raw)
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := src.Int()
		if f.Kind.signed() {
			if dst.OverflowInt(n) {
				return fmt.Errorf("%w: %d overflows %s", ErrBadRecordValue, n, f)
			}
			dst.SetInt(n)
			return nil
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%w: %d overflows %s", ErrBadRecordValue, n, f)
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := src.Uint()
		if f.Kind.signed() {
			if n > uint64(1<<63-1) || dst.OverflowInt(int64(n)) {
				return fmt.Errorf("%w: %d overflows %s", ErrBadRecordValue, n, f)
			}
			dst.SetInt(int64(n))
			return nil
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("%w: %d overflows %s", ErrBadRecordValue, n, f)
		}
		dst.SetUint(n)
		return nil
	default:
		return fmt.Errorf("%w: %T for %s", ErrBadRecordValue, raw, f)
	}
}

func setBytes(dst reflect.Value, f Field, raw any) error {
	var b []byte
	switch x := raw.(type) {
	case []byte:
		b = x
	case string:
		b = []byte(x)
	default:
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Array || rv.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("%w: %T for %s", ErrBadRecordValue, raw, f)
		}
		b = make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
	}
	if len(b) > f.Len {
		return fmt.Errorf("%w: %d bytes do not fit %s", ErrBadRecordValue, len(b), f)
	}
	// 不足部分保持零值，即右侧补零
	reflect.Copy(dst, reflect.ValueOf(b))
	return nil
}
