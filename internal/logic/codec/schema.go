package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrSchemaMismatch   = errors.New("codec: schema mismatch")
	ErrUnsupportedField = errors.New("codec: unsupported field type")
	ErrInvalidSchema    = errors.New("codec: invalid schema")
)

// Kind 字段的定长基础类型
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindU64
	KindI8
	KindI16
	KindI32
	KindI64
	KindBytes // 定长字节数组，宽度由 Field.Len 决定
)

var kindNames = map[Kind]string{
	KindU8:    "u8",
	KindU16:   "u16",
	KindU32:   "u32",
	KindU64:   "u64",
	KindI8:    "i8",
	KindI16:   "i16",
	KindI32:   "i32",
	KindI64:   "i64",
	KindBytes: "bytes",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// width 返回数值类型的字节宽度，bytes 返回 0
func (k Kind) width() int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32:
		return 4
	case KindU64, KindI64:
		return 8
	default:
		return 0
	}
}

func (k Kind) signed() bool {
	return k == KindI8 || k == KindI16 || k == KindI32 || k == KindI64
}

// Field 一个命名的定长字段
type Field struct {
	Name string
	Kind Kind
	Len  int // 仅 KindBytes 使用
}

func (f Field) Width() int {
	if f.Kind == KindBytes {
		return f.Len
	}
	return f.Kind.width()
}

func (f Field) String() string {
	if f.Kind == KindBytes {
		return fmt.Sprintf("%s:bytes[%d]", f.Name, f.Len)
	}
	return f.Name + ":" + f.Kind.String()
}

func U8(name string) Field  { return Field{Name: name, Kind: KindU8} }
func U16(name string) Field { return Field{Name: name, Kind: KindU16} }
func U32(name string) Field { return Field{Name: name, Kind: KindU32} }
func U64(name string) Field { return Field{Name: name, Kind: KindU64} }
func I8(name string) Field  { return Field{Name: name, Kind: KindI8} }
func I16(name string) Field { return Field{Name: name, Kind: KindI16} }
func I32(name string) Field { return Field{Name: name, Kind: KindI32} }
func I64(name string) Field { return Field{Name: name, Kind: KindI64} }

func Bytes(name string, n int) Field { return Field{Name: name, Kind: KindBytes, Len: n} }

// Pubkey 32 字节地址字段
func Pubkey(name string) Field { return Bytes(name, 32) }

// Schema 有序的定长字段列表。字段按声明顺序紧密排列，无填充、无长度前缀
type Schema struct {
	Name   string
	Fields []Field
	width  int
}

// NewSchema 校验并构造 Schema：字段名非空且唯一，bytes 长度 > 0
func NewSchema(name string, fields ...Field) (*Schema, error) {
	seen := make(map[string]struct{}, len(fields))
	width := 0
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field #%d has no name", ErrInvalidSchema, i)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = struct{}{}

		if _, ok := kindNames[f.Kind]; !ok {
			return nil, fmt.Errorf("%w: field %q has unknown kind %d", ErrInvalidSchema, f.Name, f.Kind)
		}
		if f.Kind == KindBytes && f.Len <= 0 {
			return nil, fmt.Errorf("%w: field %q bytes length must be positive", ErrInvalidSchema, f.Name)
		}
		if f.Kind != KindBytes && f.Len != 0 {
			return nil, fmt.Errorf("%w: field %q is %s, length not allowed", ErrInvalidSchema, f.Name, f.Kind)
		}
		width += f.Width()
	}

	return &Schema{
		Name:   name,
		Fields: append([]Field(nil), fields...),
		width:  width,
	}, nil
}

// MustSchema 仅用于包级常量 schema，非法时 panic
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Width 返回 schema 的固定总字节数
func (s *Schema) Width() int {
	return s.width
}

// SameLayout 只比较字段的类型与宽度，不比较字段名
func (s *Schema) SameLayout(other *Schema) bool {
	if s == nil || other == nil || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		a, b := s.Fields[i], other.Fields[i]
		if a.Kind != b.Kind || a.Width() != b.Width() {
			return false
		}
	}
	return true
}

func (s *Schema) layoutKey() string {
	var sb strings.Builder
	for _, f := range s.Fields {
		sb.WriteString(f.Kind.String())
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(f.Width()))
		sb.WriteByte(',')
	}
	return sb.String()
}

// Offset 返回字段在缓冲区中的起始偏移
func (s *Schema) Offset(name string) (int, Field, bool) {
	off := 0
	for _, f := range s.Fields {
		if f.Name == name {
			return off, f, true
		}
		off += f.Width()
	}
	return 0, Field{}, false
}

func (s *Schema) String() string {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s{%s}", s.Name, strings.Join(parts, ", "))
}

// ParseKind 解析 "u32" / "i64" / "bytes[512]" / "pubkey" 形式的类型描述
func ParseKind(s string) (Kind, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "pubkey" {
		return KindBytes, 32, nil
	}
	if strings.HasPrefix(s, "bytes[") && strings.HasSuffix(s, "]") {
		n, err := strconv.Atoi(s[len("bytes[") : len(s)-1])
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: bad bytes length in %q", ErrInvalidSchema, s)
		}
		return KindBytes, n, nil
	}
	for k, name := range kindNames {
		if k != KindBytes && name == s {
			return k, 0, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: unknown type %q", ErrInvalidSchema, s)
}
