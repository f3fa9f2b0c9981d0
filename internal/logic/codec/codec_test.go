package codec

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"pda-client-sol/internal/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Counter uint32 `codec:"counter"`
}

type profile struct {
	Name  [512]byte `codec:"name"`
	Date  int32     `codec:"date"`
	Month int32     `codec:"month"`
	Year  int32     `codec:"year"`
}

type mixed struct {
	Tag    uint8
	Small  int16
	Owner  types.Pubkey
	Amount uint64
	Delta  int64
	Inner  struct {
		A uint16
		B [2]uint32
	}
}

var greetingSchema = MustSchema("greeting", U32("counter"))

var profileSchema = MustSchema("profile", Bytes("name", 512), I32("date"), I32("month"), I32("year"))

func TestSchema_Width(t *testing.T) {
	assert.Equal(t, 4, greetingSchema.Width())
	assert.Equal(t, 524, profileSchema.Width())

	s, err := SchemaOf(mixed{})
	require.NoError(t, err)
	assert.Equal(t, 1+2+32+8+8+2+8, s.Width())
	assert.Equal(t, "Inner.B[1]", s.Fields[len(s.Fields)-1].Name)
}

func TestNewSchema_Invalid(t *testing.T) {
	_, err := NewSchema("dup", U8("a"), U16("a"))
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = NewSchema("empty-bytes", Bytes("b", 0))
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = NewSchema("noname", U8(""))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestEncode_CounterZero(t *testing.T) {
	data, err := Encode(greetingSchema, greeting{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)

	var g greeting
	require.NoError(t, Decode(greetingSchema, data, &g))
	assert.Equal(t, greeting{Counter: 0}, g)
}

func TestEncode_LittleEndianNoPadding(t *testing.T) {
	var p profile
	require.NoError(t, PutString(p.Name[:], "alice"))
	p.Date, p.Month, p.Year = 17, -3, 2024

	data, err := Encode(profileSchema, &p)
	require.NoError(t, err)
	require.Len(t, data, 524)

	assert.Equal(t, "alice", CString(data[:512]))
	assert.Equal(t, uint32(17), binary.LittleEndian.Uint32(data[512:516]))
	assert.Equal(t, int32(-3), int32(binary.LittleEndian.Uint32(data[516:520])))
	assert.Equal(t, uint32(2024), binary.LittleEndian.Uint32(data[520:524]))
}

func TestDecode_WrongWidth(t *testing.T) {
	g := greeting{Counter: 99}
	for _, n := range []int{0, 3, 5, 8} {
		err := Decode(greetingSchema, make([]byte, n), &g)
		assert.ErrorIs(t, err, ErrSchemaMismatch, "width %d", n)
		assert.Equal(t, uint32(99), g.Counter, "target must stay untouched")
	}

	_, err := DecodeAs[profile](make([]byte, 523))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecode_LayoutMismatch(t *testing.T) {
	type wide struct{ Counter uint64 }
	var w wide
	err := Decode(greetingSchema, make([]byte, 4), &w)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = Encode(greetingSchema, wide{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	err = Decode(greetingSchema, make([]byte, 4), greeting{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSchemaOf_Rejects(t *testing.T) {
	cases := []any{
		struct{ N int }{},
		struct{ S string }{},
		struct{ B []byte }{},
		struct{ F float64 }{},
		struct{ Ok bool }{},
		struct{ P *uint32 }{},
		struct{ hidden uint32 }{},
		42,
	}
	for _, c := range cases {
		_, err := SchemaOf(c)
		assert.ErrorIs(t, err, ErrUnsupportedField, "%T", c)
	}
}

func TestRoundTrip_RandomBuffers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	mixedSchema, err := SchemaOf(mixed{})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		buf := make([]byte, profileSchema.Width())
		rng.Read(buf)
		p, err := DecodeAs[profile](buf)
		require.NoError(t, err)
		out, err := Encode(profileSchema, p)
		require.NoError(t, err)
		assert.Equal(t, buf, out)

		buf = make([]byte, mixedSchema.Width())
		rng.Read(buf)
		m, err := DecodeAs[mixed](buf)
		require.NoError(t, err)
		out, err = EncodeValue(m)
		require.NoError(t, err)
		assert.Equal(t, buf, out)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	rec := Record{"name": "bob", "date": 1, "month": int32(2), "year": uint16(1999)}
	data, err := EncodeRecord(profileSchema, rec)
	require.NoError(t, err)
	require.Len(t, data, profileSchema.Width())

	var p profile
	require.NoError(t, Decode(profileSchema, data, &p))
	assert.Equal(t, "bob", CString(p.Name[:]))
	assert.Equal(t, int32(1999), p.Year)

	back, err := DecodeRecord(profileSchema, data)
	require.NoError(t, err)
	assert.Equal(t, int32(2), back["month"])
	assert.Equal(t, "bob", CString(back["name"].([]byte)))

	again, err := EncodeRecord(profileSchema, back)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRecord_Errors(t *testing.T) {
	_, err := EncodeRecord(greetingSchema, Record{"counter": -1})
	assert.ErrorIs(t, err, ErrBadRecordValue)

	_, err = EncodeRecord(greetingSchema, Record{"counter": uint64(1) << 40})
	assert.ErrorIs(t, err, ErrBadRecordValue)

	_, err = EncodeRecord(greetingSchema, Record{"missing": 1})
	assert.ErrorIs(t, err, ErrBadRecordValue)

	_, err = EncodeRecord(greetingSchema, Record{"counter": "7"})
	assert.ErrorIs(t, err, ErrBadRecordValue)

	_, err = DecodeRecord(greetingSchema, []byte{1, 2})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestText(t *testing.T) {
	field := make([]byte, 8)
	for i := range field {
		field[i] = 0xff
	}
	require.NoError(t, PutString(field, "abc"))
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0, 0, 0}, field)
	assert.Equal(t, "abc", CString(field))

	assert.Error(t, PutString(field, "123456789"))
	assert.Equal(t, "abcdefgh", CString([]byte("abcdefgh")))
}

func TestLoadSchemas(t *testing.T) {
	src := []byte(`
greeting:
  - {name: counter, type: u32}
profile:
  - {name: name, type: "bytes[512]"}
  - {name: date, type: i32}
  - {name: month, type: i32}
  - {name: year, type: i32}
owner:
  - {name: key, type: pubkey}
`)
	schemas, err := LoadSchemas(src)
	require.NoError(t, err)
	require.Len(t, schemas, 3)
	assert.True(t, schemas["greeting"].SameLayout(greetingSchema))
	assert.True(t, schemas["profile"].SameLayout(profileSchema))
	assert.Equal(t, 32, schemas["owner"].Width())

	_, err = LoadSchemas([]byte("bad:\n  - {name: x, type: f32}\n"))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}
