package binlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeColumn_varchar(t *testing.T) {
	p := newPacket([]byte{0x2c, 0x01}) // max length 300
	c := decodeColumn(MYSQL_TYPE_VARCHAR, ColumnSchema{Name: "name", Type: "varchar(100)"}, p)
	require.NoError(t, p.err)
	require.Equal(t, 300, c.MaxLength)
	require.Equal(t, "name", c.Name)
}

func TestDecodeColumn_signedness(t *testing.T) {
	c := decodeColumn(MYSQL_TYPE_LONG, ColumnSchema{Type: "int(10) unsigned"}, newPacket(nil))
	require.True(t, c.Unsigned)

	c = decodeColumn(MYSQL_TYPE_LONG, ColumnSchema{Type: "int(11)"}, newPacket(nil))
	require.False(t, c.Unsigned)
}

func TestDecodeColumn_tinyintBool(t *testing.T) {
	c := decodeColumn(MYSQL_TYPE_TINY, ColumnSchema{Type: "tinyint(1)"}, newPacket(nil))
	require.True(t, c.IsBool)

	c = decodeColumn(MYSQL_TYPE_TINY, ColumnSchema{Type: "tinyint(4)"}, newPacket(nil))
	require.False(t, c.IsBool)
}

func TestDecodeColumn_primaryKey(t *testing.T) {
	c := decodeColumn(MYSQL_TYPE_LONG, ColumnSchema{Key: "PRI"}, newPacket(nil))
	require.True(t, c.IsPrimary)
}

func TestDecodeColumn_fixedString(t *testing.T) {
	// char(20): packed word 0xfe14
	p := newPacket([]byte{0xfe, 0x14})
	c := decodeColumn(MYSQL_TYPE_STRING, ColumnSchema{Type: "char(20)"}, p)
	require.NoError(t, p.err)
	require.Equal(t, byte(MYSQL_TYPE_STRING), c.Type)
	require.Equal(t, 20, c.MaxLength)
}

func TestDecodeColumn_enumPromotion(t *testing.T) {
	p := newPacket([]byte{MYSQL_TYPE_ENUM, 0x01})
	c := decodeColumn(MYSQL_TYPE_STRING, ColumnSchema{Type: "enum('small','large')"}, p)
	require.NoError(t, p.err)
	require.Equal(t, byte(MYSQL_TYPE_ENUM), c.Type)
	require.Equal(t, 1, c.Size)
	require.Equal(t, []string{"", "small", "large"}, c.EnumValues)
}

func TestDecodeColumn_setPromotion(t *testing.T) {
	p := newPacket([]byte{MYSQL_TYPE_SET, 0x01})
	c := decodeColumn(MYSQL_TYPE_STRING, ColumnSchema{Type: "set('a','b','c')"}, p)
	require.NoError(t, p.err)
	require.Equal(t, byte(MYSQL_TYPE_SET), c.Type)
	require.Equal(t, []string{"a", "b", "c"}, c.SetValues)
}

func TestDecodeColumn_decimal(t *testing.T) {
	p := newPacket([]byte{10, 2})
	c := decodeColumn(MYSQL_TYPE_NEWDECIMAL, ColumnSchema{Type: "decimal(10,2)"}, p)
	require.NoError(t, p.err)
	require.Equal(t, 10, c.Precision)
	require.Equal(t, 2, c.Decimals)
}

func TestDecodeColumn_bit(t *testing.T) {
	p := newPacket([]byte{4, 1}) // bit(12)
	c := decodeColumn(MYSQL_TYPE_BIT, ColumnSchema{Type: "bit(12)"}, p)
	require.NoError(t, p.err)
	require.Equal(t, 12, c.Bits)
	require.Equal(t, 2, c.Bytes)
}

func TestDecodeColumn_temporalFSP(t *testing.T) {
	p := newPacket([]byte{6})
	c := decodeColumn(MYSQL_TYPE_DATETIME2, ColumnSchema{Type: "datetime(6)"}, p)
	require.NoError(t, p.err)
	require.Equal(t, 6, c.FSP)
}

func TestDecodeColumn_blob(t *testing.T) {
	p := newPacket([]byte{2})
	c := decodeColumn(MYSQL_TYPE_BLOB, ColumnSchema{Type: "blob"}, p)
	require.NoError(t, p.err)
	require.Equal(t, 2, c.LengthSize)
}
