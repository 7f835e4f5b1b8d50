package binlog

import (
	"strings"
)

// https://dev.mysql.com/doc/internals/en/com-query-response.html#column-type

const (
	MYSQL_TYPE_DECIMAL     = 0x00
	MYSQL_TYPE_TINY        = 0x01
	MYSQL_TYPE_SHORT       = 0x02
	MYSQL_TYPE_LONG        = 0x03
	MYSQL_TYPE_FLOAT       = 0x04
	MYSQL_TYPE_DOUBLE      = 0x05
	MYSQL_TYPE_NULL        = 0x06
	MYSQL_TYPE_TIMESTAMP   = 0x07
	MYSQL_TYPE_LONGLONG    = 0x08
	MYSQL_TYPE_INT24       = 0x09
	MYSQL_TYPE_DATE        = 0x0a
	MYSQL_TYPE_TIME        = 0x0b
	MYSQL_TYPE_DATETIME    = 0x0c
	MYSQL_TYPE_YEAR        = 0x0d
	MYSQL_TYPE_NEWDATE     = 0x0e
	MYSQL_TYPE_VARCHAR     = 0x0f
	MYSQL_TYPE_BIT         = 0x10
	MYSQL_TYPE_TIMESTAMP2  = 0x11
	MYSQL_TYPE_DATETIME2   = 0x12
	MYSQL_TYPE_TIME2       = 0x13
	MYSQL_TYPE_JSON        = 0xf5
	MYSQL_TYPE_NEWDECIMAL  = 0xf6
	MYSQL_TYPE_ENUM        = 0xf7
	MYSQL_TYPE_SET         = 0xf8
	MYSQL_TYPE_TINY_BLOB   = 0xf9
	MYSQL_TYPE_MEDIUM_BLOB = 0xfa
	MYSQL_TYPE_LONG_BLOB   = 0xfb
	MYSQL_TYPE_BLOB        = 0xfc
	MYSQL_TYPE_VAR_STRING  = 0xfd
	MYSQL_TYPE_STRING      = 0xfe
	MYSQL_TYPE_GEOMETRY    = 0xff
)

// ColumnSchema is one row of the information_schema.columns lookup the
// stream runs when it sees a table for the first time.
type ColumnSchema struct {
	Name      string
	Collation string
	Charset   string
	Comment   string
	Type      string // full textual type, e.g. "int(10) unsigned"
	Key       string
}

// Column pairs the wire type from a table map event with the schema row
// and the type specific metadata bytes that follow in the event payload.
type Column struct {
	Type      byte
	Name      string
	Collation string
	Charset   string
	Comment   string
	Unsigned  bool
	IsBool    bool
	IsPrimary bool

	// type specific metadata; which fields are set depends on Type
	MaxLength  int      // VARCHAR, STRING
	Size       int      // FLOAT, DOUBLE; ENUM/SET index byte width
	FSP        int      // TIMESTAMP2, DATETIME2, TIME2
	LengthSize int      // BLOB, GEOMETRY, JSON
	Precision  int      // NEWDECIMAL
	Decimals   int      // NEWDECIMAL
	Bits       int      // BIT
	Bytes      int      // BIT
	EnumValues []string // ENUM, index 0 is the empty value
	SetValues  []string // SET, one per bit
}

// decodeColumn consumes the wire type's metadata bytes from p and
// correlates them with the externally fetched schema row.
func decodeColumn(typ byte, schema ColumnSchema, p *packet) Column {
	c := Column{
		Type:      typ,
		Name:      schema.Name,
		Collation: schema.Collation,
		Charset:   schema.Charset,
		Comment:   schema.Comment,
		Unsigned:  strings.Contains(schema.Type, "unsigned"),
		IsPrimary: schema.Key == "PRI",
	}
	switch typ {
	case MYSQL_TYPE_VARCHAR:
		c.MaxLength = int(p.int2())
	case MYSQL_TYPE_DOUBLE, MYSQL_TYPE_FLOAT:
		c.Size = int(p.int1())
	case MYSQL_TYPE_TIMESTAMP2, MYSQL_TYPE_DATETIME2, MYSQL_TYPE_TIME2:
		c.FSP = int(p.int1())
	case MYSQL_TYPE_TINY:
		if schema.Type == "tinyint(1)" {
			c.IsBool = true
		}
	case MYSQL_TYPE_VAR_STRING, MYSQL_TYPE_STRING:
		c.decodeStringMeta(schema, p)
	case MYSQL_TYPE_BLOB, MYSQL_TYPE_GEOMETRY, MYSQL_TYPE_JSON:
		c.LengthSize = int(p.int1())
	case MYSQL_TYPE_NEWDECIMAL:
		c.Precision = int(p.int1())
		c.Decimals = int(p.int1())
	case MYSQL_TYPE_BIT:
		bits := int(p.int1())
		bs := int(p.int1())
		c.Bits = bs*8 + bits
		c.Bytes = (c.Bits + 7) / 8
	}
	return c
}

// a fixed or variable string column carries a packed metadata word whose
// high byte may reveal that the real type is ENUM or SET.
func (c *Column) decodeStringMeta(schema ColumnSchema, p *packet) {
	meta := int(p.int1())<<8 | int(p.int1())
	realType := byte(meta >> 8)
	if realType == MYSQL_TYPE_ENUM || realType == MYSQL_TYPE_SET {
		c.Type = realType
		c.Size = meta & 0x00ff
		c.parseValueList(schema)
		return
	}
	c.MaxLength = (((meta >> 4) & 0x300) ^ 0x300) + meta&0x00ff
}

// the wire carries only an index for ENUM/SET values; the value lists
// come from the textual column type, e.g. "enum('a','b')".
func (c *Column) parseValueList(schema ColumnSchema) {
	body := schema.Type
	if i := strings.IndexByte(body, '('); i != -1 {
		body = body[i+1:]
	}
	body = strings.TrimSuffix(body, ")")
	body = strings.ReplaceAll(body, "'", "")
	values := strings.Split(body, ",")
	if c.Type == MYSQL_TYPE_ENUM {
		c.EnumValues = append([]string{""}, values...)
	} else {
		c.SetValues = values
	}
}
