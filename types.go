package binlog

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Enum is an enum column value: the 1-based wire index and the resolved
// value when the column's value list is known.
type Enum struct {
	Val   uint64
	Value string
}

// Set is a set column value: the wire bitmask and the resolved members.
type Set struct {
	Val    uint64
	Values []string
}

// JSON wraps a decoded binary json value: nil, bool, integers, float64,
// string, []interface{} or map[string]interface{}.
type JSON struct {
	Val interface{}
}

// https://dev.mysql.com/doc/internals/en/rows-event.html#column-definition
func decodeValue(p *packet, col Column) (interface{}, error) {
	switch col.Type {
	case MYSQL_TYPE_NULL:
		return nil, nil
	case MYSQL_TYPE_TINY:
		v := p.int1()
		switch {
		case col.IsBool:
			return v != 0, p.err
		case col.Unsigned:
			return v, p.err
		default:
			return int8(v), p.err
		}
	case MYSQL_TYPE_SHORT:
		v := p.int2()
		if col.Unsigned {
			return v, p.err
		}
		return int16(v), p.err
	case MYSQL_TYPE_INT24:
		v := p.int3()
		if col.Unsigned {
			return v, p.err
		}
		if v&0x800000 != 0 { // sign extend
			v |= 0xff000000
		}
		return int32(v), p.err
	case MYSQL_TYPE_LONG:
		v := p.int4()
		if col.Unsigned {
			return v, p.err
		}
		return int32(v), p.err
	case MYSQL_TYPE_LONGLONG:
		v := p.int8()
		if col.Unsigned {
			return v, p.err
		}
		return int64(v), p.err
	case MYSQL_TYPE_FLOAT:
		return math.Float32frombits(p.int4()), p.err
	case MYSQL_TYPE_DOUBLE:
		return math.Float64frombits(p.int8()), p.err
	case MYSQL_TYPE_NEWDECIMAL:
		return decodeDecimal(p, col.Precision, col.Decimals)
	case MYSQL_TYPE_VARCHAR, MYSQL_TYPE_VAR_STRING, MYSQL_TYPE_STRING:
		var n int
		if col.MaxLength > 255 {
			n = int(p.int2())
		} else {
			n = int(p.int1())
		}
		return p.string(n), p.err
	case MYSQL_TYPE_ENUM:
		v := p.intFixed(col.Size)
		e := Enum{Val: v}
		if v < uint64(len(col.EnumValues)) {
			e.Value = col.EnumValues[v]
		}
		return e, p.err
	case MYSQL_TYPE_SET:
		v := p.intFixed(col.Size)
		s := Set{Val: v}
		for i, name := range col.SetValues {
			if v&(1<<uint(i)) != 0 {
				s.Values = append(s.Values, name)
			}
		}
		return s, p.err
	case MYSQL_TYPE_BLOB, MYSQL_TYPE_GEOMETRY:
		return p.pascalBytes(col.LengthSize), p.err
	case MYSQL_TYPE_JSON:
		n := p.intFixed(col.LengthSize)
		if p.err != nil {
			return nil, p.err
		}
		data := p.read(int(n))
		if p.err != nil {
			return nil, p.err
		}
		v, err := jsonDecoder{}.decodeValue(data)
		if err != nil {
			return nil, err
		}
		return JSON{Val: v}, nil
	case MYSQL_TYPE_BIT:
		return p.uintFixedBE(col.Bytes), p.err
	case MYSQL_TYPE_YEAR:
		v := p.int1()
		if v == 0 {
			return 0, p.err
		}
		return 1900 + int(v), p.err
	case MYSQL_TYPE_DATE, MYSQL_TYPE_NEWDATE:
		v := p.int3()
		if p.err != nil || v == 0 {
			return time.Time{}, p.err
		}
		return time.Date(int(v>>9), time.Month(v>>5&0x0f), int(v&0x1f), 0, 0, 0, 0, time.UTC), nil
	case MYSQL_TYPE_TIMESTAMP:
		return time.Unix(int64(p.int4()), 0), p.err
	case MYSQL_TYPE_TIMESTAMP2:
		sec := int64(p.uintFixedBE(4))
		micro := decodeMicros(p, col.FSP)
		return time.Unix(sec, int64(micro)*1000), p.err
	case MYSQL_TYPE_DATETIME:
		v := p.int8()
		d, t := v/1000000, v%1000000
		return time.Date(int(d/10000), time.Month(d/100%100), int(d%100),
			int(t/10000), int(t/100%100), int(t%100), 0, time.UTC), p.err
	case MYSQL_TYPE_DATETIME2:
		return decodeDatetime2(p, col.FSP)
	case MYSQL_TYPE_TIME:
		v := p.int3()
		return time.Duration(v/10000)*time.Hour +
			time.Duration(v/100%100)*time.Minute +
			time.Duration(v%100)*time.Second, p.err
	case MYSQL_TYPE_TIME2:
		return decodeTime2(p, col.FSP)
	}
	return nil, fmt.Errorf("binlog: decode of mysql type 0x%02x is not implemented", col.Type)
}

// decimal ---

// https://dev.mysql.com/doc/internals/en/binary-protocol-value.html
// digits are packed nine per four bytes, with compressed leftover groups.
var compressedBytes = [...]int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

func decodeDecimal(p *packet, precision, scale int) (decimal.Decimal, error) {
	intg := precision - scale
	intgFull, intgRem := intg/9, intg%9
	fracFull, fracRem := scale/9, scale%9
	size := intgFull*4 + compressedBytes[intgRem] + fracFull*4 + compressedBytes[fracRem]

	data := p.bytes(size)
	if p.err != nil {
		return decimal.Zero, p.err
	}
	negative := data[0]&0x80 == 0
	data[0] ^= 0x80
	if negative {
		for i := range data {
			data[i] = ^data[i]
		}
	}

	pos := 0
	next := func(n int) uint64 {
		var v uint64
		for _, b := range data[pos : pos+n] {
			v = v<<8 | uint64(b)
		}
		pos += n
		return v
	}

	buf := make([]byte, 0, precision+2)
	if negative {
		buf = append(buf, '-')
	}
	if intgRem > 0 {
		buf = append(buf, fmt.Sprintf("%d", next(compressedBytes[intgRem]))...)
	}
	for i := 0; i < intgFull; i++ {
		buf = append(buf, fmt.Sprintf("%09d", next(4))...)
	}
	if intgRem == 0 && intgFull == 0 {
		buf = append(buf, '0')
	}
	if scale > 0 {
		buf = append(buf, '.')
		for i := 0; i < fracFull; i++ {
			buf = append(buf, fmt.Sprintf("%09d", next(4))...)
		}
		if fracRem > 0 {
			buf = append(buf, fmt.Sprintf("%0*d", fracRem, next(compressedBytes[fracRem]))...)
		}
	}
	return decimal.NewFromString(string(buf))
}

// temporal v2 ---

// fractional seconds are stored big-endian in (fsp+1)/2 bytes,
// in units of 10^(2*bytes-6) microseconds.
func decodeMicros(p *packet, fsp int) int {
	n := (fsp + 1) / 2
	if n == 0 {
		return 0
	}
	v := int(p.uintFixedBE(n))
	switch n {
	case 1:
		return v * 10000
	case 2:
		return v * 100
	default:
		return v
	}
}

// 40 bit packed word: 1 sign, 17 year*13+month, 5 day, 5 hour,
// 6 minute, 6 second.
func decodeDatetime2(p *packet, fsp int) (time.Time, error) {
	v := p.uintFixedBE(5)
	micro := decodeMicros(p, fsp)
	if p.err != nil {
		return time.Time{}, p.err
	}
	sec := int(v & 0x3f)
	min := int(v >> 6 & 0x3f)
	hour := int(v >> 12 & 0x1f)
	day := int(v >> 17 & 0x1f)
	ym := int(v >> 22 & 0x1ffff)
	return time.Date(ym/13, time.Month(ym%13), day, hour, min, sec, micro*1000, time.UTC), nil
}

// the whole value including fraction is stored offset-binary big-endian,
// so the sign applies to hours and fraction together.
func decodeTime2(p *packet, fsp int) (time.Duration, error) {
	fracBytes := (fsp + 1) / 2
	n := 3 + fracBytes
	raw := p.uintFixedBE(n)
	if p.err != nil {
		return 0, p.err
	}
	offset := uint64(1) << uint(8*n-1)
	negative := raw < offset
	var abs uint64
	if negative {
		abs = offset - raw
	} else {
		abs = raw - offset
	}
	micro := int64(abs & (1<<uint(8*fracBytes) - 1))
	switch fracBytes {
	case 1:
		micro *= 10000
	case 2:
		micro *= 100
	}
	word := abs >> uint(8*fracBytes)
	d := time.Duration(word>>12&0x3ff)*time.Hour +
		time.Duration(word>>6&0x3f)*time.Minute +
		time.Duration(word&0x3f)*time.Second +
		time.Duration(micro)*time.Microsecond
	if negative {
		return -d, nil
	}
	return d, nil
}
