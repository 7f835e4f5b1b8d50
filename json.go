package binlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// binary json value types.
//
// https://dev.mysql.com/worklog/task/?id=8132#tabs-8132-4
const (
	jsonSmallObj byte = iota
	jsonLargeObj
	jsonSmallArr
	jsonLargeArr
	jsonLiteral
	jsonInt16
	jsonUInt16
	jsonInt32
	jsonUInt32
	jsonInt64
	jsonUInt64
	jsonDouble
	jsonString
	jsonCustom = 0x0f
)

// jsonDecoder decodes the binary json document stored in json columns.
// offsets inside containers are absolute within the document, so it works
// on the raw byte slice rather than the packet cursor.
type jsonDecoder struct{}

func (d jsonDecoder) decodeValue(data []byte) (interface{}, error) {
	if len(data) == 0 {
		// mysql stores a json null as an empty document
		return nil, nil
	}
	return d.decodeValueType(data[0], data[1:])
}

func (d jsonDecoder) decodeValueType(typ byte, data []byte) (interface{}, error) {
	switch typ {
	case jsonSmallObj:
		return d.decodeComposite(data, true, true)
	case jsonLargeObj:
		return d.decodeComposite(data, false, true)
	case jsonSmallArr:
		return d.decodeComposite(data, true, false)
	case jsonLargeArr:
		return d.decodeComposite(data, false, false)
	case jsonLiteral:
		return d.decodeLiteral(data)
	case jsonInt16:
		v, err := d.uint16(data)
		return int16(v), err
	case jsonUInt16:
		return d.uint16(data)
	case jsonInt32:
		v, err := d.uint32(data)
		return int32(v), err
	case jsonUInt32:
		return d.uint32(data)
	case jsonInt64:
		v, err := d.uint64(data)
		return int64(v), err
	case jsonUInt64:
		return d.uint64(data)
	case jsonDouble:
		v, err := d.uint64(data)
		return math.Float64frombits(v), err
	case jsonString:
		return d.decodeString(data)
	case jsonCustom:
		return d.decodeCustom(data)
	}
	return nil, fmt.Errorf("binlog: invalid json value type 0x%02x", typ)
}

// objects and arrays share a layout: element count and total size, then
// for objects a key directory, then a value directory whose entries are
// either inlined small scalars or offsets into the document.
func (d jsonDecoder) decodeComposite(data []byte, small, obj bool) (interface{}, error) {
	offSize := 4
	if small {
		offSize = 2
	}
	off := 0
	next := func() (uint32, error) {
		if len(data) < off+offSize {
			return 0, io.ErrUnexpectedEOF
		}
		var v uint32
		if small {
			v = uint32(binary.LittleEndian.Uint16(data[off:]))
		} else {
			v = binary.LittleEndian.Uint32(data[off:])
		}
		off += offSize
		return v, nil
	}

	count, err := next()
	if err != nil {
		return nil, err
	}
	if _, err := next(); err != nil { // total size, unused
		return nil, err
	}

	var keys []string
	if obj {
		keys = make([]string, count)
		for i := range keys {
			keyOff, err := next()
			if err != nil {
				return nil, err
			}
			keyLen, err := d.uint16(data[off:])
			if err != nil {
				return nil, err
			}
			off += 2
			if uint64(keyOff)+uint64(keyLen) > uint64(len(data)) {
				return nil, io.ErrUnexpectedEOF
			}
			keys[i] = string(data[keyOff : keyOff+uint32(keyLen)])
		}
	}

	vals := make([]interface{}, count)
	for i := range vals {
		if len(data) < off+1 {
			return nil, io.ErrUnexpectedEOF
		}
		typ := data[off]
		off++
		if d.inlined(typ, small) {
			v, err := d.decodeValueType(typ, data[off:])
			if err != nil {
				return nil, err
			}
			vals[i] = v
			off += offSize
			continue
		}
		valOff, err := next()
		if err != nil {
			return nil, err
		}
		if uint64(valOff) >= uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		v, err := d.decodeValueType(typ, data[valOff:])
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	if obj {
		m := make(map[string]interface{}, count)
		for i, key := range keys {
			m[key] = vals[i]
		}
		return m, nil
	}
	return vals, nil
}

// small scalars are stored inline in the value directory entry itself.
// 32 bit ints fit only in the large format's 4 byte entries.
func (d jsonDecoder) inlined(typ byte, small bool) bool {
	switch typ {
	case jsonLiteral, jsonInt16, jsonUInt16:
		return true
	case jsonInt32, jsonUInt32:
		return !small
	}
	return false
}

func (d jsonDecoder) decodeLiteral(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	switch data[0] {
	case 0x00:
		return nil, nil
	case 0x01:
		return true, nil
	case 0x02:
		return false, nil
	}
	return nil, fmt.Errorf("binlog: invalid json literal 0x%02x", data[0])
}

func (d jsonDecoder) uint16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint16(data), nil
}

func (d jsonDecoder) uint32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (d jsonDecoder) uint64(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (d jsonDecoder) decodeString(data []byte) (string, error) {
	p := newPacket(data)
	s := p.variableBytes()
	if p.err != nil {
		return "", p.err
	}
	return string(s), nil
}

// custom values wrap another mysql type: a type byte, a variable length,
// then that type's packed representation.
func (d jsonDecoder) decodeCustom(data []byte) (interface{}, error) {
	p := newPacket(data)
	typ := p.int1()
	body := p.variableBytes()
	if p.err != nil {
		return nil, p.err
	}

	switch typ {
	case MYSQL_TYPE_NEWDECIMAL, MYSQL_TYPE_DECIMAL:
		if len(body) < 2 {
			return nil, io.ErrUnexpectedEOF
		}
		return decodeDecimal(newPacket(body[2:]), int(body[0]), int(body[1]))
	case MYSQL_TYPE_TIME, MYSQL_TYPE_TIME2:
		if len(body) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		v := int64(binary.LittleEndian.Uint64(body))
		sign := time.Duration(1)
		if v < 0 {
			v, sign = -v, -1
		}
		micro := v & (1<<24 - 1)
		v >>= 24
		return sign * (time.Duration(v>>12&0x3ff)*time.Hour +
			time.Duration(v>>6&0x3f)*time.Minute +
			time.Duration(v&0x3f)*time.Second +
			time.Duration(micro)*time.Microsecond), nil
	case MYSQL_TYPE_DATE, MYSQL_TYPE_DATETIME, MYSQL_TYPE_DATETIME2,
		MYSQL_TYPE_TIMESTAMP, MYSQL_TYPE_TIMESTAMP2:
		if len(body) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		v := binary.LittleEndian.Uint64(body)
		micro := v & (1<<24 - 1)
		v >>= 24
		hms := v & (1<<17 - 1)
		ymd := v >> 17
		ym := ymd >> 5
		return time.Date(int(ym/13), time.Month(ym%13), int(ymd&0x1f),
			int(hms>>12), int(hms>>6&0x3f), int(hms&0x3f),
			int(micro)*1000, time.UTC), nil
	}
	// opaque blob of some other type, hand back the raw bytes
	return body, nil
}
