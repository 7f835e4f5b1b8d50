package binlog

import (
	"io"
)

const (
	headerSize    = 4
	maxPacketSize = 1<<24 - 1
)

// packet is a byte cursor over one framed payload. reads drain the pushback
// buffer before the frame itself, so a caller can peek a type tag and rewind.
//
// methods record the first failure in err and become no-ops after that,
// returning zero values. callers check err once at the end.
type packet struct {
	buf      []byte
	off      int
	pushback []byte
	nread    int
	err      error
}

func newPacket(frame []byte) *packet {
	return &packet{buf: frame}
}

// bytesRead reports how many bytes have been consumed so far,
// net of anything pushed back.
func (p *packet) bytesRead() int {
	return p.nread
}

func (p *packet) remaining() int {
	return len(p.pushback) + len(p.buf) - p.off
}

func (p *packet) more() bool {
	return p.err == nil && p.remaining() > 0
}

func (p *packet) read(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || n > p.remaining() {
		p.err = io.ErrUnexpectedEOF
		return nil
	}
	p.nread += n
	if len(p.pushback) == 0 {
		v := p.buf[p.off : p.off+n]
		p.off += n
		return v
	}
	if n <= len(p.pushback) {
		v := p.pushback[:n]
		p.pushback = p.pushback[n:]
		return v
	}
	v := make([]byte, n)
	m := copy(v, p.pushback)
	p.pushback = nil
	copy(v[m:], p.buf[p.off:p.off+n-m])
	p.off += n - m
	return v
}

func (p *packet) unread(b []byte) {
	if p.err != nil || len(b) == 0 {
		return
	}
	p.nread -= len(b)
	p.pushback = append(append([]byte(nil), b...), p.pushback...)
}

func (p *packet) advance(n int) {
	p.read(n)
}

func (p *packet) peek() byte {
	b := p.read(1)
	if p.err != nil {
		return 0
	}
	p.unread(b)
	return b[0]
}

// int ---

func (p *packet) int1() byte {
	b := p.read(1)
	if p.err != nil {
		return 0
	}
	return b[0]
}

func (p *packet) int2() uint16 {
	b := p.read(2)
	if p.err != nil {
		return 0
	}
	return uint16(b[0]) | uint16(b[1])<<8
}

func (p *packet) int3() uint32 {
	b := p.read(3)
	if p.err != nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func (p *packet) int4() uint32 {
	b := p.read(4)
	if p.err != nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (p *packet) int6() uint64 {
	return p.intFixed(6)
}

func (p *packet) int8() uint64 {
	return p.intFixed(8)
}

func (p *packet) intFixed(n int) uint64 {
	b := p.read(n)
	if p.err != nil {
		return 0
	}
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (uint(i) * 8)
	}
	return v
}

// intFixedBE reads an n byte big-endian signed integer. decimal and
// temporal payloads store their packed words big-endian.
func (p *packet) intFixedBE(n int) int64 {
	b := p.read(n)
	if p.err != nil {
		return 0
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	if b[0]&0x80 != 0 {
		// sign extend
		v |= ^uint64(0) << (uint(n) * 8)
	}
	return int64(v)
}

func (p *packet) uintFixedBE(n int) uint64 {
	b := p.read(n)
	if p.err != nil {
		return 0
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// intN reads a length-encoded integer. null is true for the 0xfb marker.
//
// https://dev.mysql.com/doc/internals/en/integer.html#length-encoded-integer
func (p *packet) intN() (v uint64, null bool) {
	b := p.int1()
	if p.err != nil {
		return 0, false
	}
	switch b {
	case 0xfb:
		return 0, true
	case 0xfc:
		return uint64(p.int2()), false
	case 0xfd:
		return uint64(p.int3()), false
	case 0xfe:
		return p.int8(), false
	default:
		return uint64(b), false
	}
}

// bytes, strings ---

func (p *packet) bytes(n int) []byte {
	b := p.read(n)
	if p.err != nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (p *packet) string(n int) string {
	return string(p.read(n))
}

func (p *packet) stringN() string {
	n, null := p.intN()
	if p.err != nil || null {
		return ""
	}
	return p.string(int(n))
}

func (p *packet) bytesEOF() []byte {
	return p.bytes(p.remaining())
}

func (p *packet) stringEOF() string {
	return string(p.read(p.remaining()))
}

// pascalBytes reads a byte string whose length is stored in a
// size byte fixed-width prefix.
func (p *packet) pascalBytes(size int) []byte {
	n := p.intFixed(size)
	if p.err != nil {
		return nil
	}
	return p.bytes(int(n))
}

// variableBytes reads a byte string prefixed with a 7-bit continuation
// encoded length, as used inside binary json values.
func (p *packet) variableBytes() []byte {
	var n uint64
	for i := 0; ; i++ {
		if i == 5 { // math.MaxUint32 fits in 5 bytes
			p.err = ErrMalformedPacket
			return nil
		}
		b := p.int1()
		if p.err != nil {
			return nil
		}
		n |= uint64(b&0x7f) << uint(7*i)
		if b&0x80 == 0 {
			break
		}
	}
	return p.bytes(int(n))
}
