package binlog

import (
	"errors"
	"fmt"
)

// Queryer runs a text protocol statement and returns its rows with
// values rendered as strings, columns in select order. Statements
// without a result set return (nil, nil).
type Queryer interface {
	Query(q string) ([][]string, error)
}

// Conn is the connection the stream drives. Implementations own the
// handshake, authentication and TLS; this package only needs framed IO,
// text queries and control over the frame sequence counter.
type Conn interface {
	Queryer

	// WriteCommand frames payload and sends it as a fresh command,
	// with the outgoing sequence counter reset to zero.
	WriteCommand(payload []byte) error

	// ReadPacket returns the payload of the next frame.
	ReadPacket() ([]byte, error)

	// ResetSequence overrides the frame sequence counter. Dump
	// responses restart numbering at 1.
	ResetSequence(seq uint8)

	Close() error
}

var (
	// ErrMalformedPacket indicates a frame that does not follow the
	// protocol layout. It is fatal; the stream cannot resynchronize.
	ErrMalformedPacket = errors.New("binlog: malformed packet")

	// ErrStreamClosed is returned by operations on a stream after Close.
	ErrStreamClosed = errors.New("binlog: stream is closed")

	// ErrBinlogNotEnabled is returned when position discovery finds no
	// master status row.
	ErrBinlogNotEnabled = errors.New("binlog: binary logging is not enabled on server")
)

// TableMetadataUnavailableError is returned in strict metadata mode when a
// row event references a table id with no cached table map.
type TableMetadataUnavailableError struct {
	TableID uint64
}

func (e *TableMetadataUnavailableError) Error() string {
	return fmt.Sprintf("binlog: no table map for table id %d", e.TableID)
}

// ServerError is an ERR packet received in place of an event frame.
type ServerError struct {
	Code    uint16
	State   string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("binlog: server error %d (%s): %s", e.Code, e.State, e.Message)
}

// disconnect codes that end the stream cleanly instead of failing it:
// 2013 lost connection during query, 2006 server has gone away.
var expectedErrorCodes = map[uint16]bool{
	2013: true,
	2006: true,
}

const (
	okMarker  = 0x00
	eofMarker = 0xfe
	errMarker = 0xff
)

// https://dev.mysql.com/doc/internals/en/packet-ERR_Packet.html
func decodeErrPacket(p *packet) (*ServerError, error) {
	if marker := p.int1(); marker != errMarker {
		return nil, ErrMalformedPacket
	}
	e := &ServerError{}
	e.Code = p.int2()
	if p.more() && p.peek() == '#' {
		p.advance(1) // sql state marker
		e.State = p.string(5)
	}
	e.Message = p.stringEOF()
	if p.err != nil {
		return nil, p.err
	}
	return e, nil
}
