package binlog

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// an eventDecoder consumes exactly the event payload handed to it in body.
// the trailing checksum, if negotiated, is already stripped.
type eventDecoder func(s *Stream, h *EventHeader, body *packet) (interface{}, error)

// eventDecoders maps the header's type code to its payload decoder.
// codes absent from the map, and the two gtid bookkeeping codes that are
// not decoded yet, fall back to the NotImplementedEvent passthrough.
var eventDecoders = map[EventType]eventDecoder{
	QUERY_EVENT:              decodeQueryEvent,
	STOP_EVENT:               decodeStopEvent,
	ROTATE_EVENT:             decodeRotateEvent,
	INTVAR_EVENT:             decodeIntVarEvent,
	FORMAT_DESCRIPTION_EVENT: decodeFormatDescriptionEvent,
	XID_EVENT:                decodeXidEvent,
	BEGIN_LOAD_QUERY_EVENT:   decodeBeginLoadQueryEvent,
	EXECUTE_LOAD_QUERY_EVENT: decodeExecuteLoadQueryEvent,
	TABLE_MAP_EVENT:          decodeTableMapEvent,
	WRITE_ROWS_EVENTv1:       decodeRowsEvent,
	UPDATE_ROWS_EVENTv1:      decodeRowsEvent,
	DELETE_ROWS_EVENTv1:      decodeRowsEvent,
	WRITE_ROWS_EVENTv2:       decodeRowsEvent,
	UPDATE_ROWS_EVENTv2:      decodeRowsEvent,
	DELETE_ROWS_EVENTv2:      decodeRowsEvent,
	GTID_EVENT:               decodeGtidEvent,
	HEARTBEAT_EVENT:          decodeHeartbeatEvent,
	ANONYMOUS_GTID_EVENT:     decodeNotImplementedEvent,
	PREVIOUS_GTIDS_EVENT:     decodeNotImplementedEvent,
}

func decoderFor(t EventType) eventDecoder {
	if d, ok := eventDecoders[t]; ok {
		return d
	}
	return decodeNotImplementedEvent
}

// RotateEvent is written when the server switches to a new binlog file.
//
// https://dev.mysql.com/doc/internals/en/rotate-event.html
type RotateEvent struct {
	Position   uint64
	NextBinlog string
}

func decodeRotateEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &RotateEvent{}
	e.Position = body.int8()
	e.NextBinlog = body.stringEOF()
	return e, body.err
}

// QueryEvent is written for every replicated statement.
//
// https://dev.mysql.com/doc/internals/en/query-event.html
type QueryEvent struct {
	ThreadID      uint32
	ExecutionTime uint32
	ErrorCode     uint16
	StatusVars    []byte
	Schema        string
	Query         string
}

func decodeQueryEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &QueryEvent{}
	e.ThreadID = body.int4()
	e.ExecutionTime = body.int4()
	schemaLen := body.int1()
	e.ErrorCode = body.int2()
	statusVarsLen := body.int2()
	if body.err != nil {
		return nil, body.err
	}
	e.StatusVars = body.bytes(int(statusVarsLen))
	e.Schema = body.string(int(schemaLen))
	body.advance(1)
	e.Query = body.stringEOF()
	return e, body.err
}

// XidEvent marks a transaction commit.
type XidEvent struct {
	XID uint64
}

func decodeXidEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &XidEvent{XID: body.int8()}
	return e, body.err
}

// GtidEvent announces the gtid of the transaction that follows.
type GtidEvent struct {
	CommitFlag bool
	SID        uuid.UUID
	GNO        uint64
}

// Gtid renders the event as "SID:GNO",
// e.g. 3E11FA47-71CA-11E1-9E33-C80AA9429562:23.
func (e *GtidEvent) Gtid() string {
	return strings.ToUpper(e.SID.String()) + ":" + strconv.FormatUint(e.GNO, 10)
}

func decodeGtidEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &GtidEvent{}
	e.CommitFlag = body.int1() == 1
	copy(e.SID[:], body.read(16))
	e.GNO = body.int8()
	body.advance(body.remaining()) // logical timestamps, if present
	return e, body.err
}

// HeartbeatEvent is sent in absence of data so the replica knows the
// server is still alive. It carries the current log file name and is
// never written to log files.
type HeartbeatEvent struct {
	LogFile string
}

func decodeHeartbeatEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &HeartbeatEvent{LogFile: body.stringEOF()}
	return e, body.err
}

// FormatDescriptionEvent is the first event of every binlog file.
//
// https://dev.mysql.com/doc/internals/en/format-description-event.html
type FormatDescriptionEvent struct {
	BinlogVersion          uint16
	ServerVersion          string
	CreateTimestamp        uint32
	EventHeaderLength      uint8
	EventTypeHeaderLengths []byte
}

func decodeFormatDescriptionEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &FormatDescriptionEvent{}
	e.BinlogVersion = body.int2()
	e.ServerVersion = body.string(50)
	if i := strings.IndexByte(e.ServerVersion, 0); i != -1 {
		e.ServerVersion = e.ServerVersion[:i]
	}
	e.CreateTimestamp = body.int4()
	e.EventHeaderLength = body.int1()
	e.EventTypeHeaderLengths = body.bytesEOF()
	return e, body.err
}

// StopEvent signals the last event in the file.
type StopEvent struct{}

func decodeStopEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	body.advance(body.remaining())
	return &StopEvent{}, body.err
}

// IntVarEvent precedes a statement using an AUTO_INCREMENT column or
// LAST_INSERT_ID(). Not used with row based logging.
type IntVarEvent struct {
	Type  uint8
	Value uint64
}

func decodeIntVarEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &IntVarEvent{}
	e.Type = body.int1()
	e.Value = body.int8()
	return e, body.err
}

// BeginLoadQueryEvent carries the file block of a LOAD DATA INFILE.
type BeginLoadQueryEvent struct {
	FileID    uint32
	BlockData []byte
}

func decodeBeginLoadQueryEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &BeginLoadQueryEvent{}
	e.FileID = body.int4()
	e.BlockData = body.bytesEOF()
	return e, body.err
}

// ExecuteLoadQueryEvent ends a LOAD DATA INFILE sub-protocol exchange.
type ExecuteLoadQueryEvent struct {
	ThreadID         uint32
	ExecutionTime    uint32
	SchemaLength     uint8
	ErrorCode        uint16
	StatusVarsLength uint16
	FileID           uint32
	StartPos         uint32
	EndPos           uint32
	DupHandlingFlags uint8
}

func decodeExecuteLoadQueryEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &ExecuteLoadQueryEvent{}
	e.ThreadID = body.int4()
	e.ExecutionTime = body.int4()
	e.SchemaLength = body.int1()
	e.ErrorCode = body.int2()
	e.StatusVarsLength = body.int2()
	e.FileID = body.int4()
	e.StartPos = body.int4()
	e.EndPos = body.int4()
	e.DupHandlingFlags = body.int1()
	body.advance(body.remaining())
	return e, body.err
}

// NotImplementedEvent stands in for event types this package does not
// decode. The payload is skipped so position tracking stays correct.
type NotImplementedEvent struct {
	EventType EventType
	Size      int
}

func decodeNotImplementedEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &NotImplementedEvent{EventType: h.EventType, Size: body.remaining()}
	body.advance(body.remaining())
	return e, body.err
}
