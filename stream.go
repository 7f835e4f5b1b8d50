package binlog

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// the server treats heartbeat periods above this as out of range.
const maxHeartbeatPeriod = 4294967 * time.Second

type streamState int

const (
	stateDisconnected streamState = iota
	stateRegistering
	stateStreaming
	stateClosed
)

// StreamConfig configures a replication stream. ServerID is the only
// required field; it must be unique among all replicas of the server.
type StreamConfig struct {
	ServerID uint32

	// reported to the server via COM_REGISTER_SLAVE so the replica
	// shows up in SHOW SLAVE HOSTS. registration is skipped entirely
	// when none of these are set.
	Hostname string
	Username string
	Password string
	Port     uint16

	// HeartbeatPeriod asks the server to send heartbeat events when
	// idle. zero disables heartbeats; values above the server maximum
	// are clamped.
	HeartbeatPeriod time.Duration

	// SlaveUUID sets the session replica uuid, useful to tell replicas
	// apart on the server side.
	SlaveUUID string

	// File and Position select where a file-based dump starts. when
	// File is empty the current server position is discovered with
	// SHOW MASTER STATUS. Position is honored only with ResumeStream;
	// otherwise the dump starts at offset 4, the start of the file.
	File         string
	Position     uint32
	ResumeStream bool

	// UseGtid switches to a gtid dump request resuming after GtidSet.
	UseGtid bool
	GtidSet GtidSet

	// Blocking keeps the connection open waiting for new events at
	// end of log instead of terminating the stream.
	Blocking bool

	// SkipToTimestamp discards events older than the given unix time.
	// discarded events still advance the tracked position.
	SkipToTimestamp uint32

	// OnlyEvents is the allow-list of event types surfaced by
	// NextEvent. nil means every type. rotate and table map events are
	// always processed internally regardless, the stream needs their
	// side effects.
	OnlyEvents []EventType

	// IgnoredEvents drops the given event types even when OnlyEvents
	// allows them.
	IgnoredEvents []EventType

	// schema and table filters. a filtered table's map event is never
	// cached or surfaced, and its row events are dropped with it. an
	// empty slice leaves that dimension unfiltered.
	OnlySchemas    []string
	IgnoredSchemas []string
	OnlyTables     []string
	IgnoredTables  []string

	// FreezeSchema keeps cached table maps across rotates and reuses
	// them for repeated table ids, skipping the per-table metadata
	// query. Only safe when no DDL runs while streaming.
	FreezeSchema bool

	// FailOnTableMetadataUnavailable makes a row event referencing an
	// unknown table id an error instead of a silent skip.
	FailOnTableMetadataUnavailable bool

	// MetadataQueryer, when set, serves the information_schema lookups
	// triggered by table map events. Servers reject queries on a
	// connection that is serving a dump, so point this at a second
	// connection (DBQueryer wraps a database/sql pool). When nil the
	// lookups go through the stream's own connection.
	MetadataQueryer Queryer

	Logger zerolog.Logger
}

// Stream is a resumable, lazy sequence of decoded binlog events. A
// single goroutine drives one Stream; NextEvent is the only call that
// blocks, and only while waiting for the next frame.
type Stream struct {
	conn Conn
	conf StreamConfig
	log  zerolog.Logger

	state    streamState
	checksum bool
	file     string
	pos      uint32

	tableMaps map[uint64]*TableMapEvent
	allowed   map[EventType]bool
	ignored   map[EventType]bool
}

// NewStream wraps an established connection. The registration and dump
// request are deferred to the first NextEvent, so a stream that fails
// to connect can be pulled again to retry.
func NewStream(conn Conn, conf StreamConfig) (*Stream, error) {
	if conf.ServerID == 0 {
		return nil, fmt.Errorf("binlog: stream requires a nonzero server id")
	}
	s := &Stream{
		conn:      conn,
		conf:      conf,
		log:       conf.Logger,
		tableMaps: make(map[uint64]*TableMapEvent),
		file:      conf.File,
		pos:       conf.Position,
	}
	if len(conf.OnlyEvents) > 0 {
		s.allowed = make(map[EventType]bool, len(conf.OnlyEvents))
		for _, t := range conf.OnlyEvents {
			s.allowed[t] = true
		}
	}
	if len(conf.IgnoredEvents) > 0 {
		s.ignored = make(map[EventType]bool, len(conf.IgnoredEvents))
		for _, t := range conf.IgnoredEvents {
			s.ignored[t] = true
		}
	}
	return s, nil
}

// tableAllowed applies the schema and table filters.
func (s *Stream) tableAllowed(schema, table string) bool {
	if len(s.conf.OnlySchemas) > 0 && !stringIn(s.conf.OnlySchemas, schema) {
		return false
	}
	if stringIn(s.conf.IgnoredSchemas, schema) {
		return false
	}
	if len(s.conf.OnlyTables) > 0 && !stringIn(s.conf.OnlyTables, table) {
		return false
	}
	return !stringIn(s.conf.IgnoredTables, table)
}

func stringIn(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Position returns the binlog file and offset of the last event pulled.
func (s *Stream) Position() (file string, pos uint32) {
	return s.file, s.pos
}

// Close releases the underlying connection. The stream is unusable
// afterwards; resume by building a new one from Position or a gtid set.
func (s *Stream) Close() error {
	if s.state == stateClosed {
		return ErrStreamClosed
	}
	s.state = stateClosed
	return s.conn.Close()
}

// connect runs the registration sequence: checksum discovery, session
// variables, slave registration when report fields are configured, then
// the dump request.
func (s *Stream) connect() error {
	s.state = stateRegistering

	if err := s.negotiateChecksum(); err != nil {
		return err
	}
	if s.conf.HeartbeatPeriod > 0 {
		period := s.conf.HeartbeatPeriod
		if period > maxHeartbeatPeriod {
			period = maxHeartbeatPeriod
		}
		q := fmt.Sprintf("SET @master_heartbeat_period = %d", period.Nanoseconds())
		if _, err := s.conn.Query(q); err != nil {
			return err
		}
	}
	if s.conf.SlaveUUID != "" {
		q := fmt.Sprintf("SET @slave_uuid = '%s'", s.conf.SlaveUUID)
		if _, err := s.conn.Query(q); err != nil {
			return err
		}
	}
	if s.conf.Hostname != "" || s.conf.Username != "" || s.conf.Port != 0 {
		if err := s.registerSlave(); err != nil {
			return err
		}
	}
	if err := s.requestDump(); err != nil {
		return err
	}
	// dump responses restart frame numbering
	s.conn.ResetSequence(1)
	s.state = stateStreaming
	s.log.Debug().Uint32("serverID", s.conf.ServerID).
		Str("file", s.file).Uint32("pos", s.pos).
		Bool("checksum", s.checksum).Msg("binlog stream started")
	return nil
}

func (s *Stream) negotiateChecksum() error {
	rows, err := s.conn.Query("SHOW GLOBAL VARIABLES LIKE 'BINLOG_CHECKSUM'")
	if err != nil {
		return err
	}
	if len(rows) == 0 || len(rows[0]) < 2 || rows[0][1] == "NONE" {
		s.checksum = false
		return nil
	}
	s.checksum = true
	// the server strips checksums for replicas that do not declare
	// support, so declare it
	_, err = s.conn.Query("SET @master_binlog_checksum = @@global.binlog_checksum")
	return err
}

func (s *Stream) registerSlave() error {
	cmd := comRegisterSlave{
		serverID: s.conf.ServerID,
		hostname: s.conf.Hostname,
		username: s.conf.Username,
		password: s.conf.Password,
		port:     s.conf.Port,
	}
	if err := s.conn.WriteCommand(cmd.encode()); err != nil {
		return err
	}
	frame, err := s.conn.ReadPacket()
	if err != nil {
		return err
	}
	if len(frame) > 0 && frame[0] == errMarker {
		serr, derr := decodeErrPacket(newPacket(frame))
		if derr != nil {
			return derr
		}
		return serr
	}
	return nil
}

func (s *Stream) requestDump() error {
	var flags uint16
	if !s.conf.Blocking {
		flags |= BINLOG_DUMP_NON_BLOCK
	}
	if s.conf.UseGtid {
		cmd := comBinlogDumpGTID{
			flags:    flags,
			serverID: s.conf.ServerID,
			gtidSet:  s.conf.GtidSet,
		}
		return s.conn.WriteCommand(cmd.encode())
	}

	if s.file == "" {
		file, pos, err := s.masterStatus()
		if err != nil {
			return err
		}
		s.file, s.pos = file, pos
	}
	pos := uint32(4) // start of file, after the magic header
	if s.conf.ResumeStream {
		pos = s.pos
	}
	s.pos = pos
	cmd := comBinlogDump{
		pos:      pos,
		flags:    flags,
		serverID: s.conf.ServerID,
		file:     s.file,
	}
	return s.conn.WriteCommand(cmd.encode())
}

func (s *Stream) masterStatus() (file string, pos uint32, err error) {
	rows, err := s.conn.Query("SHOW MASTER STATUS")
	if err != nil {
		return "", 0, err
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return "", 0, ErrBinlogNotEnabled
	}
	p, err := strconv.ParseUint(rows[0][1], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("binlog: malformed master status position %q", rows[0][1])
	}
	return rows[0][0], uint32(p), nil
}

// NextEvent pulls the next event allowed by the configuration. It
// returns io.EOF when the server ends the stream, including the
// expected disconnect error codes; any other error is fatal to this
// stream and a new one must be built to resume.
func (s *Stream) NextEvent() (Event, error) {
	switch s.state {
	case stateClosed:
		return Event{}, ErrStreamClosed
	case stateDisconnected:
		if err := s.connect(); err != nil {
			s.state = stateDisconnected
			return Event{}, err
		}
	}

	for {
		frame, err := s.conn.ReadPacket()
		if err != nil {
			s.state = stateDisconnected
			return Event{}, err
		}
		if len(frame) == 0 {
			return Event{}, ErrMalformedPacket
		}
		switch {
		case frame[0] == eofMarker && len(frame) < 9:
			s.state = stateDisconnected
			return Event{}, io.EOF
		case frame[0] == errMarker:
			serr, derr := decodeErrPacket(newPacket(frame))
			if derr != nil {
				return Event{}, derr
			}
			s.state = stateDisconnected
			if expectedErrorCodes[serr.Code] {
				s.log.Debug().Uint16("code", serr.Code).Msg("server closed binlog stream")
				return Event{}, io.EOF
			}
			return Event{}, serr
		}

		ev, ok, err := s.handleFrame(frame)
		if err != nil {
			return Event{}, err
		}
		if ok {
			return ev, nil
		}
	}
}

// handleFrame decodes one event frame and applies its side effects.
// ok is false for events outside the allow-list or below the timestamp
// threshold; the read loop pulls the next frame instead.
func (s *Stream) handleFrame(frame []byte) (ev Event, ok bool, err error) {
	p := newPacket(frame)
	var h EventHeader
	if err := h.decode(p); err != nil {
		return Event{}, false, err
	}
	size := h.payloadSize(s.checksum)
	if size < 0 || size > p.remaining() {
		return Event{}, false, ErrMalformedPacket
	}
	body := newPacket(p.read(size))

	// rotate and table map side effects apply even when filtered out
	allowed := (s.allowed == nil || s.allowed[h.EventType]) && !s.ignored[h.EventType]
	decode := allowed || h.EventType == ROTATE_EVENT || h.EventType == TABLE_MAP_EVENT

	var data interface{}
	if decode {
		if data, err = decoderFor(h.EventType)(s, &h, body); err != nil {
			return Event{}, false, err
		}
	}

	// a rotate carries the position of the next file; the header's next
	// position would point past the end of the old one
	if e, isRotate := data.(*RotateEvent); isRotate {
		s.file = e.NextBinlog
		s.pos = uint32(e.Position)
		// table ids are in-memory server identifiers and may be reused
		// after a restart, which always rotates
		if !s.conf.FreezeSchema {
			s.tableMaps = make(map[uint64]*TableMapEvent)
		}
		s.log.Debug().Str("file", s.file).Uint32("pos", s.pos).Msg("binlog rotated")
	} else if h.NextPos != 0 {
		s.pos = h.NextPos
	}
	if h.Timestamp < s.conf.SkipToTimestamp {
		return Event{}, false, nil
	}
	if e, isMap := data.(*TableMapEvent); isMap {
		s.tableMaps[e.TableID] = e
	}
	if !allowed || data == nil {
		return Event{}, false, nil
	}
	return Event{Header: h, Data: data}, true, nil
}
