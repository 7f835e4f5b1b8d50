package binlog

// replication commands the stream sends. each command renders itself to a
// payload for Conn.WriteCommand; the connection adds the frame header.
//
// https://dev.mysql.com/doc/internals/en/com-binlog-dump.html
// https://dev.mysql.com/doc/internals/en/com-register-slave.html

const (
	COM_REGISTER_SLAVE   = 0x15
	COM_BINLOG_DUMP      = 0x12
	COM_BINLOG_DUMP_GTID = 0x1e

	BINLOG_DUMP_NON_BLOCK = 0x01
	BINLOG_THROUGH_GTID   = 0x04
)

// encoder builds a command payload. little-endian, like everything else
// on the wire.
type encoder struct {
	buf []byte
}

func (e *encoder) int1(v byte) {
	e.buf = append(e.buf, v)
}

func (e *encoder) int2(v uint16) {
	e.buf = append(e.buf, byte(v), byte(v>>8))
}

func (e *encoder) int4(v uint32) {
	e.buf = append(e.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (e *encoder) int8(v uint64) {
	e.int4(uint32(v))
	e.int4(uint32(v >> 32))
}

func (e *encoder) bytes(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) string(s string) {
	e.buf = append(e.buf, s...)
}

// string1 writes a byte length prefixed string, truncated to 255 bytes.
func (e *encoder) string1(s string) {
	if len(s) > 0xff {
		s = s[:0xff]
	}
	e.int1(byte(len(s)))
	e.string(s)
}

// comRegisterSlave announces the replica to the server so it shows up in
// SHOW SLAVE HOSTS. servers tolerate empty report fields.
type comRegisterSlave struct {
	serverID uint32
	hostname string
	username string
	password string
	port     uint16
}

func (c comRegisterSlave) encode() []byte {
	e := &encoder{}
	e.int1(COM_REGISTER_SLAVE)
	e.int4(c.serverID)
	e.string1(c.hostname)
	e.string1(c.username)
	e.string1(c.password)
	e.int2(c.port)
	e.int4(0) // replication rank, unused
	e.int4(0) // master id, unused
	return e.buf
}

// comBinlogDump requests the stream from a file name and offset.
type comBinlogDump struct {
	pos      uint32
	flags    uint16
	serverID uint32
	file     string
}

func (c comBinlogDump) encode() []byte {
	e := &encoder{}
	e.int1(COM_BINLOG_DUMP)
	e.int4(c.pos)
	e.int2(c.flags)
	e.int4(c.serverID)
	e.string(c.file)
	return e.buf
}

// comBinlogDumpGTID requests the stream by gtid set. the file name and
// position fields are still present on the wire but the server resumes
// from the first transaction outside the set.
type comBinlogDumpGTID struct {
	flags    uint16
	serverID uint32
	gtidSet  GtidSet
}

func (c comBinlogDumpGTID) encode() []byte {
	e := &encoder{}
	e.int1(COM_BINLOG_DUMP_GTID)
	e.int2(c.flags | BINLOG_THROUGH_GTID)
	e.int4(c.serverID)
	e.int4(3)                // file name length
	e.bytes([]byte{0, 0, 0}) // empty name, padded
	e.int8(4)                // position, start of file
	set := c.gtidSet.Encode()
	e.int4(uint32(len(set)))
	e.bytes(set)
	return e.buf
}
