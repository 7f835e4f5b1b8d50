package binlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testTableMap() *TableMapEvent {
	return &TableMapEvent{
		TableID:    1077,
		SchemaName: "test",
		TableName:  "users",
		Columns: []Column{
			{Type: MYSQL_TYPE_LONG, Name: "id"},
			{Type: MYSQL_TYPE_VARCHAR, Name: "name", MaxLength: 10},
		},
	}
}

func rowsStream(strict bool) *Stream {
	return &Stream{
		conf:      StreamConfig{FailOnTableMetadataUnavailable: strict},
		tableMaps: map[uint64]*TableMapEvent{1077: testTableMap()},
	}
}

func rowsBody(eventType EventType, rows ...[]byte) []byte {
	body := []byte{0x35, 0x04, 0, 0, 0, 0} // table id 1077
	body = append(body, 0x01, 0x00)        // flags
	if eventType.isRowsV2() {
		body = append(body, 0x02, 0x00) // extra data length, none
	}
	body = append(body, 0x02) // column count
	body = append(body, 0x03) // present bitmap
	if eventType.IsUpdateRows() {
		body = append(body, 0x03) // after image bitmap
	}
	for _, row := range rows {
		body = append(body, row...)
	}
	return body
}

func TestDecodeRowsEvent_write(t *testing.T) {
	row := []byte{0x00}                            // null bitmap
	row = append(row, 0x07, 0x00, 0x00, 0x00)      // id 7
	row = append(row, 0x03, 'b', 'o', 'b')         // name "bob"
	body := rowsBody(WRITE_ROWS_EVENTv2, row, row) // two identical rows

	h := &EventHeader{EventType: WRITE_ROWS_EVENTv2}
	v, err := decodeRowsEvent(rowsStream(false), h, newPacket(body))
	require.NoError(t, err)
	e := v.(*RowsEvent)
	require.Equal(t, uint64(1077), e.TableID)
	require.Equal(t, "users", e.Table.TableName)
	require.Len(t, e.Rows, 2)
	require.Nil(t, e.Rows[0].Before)
	require.Equal(t, []interface{}{int32(7), "bob"}, e.Rows[0].After)
}

func TestDecodeRowsEvent_nullColumn(t *testing.T) {
	row := []byte{0x02}                       // name is null
	row = append(row, 0x07, 0x00, 0x00, 0x00) // id 7
	body := rowsBody(WRITE_ROWS_EVENTv1, row)

	h := &EventHeader{EventType: WRITE_ROWS_EVENTv1}
	v, err := decodeRowsEvent(rowsStream(false), h, newPacket(body))
	require.NoError(t, err)
	e := v.(*RowsEvent)
	require.Equal(t, []interface{}{int32(7), nil}, e.Rows[0].After)
}

func TestDecodeRowsEvent_update(t *testing.T) {
	var row []byte
	row = append(row, 0x00)                   // before null bitmap
	row = append(row, 0x07, 0x00, 0x00, 0x00) // id 7
	row = append(row, 0x03, 'b', 'o', 'b')
	row = append(row, 0x00)                   // after null bitmap
	row = append(row, 0x07, 0x00, 0x00, 0x00) // id 7
	row = append(row, 0x05, 'a', 'l', 'i', 'c', 'e')
	body := rowsBody(UPDATE_ROWS_EVENTv2, row)

	h := &EventHeader{EventType: UPDATE_ROWS_EVENTv2}
	v, err := decodeRowsEvent(rowsStream(false), h, newPacket(body))
	require.NoError(t, err)
	e := v.(*RowsEvent)
	require.Len(t, e.Rows, 1)
	require.Equal(t, []interface{}{int32(7), "bob"}, e.Rows[0].Before)
	require.Equal(t, []interface{}{int32(7), "alice"}, e.Rows[0].After)
}

func TestDecodeRowsEvent_delete(t *testing.T) {
	row := []byte{0x00}
	row = append(row, 0x07, 0x00, 0x00, 0x00)
	row = append(row, 0x03, 'b', 'o', 'b')
	body := rowsBody(DELETE_ROWS_EVENTv2, row)

	h := &EventHeader{EventType: DELETE_ROWS_EVENTv2}
	v, err := decodeRowsEvent(rowsStream(false), h, newPacket(body))
	require.NoError(t, err)
	e := v.(*RowsEvent)
	require.Equal(t, []interface{}{int32(7), "bob"}, e.Rows[0].Before)
	require.Nil(t, e.Rows[0].After)
}

func TestDecodeRowsEvent_unknownTable(t *testing.T) {
	body := rowsBody(WRITE_ROWS_EVENTv2)
	body[0] = 0xff // unknown table id

	h := &EventHeader{EventType: WRITE_ROWS_EVENTv2}
	_, err := decodeRowsEvent(rowsStream(true), h, newPacket(body))
	var unavailable *TableMetadataUnavailableError
	require.ErrorAs(t, err, &unavailable)

	// without strict mode the whole event is dropped; a shell with no
	// table metadata would be useless to callers
	p := newPacket(body)
	v, err := decodeRowsEvent(rowsStream(false), h, p)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, 0, p.remaining())
}

func TestDecodeRowsEvent_filteredTable(t *testing.T) {
	row := []byte{0x00}
	row = append(row, 0x07, 0x00, 0x00, 0x00)
	row = append(row, 0x03, 'b', 'o', 'b')
	body := rowsBody(WRITE_ROWS_EVENTv2, row)

	s := rowsStream(false)
	s.conf.IgnoredTables = []string{"users"}

	h := &EventHeader{EventType: WRITE_ROWS_EVENTv2}
	p := newPacket(body)
	v, err := decodeRowsEvent(s, h, p)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, 0, p.remaining())
}

func TestBitmap(t *testing.T) {
	bm := bitmap{0x05, 0x01} // bits 0, 2, 8
	require.True(t, bm.isTrue(0))
	require.False(t, bm.isTrue(1))
	require.True(t, bm.isTrue(2))
	require.True(t, bm.isTrue(8))
	require.False(t, bm.isTrue(9))

	require.Equal(t, 1, bitmapSize(8))
	require.Equal(t, 2, bitmapSize(9))
}
