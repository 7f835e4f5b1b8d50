package binlog

// https://dev.mysql.com/doc/internals/en/rows-event.html

// bitmap reads bits least significant first, the order column bitmaps
// use on the wire.
type bitmap []byte

func (bm bitmap) isTrue(i int) bool {
	return bm[i/8]>>(uint(i)%8)&1 == 1
}

func bitmapSize(numCol uint64) int {
	return int(numCol+7) / 8
}

// RowChange is one changed row. Writes carry only After, deletes only
// Before, updates both.
type RowChange struct {
	Before []interface{}
	After  []interface{}
}

// RowsEvent carries the row images of one insert, update or delete,
// already decoded against the table map cached for its table id.
type RowsEvent struct {
	EventType EventType
	TableID   uint64
	Flags     uint16
	Table     *TableMapEvent
	Rows      []RowChange
}

func decodeRowsEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &RowsEvent{EventType: h.EventType}
	e.TableID = body.int6()
	e.Flags = body.int2()
	if h.EventType.isRowsV2() {
		extraLen := body.int2()
		if extraLen >= 2 {
			body.advance(int(extraLen) - 2)
		}
	}
	numCol, _ := body.intN()
	if body.err != nil {
		return nil, body.err
	}

	e.Table = s.tableMaps[e.TableID]
	if e.Table == nil {
		if s.conf.FailOnTableMetadataUnavailable {
			return nil, &TableMetadataUnavailableError{TableID: e.TableID}
		}
		// without metadata the row images cannot be decoded; drop the
		// whole event
		body.advance(body.remaining())
		return nil, body.err
	}
	if !s.tableAllowed(e.Table.SchemaName, e.Table.TableName) {
		body.advance(body.remaining())
		return nil, body.err
	}

	present := bitmap(body.bytes(bitmapSize(numCol)))
	presentAfter := present
	if h.EventType.IsUpdateRows() {
		presentAfter = bitmap(body.bytes(bitmapSize(numCol)))
	}
	if body.err != nil {
		return nil, body.err
	}

	for body.more() {
		var row RowChange
		var err error
		if h.EventType.IsWriteRows() {
			row.After, err = decodeRowImage(body, e.Table, numCol, present)
		} else {
			row.Before, err = decodeRowImage(body, e.Table, numCol, present)
			if err == nil && h.EventType.IsUpdateRows() {
				row.After, err = decodeRowImage(body, e.Table, numCol, presentAfter)
			}
		}
		if err != nil {
			return nil, err
		}
		e.Rows = append(e.Rows, row)
	}
	return e, body.err
}

// a row image is a null bitmap over the present columns followed by the
// non-null values in column order. absent columns yield nil.
func decodeRowImage(body *packet, table *TableMapEvent, numCol uint64, present bitmap) ([]interface{}, error) {
	presentCount := 0
	for i := 0; i < int(numCol); i++ {
		if present.isTrue(i) {
			presentCount++
		}
	}
	nulls := bitmap(body.bytes(bitmapSize(uint64(presentCount))))
	if body.err != nil {
		return nil, body.err
	}

	values := make([]interface{}, numCol)
	pos := 0
	for i := 0; i < int(numCol); i++ {
		if !present.isTrue(i) {
			continue
		}
		null := nulls.isTrue(pos)
		pos++
		if null {
			continue
		}
		v, err := decodeValue(body, table.Columns[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
