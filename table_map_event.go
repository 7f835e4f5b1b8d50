package binlog

import (
	"fmt"
)

// https://dev.mysql.com/doc/internals/en/table-map-event.html

// TableMapEvent binds a numeric table id to a schema/table name and
// column layout for the row events that follow it in the same file.
type TableMapEvent struct {
	TableID    uint64
	Flags      uint16
	SchemaName string
	TableName  string
	Columns    []Column
}

func decodeTableMapEvent(s *Stream, h *EventHeader, body *packet) (interface{}, error) {
	e := &TableMapEvent{}
	e.TableID = body.int6()
	e.Flags = body.int2()
	schemaLen := body.int1()
	e.SchemaName = body.string(int(schemaLen))
	body.advance(1) // nul terminator
	tableLen := body.int1()
	e.TableName = body.string(int(tableLen))
	body.advance(1) // nul terminator
	numCol, _ := body.intN()
	if body.err != nil {
		return nil, body.err
	}
	if !s.tableAllowed(e.SchemaName, e.TableName) {
		body.advance(body.remaining())
		return nil, body.err
	}
	if cached := s.tableMaps[e.TableID]; s.conf.FreezeSchema && cached != nil &&
		cached.SchemaName == e.SchemaName && cached.TableName == e.TableName {
		body.advance(body.remaining())
		return cached, body.err
	}
	types := body.bytes(int(numCol))
	if _, null := body.intN(); null { // metadata block length
		return nil, ErrMalformedPacket
	}
	if body.err != nil {
		return nil, body.err
	}

	schema, err := s.tableSchema(e.SchemaName, e.TableName)
	if err != nil {
		return nil, fmt.Errorf("binlog: fetching schema of %s.%s: %w", e.SchemaName, e.TableName, err)
	}
	e.Columns = make([]Column, 0, numCol)
	for i, typ := range types {
		var cs ColumnSchema
		if i < len(schema) {
			cs = schema[i]
		}
		e.Columns = append(e.Columns, decodeColumn(typ, cs, body))
	}
	// null bitmap and optional metadata follow; nothing below needs them
	body.advance(body.remaining())
	return e, body.err
}

// tableSchema runs the ordinal-ordered information_schema lookup,
// preferring the configured metadata queryer over the stream connection.
func (s *Stream) tableSchema(schema, table string) ([]ColumnSchema, error) {
	q := fmt.Sprintf(`SELECT COLUMN_NAME, COLLATION_NAME, CHARACTER_SET_NAME,
			COLUMN_COMMENT, COLUMN_TYPE, COLUMN_KEY
		FROM information_schema.columns
		WHERE table_schema = '%s' AND table_name = '%s'
		ORDER BY ORDINAL_POSITION`, schema, table)
	queryer := Queryer(s.conn)
	if s.conf.MetadataQueryer != nil {
		queryer = s.conf.MetadataQueryer
	}
	rows, err := queryer.Query(q)
	if err != nil {
		return nil, err
	}
	columns := make([]ColumnSchema, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, ErrMalformedPacket
		}
		columns = append(columns, ColumnSchema{
			Name:      row[0],
			Collation: row[1],
			Charset:   row[2],
			Comment:   row[3],
			Type:      row[4],
			Key:       row[5],
		})
	}
	return columns, nil
}
