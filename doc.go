/*
Package binlog implements the client side of the mysql binlog replication
protocol: it optionally registers as a replica, requests a dump from a file
position or a GTID set, and decodes the raw event stream into typed events.

The package does not implement the generic command protocol. It expects a
Conn that can run a text query, send one framed command and read framed
responses. Given such a connection:

	s, err := binlog.NewStream(conn, binlog.StreamConfig{
		ServerID: 100,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	for {
		e, err := s.NextEvent()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if re, ok := e.Data.(*binlog.RowsEvent); ok {
			fmt.Printf("%s.%s: %d rows\n", re.Table.SchemaName, re.Table.TableName, len(re.Rows))
		}
	}

to resume after a disconnect, construct a new Stream with the position or
GTID set captured from the old one:

	file, pos := s.Position()
	s2, err := binlog.NewStream(conn2, binlog.StreamConfig{
		ServerID:     100,
		File:         file,
		Position:     pos,
		ResumeStream: true,
	})
*/
package binlog
