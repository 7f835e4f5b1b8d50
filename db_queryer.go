package binlog

import "database/sql"

// DBQueryer adapts a database/sql pool to the Queryer interface, so
// table metadata lookups can run on a regular pooled connection while
// the stream's own connection is busy serving the dump.
type DBQueryer struct {
	DB *sql.DB
}

func (q DBQueryer) Query(stmt string) ([][]string, error) {
	rows, err := q.DB.Query(stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var result [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
