package storage

import "fmt"

// filterEqual appends an equality predicate when value is set. An empty
// value means unfiltered: the predicate is omitted entirely, so no parameter
// is ever bound (or cast) against the column. Binding '' against a uuid
// column fails at plan time under lib/pq even behind an OR short-circuit.
func filterEqual(query string, args []interface{}, column, value string) (string, []interface{}) {
	if value == "" {
		return query, args
	}
	args = append(args, value)
	return fmt.Sprintf("%s AND %s = $%d", query, column, len(args)), args
}

// withPage appends LIMIT/OFFSET bound at the next parameter positions.
func withPage(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	args = append(args, limit, offset)
	return fmt.Sprintf("%s LIMIT $%d OFFSET $%d", query, len(args)-1, len(args)), args
}
