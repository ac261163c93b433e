package dialect

// guardOf returns the statement guard a dialect validates with.
func guardOf(d Dialect) *Guard {
	switch v := d.(type) {
	case *postgresDialect:
		return v.guard
	case *mysqlDialect:
		return v.guard
	case *sqliteDialect:
		return v.guard
	}
	return nil
}
