package mirror

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// Connect opens a Postgres handle and checks it is reachable.
func Connect(connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
