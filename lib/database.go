package lib

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	errorWrapper "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Name     string
	Password string
	SSLMode  string
}

// DSN builds the libpq key/value connection string, leaving the password out
// when empty. Values are single-quoted so spaces and quotes survive.
func (c DatabaseConfig) DSN() string {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s dbname=%s",
		quoteDSNValue(c.Host), c.Port, quoteDSNValue(c.User), quoteDSNValue(c.Name))
	if c.SSLMode != "" {
		psqlInfo = fmt.Sprintf("%s sslmode=%s", psqlInfo, quoteDSNValue(c.SSLMode))
	}
	if c.Password != "" {
		psqlInfo = fmt.Sprintf("%s password=%s", psqlInfo, quoteDSNValue(c.Password))
	}
	return psqlInfo
}

func quoteDSNValue(v string) string {
	v = strings.Replace(v, `\`, `\\`, -1)
	v = strings.Replace(v, `'`, `\'`, -1)
	return "'" + v + "'"
}

func (c DatabaseConfig) Validate() error {
	if c.Host == "" {
		return errors.New("the value of POSTGRES_HOST cannot be empty")
	}
	if c.Port <= 0 {
		return errors.New("the value of POSTGRES_PORT must be a positive number")
	}
	if c.User == "" {
		return errors.New("the value of POSTGRES_USER_NAME cannot be empty")
	}
	if c.Name == "" {
		return errors.New("the value of POSTGRES_DATABASE_NAME cannot be empty")
	}
	return nil
}

// Database stores measured test durations per suite in the test_timings table.
type Database struct {
	db *sql.DB
}

//connect with database server and return a database struct
func NewDatabase(cfg DatabaseConfig) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errorWrapper.Wrap(err, "failed in connecting with database")
	}
	return &Database{db: db}, nil
}

// WrapDB builds a Database on an already opened pool. It lets tests run the
// store against a stub driver.
func WrapDB(db *sql.DB) *Database {
	return &Database{db: db}
}

//ping to database server,
func (d *Database) Ping() (bool, error) {
	err := d.db.Ping()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// GetTimings returns every recorded timing of suite. A NULL duration is
// returned as zero so the partitioner charges the zero-duration floor.
func (d *Database) GetTimings(suite string) ([]WorkItem, error) {
	sqlStatement := `SELECT path, duration FROM test_timings WHERE suite = $1 ORDER BY path;`
	rows, err := d.db.Query(sqlStatement, suite)
	if err != nil {
		return nil, errorWrapper.Wrap(err, "failed in querying timings from database")
	}
	defer rows.Close()
	var items []WorkItem
	for rows.Next() {
		var path string
		var duration sql.NullFloat64
		err = rows.Scan(&path, &duration)
		if err != nil {
			return nil, errorWrapper.Wrap(err, "failed in reading row from timings query")
		}
		item := WorkItem{ID: path}
		if duration.Valid {
			item.Duration = duration.Float64
		}
		items = append(items, item)
	}
	err = rows.Err()
	if err != nil {
		return nil, errorWrapper.Wrap(err, "failed in end of reading rows")
	}
	logrus.Debugf("loaded %d timings for suite %s", len(items), suite)
	return items, nil
}

func (d *Database) GetTiming(suite, path string) (float64, error) {
	var duration sql.NullFloat64
	sqlStatement := `SELECT duration FROM test_timings WHERE suite = $1 AND path = $2;`
	row := d.db.QueryRow(sqlStatement, suite, path)
	switch err := row.Scan(&duration); err {
	case sql.ErrNoRows:
		return 0, NoRowFound
	case nil:
		return duration.Float64, nil
	default:
		return 0, err
	}
}

func (d *Database) GetPaths(suite string) ([]string, error) {
	sqlStatement := `SELECT path FROM test_timings WHERE suite = $1;`
	rows, err := d.db.Query(sqlStatement, suite)
	if err != nil {
		return nil, errorWrapper.Wrap(err, "failed in querying paths from database")
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errorWrapper.Wrap(err, "failed in reading row from paths query")
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, errorWrapper.Wrap(err, "failed in end of reading rows")
	}
	return paths, nil
}

func (d *Database) UpsertTiming(suite string, item WorkItem) error {
	sqlStatement := `
INSERT INTO test_timings (suite, path, duration, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (suite, path) DO UPDATE
	SET duration = EXCLUDED.duration, updated_at = EXCLUDED.updated_at;`
	_, err := d.db.Exec(sqlStatement, suite, item.ID, item.Duration)
	if err != nil {
		return errorWrapper.Wrap(err, "failed in recording timing for: "+item.ID)
	}
	return nil
}

func (d *Database) DeleteTiming(suite, path string) error {
	sqlStatement := `
DELETE FROM test_timings
WHERE suite = $1 AND path = $2;`
	res, err := d.db.Exec(sqlStatement, suite, path)
	if err != nil {
		return errorWrapper.Wrap(err, "failed in deleting timing for: "+path)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errorWrapper.Wrap(err, "failed in reading affected rows")
	}
	if n == 0 {
		return NoRowFound
	}
	return nil
}

// EnsureSchema creates the test_timings table when it does not exist yet.
func (d *Database) EnsureSchema() error {
	sqlStatement := `
CREATE TABLE IF NOT EXISTS test_timings (
	suite      text NOT NULL,
	path       text NOT NULL,
	duration   double precision,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (suite, path)
);`
	if _, err := d.db.Exec(sqlStatement); err != nil {
		return errorWrapper.Wrap(err, "failed in creating test_timings table")
	}
	return nil
}
