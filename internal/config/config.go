// Package config resolves the connection parameters of an import run from the
// process environment.
//
// The Config value is built once at process start and passed by pointer to
// every exporter; nothing in this package keeps global state.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Required environment keys.
const (
	KeyMySQLUser     = "MYSQL_USER"
	KeyMySQLPassword = "MYSQL_PASSWORD"
	KeyMySQLAddress  = "MYSQL_ADDRESS"
	KeyDatabase      = "DATABASE"
	KeyBasicsTable   = "BASICS_TABLE"
	KeyRatingsTable  = "RATINGS_TABLE"
	KeyDatesTable    = "DATES_TABLE"
	KeyMongoAddress  = "MONGODB_ADDRESS"
	KeyMongoPort     = "MONGODB_PORT"
	KeyMongoUser     = "MONGODB_USER"
	KeyMongoPassword = "MONGODB_PASSWORD"
)

// Optional environment keys.
const (
	KeyPostgresDSN     = "POSTGRES_DSN"
	KeyMSSQLDSN        = "MSSQL_DSN"
	KeySQLitePath      = "SQLITE_PATH"
	KeyInsertBatchSize = "INSERT_BATCH_SIZE"
	KeyMetricsBackend  = "METRICS_BACKEND"
	KeyMetricsTags     = "METRICS_TAGS"
)

const (
	defaultSQLitePath = "films.db"
	defaultBatchSize  = 1000
)

var requiredKeys = []string{
	KeyMySQLUser,
	KeyMySQLPassword,
	KeyMySQLAddress,
	KeyDatabase,
	KeyBasicsTable,
	KeyRatingsTable,
	KeyDatesTable,
	KeyMongoAddress,
	KeyMongoPort,
	KeyMongoUser,
	KeyMongoPassword,
}

// ErrMissingConfiguration matches every *MissingConfigurationError via errors.Is.
var ErrMissingConfiguration = errors.New("missing configuration")

// MissingConfigurationError lists the required keys absent from the environment.
type MissingConfigurationError struct {
	Keys []string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Keys, ", "))
}

func (e *MissingConfigurationError) Is(target error) bool {
	return target == ErrMissingConfiguration
}

// InvalidConfigurationError reports a key that is present but unusable.
type InvalidConfigurationError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *InvalidConfigurationError) Unwrap() error { return e.Err }

// Tables holds the relational table names of one snapshot.
type Tables struct {
	Basics  string
	Ratings string
	Dates   string
}

// Config is the resolved configuration of one run.
type Config struct {
	MySQLUser     string
	MySQLPassword string
	MySQLAddress  string

	// Database is the relational schema and the document database name.
	Database string
	Tables   Tables

	MongoAddress  string
	MongoPort     int
	MongoUser     string
	MongoPassword string

	PostgresDSN string
	MSSQLDSN    string
	SQLitePath  string

	// InsertBatchSize caps the number of rows per relational INSERT statement.
	InsertBatchSize int

	MetricsBackend string
	MetricsTags    string
}

// Load reads the given dotenv files into the process environment and resolves
// the configuration from it. Files that do not exist are skipped; variables
// already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv resolves the configuration through lookup (os.LookupEnv in
// production). Every absent required key is reported at once.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	vals := make(map[string]string, len(requiredKeys))
	var missing []string
	for _, k := range requiredKeys {
		v, ok := lookup(k)
		if !ok {
			missing = append(missing, k)
			continue
		}
		vals[k] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingConfigurationError{Keys: missing}
	}

	port, err := strconv.Atoi(strings.TrimSpace(vals[KeyMongoPort]))
	if err != nil {
		return nil, &InvalidConfigurationError{Key: KeyMongoPort, Value: vals[KeyMongoPort], Err: err}
	}
	if port < 1 || port > 65535 {
		return nil, &InvalidConfigurationError{Key: KeyMongoPort, Value: vals[KeyMongoPort], Err: errors.New("port out of range")}
	}

	cfg := &Config{
		MySQLUser:     vals[KeyMySQLUser],
		MySQLPassword: vals[KeyMySQLPassword],
		MySQLAddress:  vals[KeyMySQLAddress],
		Database:      vals[KeyDatabase],
		Tables: Tables{
			Basics:  vals[KeyBasicsTable],
			Ratings: vals[KeyRatingsTable],
			Dates:   vals[KeyDatesTable],
		},
		MongoAddress:    vals[KeyMongoAddress],
		MongoPort:       port,
		MongoUser:       vals[KeyMongoUser],
		MongoPassword:   vals[KeyMongoPassword],
		SQLitePath:      defaultSQLitePath,
		InsertBatchSize: defaultBatchSize,
	}

	if v, ok := lookup(KeyPostgresDSN); ok {
		cfg.PostgresDSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(KeyMSSQLDSN); ok {
		cfg.MSSQLDSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(KeySQLitePath); ok && strings.TrimSpace(v) != "" {
		cfg.SQLitePath = strings.TrimSpace(v)
	}
	if v, ok := lookup(KeyInsertBatchSize); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, &InvalidConfigurationError{Key: KeyInsertBatchSize, Value: v, Err: err}
		}
		if n <= 0 {
			return nil, &InvalidConfigurationError{Key: KeyInsertBatchSize, Value: v, Err: errors.New("must be positive")}
		}
		cfg.InsertBatchSize = n
	}
	if v, ok := lookup(KeyMetricsBackend); ok {
		cfg.MetricsBackend = strings.TrimSpace(v)
	}
	if v, ok := lookup(KeyMetricsTags); ok {
		cfg.MetricsTags = strings.TrimSpace(v)
	}

	return cfg, nil
}

// MySQLDSN assembles the relational connection descriptor from user,
// password, address and database name.
func (c *Config) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.MySQLUser
	mc.Passwd = c.MySQLPassword
	mc.Net = "tcp"
	mc.Addr = c.MySQLAddress
	mc.DBName = c.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// MongoHost returns the document store endpoint as host:port.
func (c *Config) MongoHost() string {
	return fmt.Sprintf("%s:%d", c.MongoAddress, c.MongoPort)
}
