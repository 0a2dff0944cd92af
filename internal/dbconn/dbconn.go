// Package dbconn holds the connection to the task history database.
// SQLite is the default; postgres:// URLs are opened through lib/pq.
// It tries to be a single db connection
package dbconn

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

type DBConf struct {
	URL         string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	LogLevel    logger.LogLevel
}

type DBOpts func(*DBConf)

func NewConf() *DBConf {
	return &DBConf{
		URL:         "file:hubrunner.db",
		MaxIdle:     25,
		MaxOpen:     25,
		MaxLifetime: 300 * time.Second,
		LogLevel:    logger.Warn,
	}
}

func WithURL(url string) DBOpts {
	return func(d *DBConf) {
		d.URL = url
	}
}

func WithMaxIdle(idle int) DBOpts {
	return func(d *DBConf) {
		d.MaxIdle = idle
	}
}

func WithMaxOpen(open int) DBOpts {
	return func(d *DBConf) {
		d.MaxOpen = open
	}
}

func WithMaxLifetime(lifetime time.Duration) DBOpts {
	return func(d *DBConf) {
		d.MaxLifetime = lifetime
	}
}

func WithLogLevel(level logger.LogLevel) DBOpts {
	return func(d *DBConf) {
		d.LogLevel = level
	}
}

// IsPostgres reports whether url points at a postgres server.
func IsPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// Open opens a new connection without touching the shared one.
func Open(options ...DBOpts) (*gorm.DB, error) {
	dbConf := NewConf()
	for _, o := range options {
		o(dbConf)
	}

	gormConf := &gorm.Config{Logger: logger.Default.LogMode(dbConf.LogLevel)}

	var (
		conn *gorm.DB
		err  error
	)
	if IsPostgres(dbConf.URL) {
		sqlDB, err := sql.Open("postgres", dbConf.URL)
		if err != nil {
			return nil, err
		}
		conn, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConf)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
	} else {
		conn, err = gorm.Open(sqlite.Open(dbConf.URL), gormConf)
		if err != nil {
			return nil, err
		}
	}

	sdb, err := conn.DB()
	if err != nil {
		return nil, err
	}

	sdb.SetMaxIdleConns(dbConf.MaxIdle)
	sdb.SetMaxOpenConns(dbConf.MaxOpen)
	sdb.SetConnMaxLifetime(dbConf.MaxLifetime)

	if err := sdb.Ping(); err != nil {
		return nil, err
	}

	return conn, nil
}

// GetConn provide the connection link to the db
// TODO: Make it thread safe
func GetConn(options ...DBOpts) (*gorm.DB, error) {
	if db != nil {
		return db, nil
	}

	conn, err := Open(options...)
	if err != nil {
		return nil, err
	}
	db = conn
	return db, nil
}

func Migrate[T any](t T) error {
	if db == nil {
		return errors.New("db is not defined")
	}
	return db.AutoMigrate(t)
}

func Close() error {
	if db != nil {
		if sdb, err := db.DB(); err != nil {
			db = nil
			return err
		} else {
			db = nil
			return sdb.Close()
		}
	}
	return nil
}
