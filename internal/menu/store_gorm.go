package menu

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zombor/menu-scan/internal/config"
)

// GormStore implements the Store interface for the SQL dialects gorm speaks.
// It backs the sqlite and mysql drivers.
type GormStore struct {
	db       *gorm.DB
	schemaMu sync.Mutex
}

// NewSQLiteStore opens the sqlite file at path. SQLite allows one writer, so
// the pool is limited to a single connection.
func NewSQLiteStore(path string) (*GormStore, error) {
	return newGormStore(sqlite.Open(path), 1)
}

// NewMySQLStore connects to the mysql server described by dsn
func NewMySQLStore(dsn string, maxConns int) (*GormStore, error) {
	return newGormStore(mysql.Open(dsn), maxConns)
}

func newGormStore(dialector gorm.Dialector, maxConns int) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting %s connection pool: %w", dialector.Name(), err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &GormStore{db: db}, nil
}

// EnsureSchema creates the menu table if it doesn't exist. AutoMigrate
// checks for the table before creating it, so callers in this process are
// serialised and a create lost to another process is retried as a migrate.
func (g *GormStore) EnsureSchema(ctx context.Context) error {
	g.schemaMu.Lock()
	defer g.schemaMu.Unlock()

	db := g.db.WithContext(ctx)
	err := db.AutoMigrate(&Record{})
	if err != nil && db.Migrator().HasTable(&Record{}) {
		err = db.AutoMigrate(&Record{})
	}
	if err != nil {
		return fmt.Errorf("migrating menu table: %w", err)
	}
	return nil
}

// WithSession pins one pooled connection for the duration of fn
func (g *GormStore) WithSession(ctx context.Context, fn func(Session) error) error {
	return g.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&gormSession{db: conn})
	})
}

// Close closes the connection pool
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormSession struct {
	db *gorm.DB
}

func (s *gormSession) InsertAll(ctx context.Context, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return []Record{}, nil
	}

	inserted := make([]Record, 0, len(records))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			record.ID = 0
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			inserted = append(inserted, record)
		}
		return nil
	})
	if err != nil {
		return nil, storeWriteError(err)
	}
	return inserted, nil
}

func (s *gormSession) ListAll(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// mysqlDSN builds a go-sql-driver DSN from the discrete settings unless a
// full DSN was given
func mysqlDSN(cfg config.Store) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsn := drivermysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dsn.DBName = cfg.Name
	dsn.ParseTime = true
	return dsn.FormatDSN()
}
