package store

import (
	"context"
	"fmt"
	"net/url"

	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const transactionBatchSize = 1000

// DBStore keeps records in the undelegations table. It remembers how many of the
// records it was handed are already stored and inserts only the rest.
type DBStore struct {
	g     *gorm.DB
	saved int
}

func NewDBStore(cfg *config.DB) (*DBStore, error) {
	g, err := Connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to the DB")
	}

	logger.Debug("connected to the DB")

	if err := g.AutoMigrate(Undelegation{}); err != nil {
		return nil, errors.Wrap(err, "migrating DB entities")
	}

	logger.Debug("migrated DB entities")

	return &DBStore{g: g}, nil
}

func Connect(cfg *config.DB) (*gorm.DB, error) {
	dsn := formatDSN(cfg)

	gormCfg := gorm.Config{
		Logger:          gormlogger.Default.LogMode(getGormLogLevel(cfg)),
		CreateBatchSize: transactionBatchSize,
	}

	return gorm.Open(postgres.Open(dsn), &gormCfg)
}

func getGormLogLevel(cfg *config.DB) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}

func formatDSN(cfg *config.DB) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.DBName,
	}

	return u.String()
}

func (db *DBStore) Load(ctx context.Context) ([]Undelegation, error) {
	var records []Undelegation
	if err := db.g.WithContext(ctx).Order("block").Order("position").Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "loading records")
	}

	db.saved = len(records)
	logger.Infof("loaded %d records from the DB", len(records))

	return records, nil
}

func (db *DBStore) Save(ctx context.Context, records []Undelegation) error {
	if db.saved >= len(records) {
		return nil
	}

	fresh := records[db.saved:]

	err := db.g.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&fresh).
			Error
	})
	if err != nil {
		return errors.Wrap(err, "saving records")
	}

	db.saved = len(records)
	logger.Debugf("saved %d new records to the DB", len(fresh))

	return nil
}
