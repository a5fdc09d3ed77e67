// Package store is the Key-Value Store: six hash/data tables
// (block, vout, vin_txid, vin_spent, coinbase, address), each a
// (id, hash, data) row where hash is the lookup key and data is a JSON
// blob. It is grounded on include/dbutils.py's database_connection,
// create_tables, load_data_infile, insert, update, delete and select
// functions, wired to MySQL through jinzhu/gorm the way
// apiserver/main.go and kasparov/kasparovserver/main.go wire their
// database connections.
package store

import (
	"database/sql"
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/config"
	"github.com/jeremyandrews/addrindex/logger"
)

var log = logger.Get(logger.SubsystemTags.STOR)

// row is the physical shape of every one of the six tables.
type row struct {
	ID   uint64 `gorm:"primary_key"`
	Hash string `gorm:"type:varchar(128);index:hash_idx,length:10"`
	Data string `gorm:"type:longtext"`
}

// Store is a connection to one coin's key-value store.
type Store struct {
	db     *gorm.DB
	dbName string
}

// Connect opens a MySQL connection for the given database settings.
func Connect(cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=Local&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Database)
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to database %q", cfg.Database)
	}
	db.DB().SetMaxOpenConns(8)
	return &Store{db: db, dbName: cfg.Database}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw *sql.DB underlying the gorm connection.
func (s *Store) DB() *sql.DB {
	return s.db.DB()
}

// Migrate brings the schema up to date using the embedded golang-migrate
// migrations in migrations/, matching the blank "database/mysql" and
// "source/file" driver imports apiserver/main.go and
// kasparov/kasparovserver/main.go carry — here actually exercised rather
// than left as unused blank imports.
func (s *Store) Migrate() error {
	return runMigrations(s.db.DB(), s.dbName)
}

// Truncate empties the named table, used before a bulk-mode load.
func (s *Store) Truncate(table string) error {
	return s.db.Exec(fmt.Sprintf("TRUNCATE TABLE %s", table)).Error
}

// Select loads the document stored under key in table into out (a pointer
// to one of the *Doc types in models.go). found is false if no row
// exists for key.
func (s *Store) Select(table, key string, out interface{}) (found bool, err error) {
	var r row
	err = s.db.Table(table).Where("hash = ?", key).First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "selecting %s from %s", key, table)
	}
	if err := unmarshalDoc(r.Data, out); err != nil {
		return false, errors.Wrapf(err, "decoding %s document %s", table, key)
	}
	return true, nil
}

// Insert creates a new row for key in table. Callers are responsible for
// having checked the key doesn't already exist when that matters; Insert
// itself does not enforce uniqueness (the hash column is not a unique key,
// matching the original schema, which relies on extractor/grouper
// discipline rather than a DB constraint).
func (s *Store) Insert(table, key string, doc interface{}) error {
	data, err := marshalDoc(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %s document %s", table, key)
	}
	return s.db.Table(table).Create(&row{Hash: key, Data: data}).Error
}

// Update overwrites the document stored under key in table. If no row
// exists yet it behaves like Insert, matching the original's
// insert-or-update grouper convenience.
func (s *Store) Update(table, key string, doc interface{}) error {
	data, err := marshalDoc(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %s document %s", table, key)
	}
	result := s.db.Table(table).Where("hash = ?", key).Limit(1).
		UpdateColumn("data", data)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "updating %s document %s", table, key)
	}
	if result.RowsAffected == 0 {
		// MySQL also reports zero affected rows when the matched row
		// already held identical data, so check before inserting.
		exists, err := s.Exists(table, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return s.db.Table(table).Create(&row{Hash: key, Data: data}).Error
	}
	return nil
}

// Delete removes every row stored under key in table. It is a no-op
// (not an error) when no such row exists, matching the Orphan Unwinder's
// need to delete documents that may already be gone.
func (s *Store) Delete(table, key string) error {
	return s.db.Table(table).Where("hash = ?", key).Delete(row{}).Error
}

// Exists reports whether any row is stored under key in table, without
// paying to decode its JSON body.
func (s *Store) Exists(table, key string) (bool, error) {
	var count int
	err := s.db.Table(table).Where("hash = ?", key).Count(&count).Error
	if err != nil {
		return false, errors.Wrapf(err, "checking existence of %s in %s", key, table)
	}
	return count > 0, nil
}

// BulkLoad runs a MySQL LOAD DATA LOCAL INFILE against table from a
// two-column (hash, data) TSV file produced by a bulk-mode grouper's
// tsvWriter, the Go equivalent of dbutils.load_data_infile. The field/escape
// delimiters here must match tsvWriter.WriteDoc's escaping exactly.
func (s *Store) BulkLoad(table, csvPath string) error {
	stmt := fmt.Sprintf(
		`LOAD DATA LOCAL INFILE '%s' INTO TABLE %s FIELDS TERMINATED BY '\t' OPTIONALLY ENCLOSED BY '' ESCAPED BY '\\' LINES TERMINATED BY '\n' (hash, data)`,
		csvPath, table)
	if err := s.db.Exec(stmt).Error; err != nil {
		return errors.Wrapf(err, "bulk loading %s into %s", csvPath, table)
	}
	log.Infof("bulk loaded %s into %s", csvPath, table)
	return nil
}
