package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

// errDBClosed is the message of database/sql's unexported error for a closed *sql.DB.
const errDBClosed = "sql: database is closed"

// repo holds what every repository shares.
type repo struct {
	db core.DB
}

// inTx runs fn in a transaction, rolled back when fn fails.
func (r repo) inTx(ctx context.Context, fn func(tx core.DBExecutor) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapDBErr(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// trapNoRowsErr maps the "no rows" err to training.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return training.ErrNotFound
	}
	return wrapDBErr(err, msg)
}

// wrapDBErr wraps err with msg; losing the database makes it a shutdown error.
func wrapDBErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) || err.Error() == errDBClosed {
		err = core.NewShutdownError(err)
	}
	return errors.Wrap(err, msg)
}

func boilDate(d training.NullDate) null.String {
	if !d.Valid {
		return null.String{}
	}
	return null.StringFrom(d.Date.String())
}

func unboilDate(s null.String) (training.NullDate, error) {
	if !s.Valid {
		return training.NullDate{}, nil
	}
	d, err := training.ParseISODate(s.String)
	if err != nil {
		return training.NullDate{}, err
	}
	return training.DateFrom(d), nil
}

// Store gathers every repository over one database.
type Store struct {
	*DirectoryRepository
	*RecordRepository
	*ObservationRepository
	*AnomalyRepository
}

var (
	_ training.Store             = (*Store)(nil) // interface compliance check
	_ training.DirectoryImporter = (*Store)(nil)
)

func NewStore(db core.DB) *Store {
	return &Store{
		DirectoryRepository:   NewDirectoryRepository(db),
		RecordRepository:      NewRecordRepository(db),
		ObservationRepository: NewObservationRepository(db),
		AnomalyRepository:     NewAnomalyRepository(db),
	}
}
