package backend

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/shopdash_backend/models"
)

var (
	ErrUnknownView      = errors.New("unknown view")
	ErrUnknownProcedure = errors.New("unknown procedure")
)

// Filter is a case-insensitive substring match on one column.
// CastToText compares the textual form of the column, for identifier columns.
type Filter struct {
	Column     string
	Value      string
	CastToText bool
}

// DateBounds are inclusive; either side may be empty.
type DateBounds struct {
	Column string
	Start  string
	End    string
}

type Sort struct {
	Column string
	Desc   bool
}

// Range is a zero-indexed half-open row window [From, To).
type Range struct {
	From int
	To   int
}

type Request struct {
	View   string
	Select []string
	Filter *Filter
	Date   *DateBounds
	Sort   *Sort
	Range  *Range
}

// Result holds the windowed rows and the size of the whole filtered set.
type Result struct {
	Rows  []models.Record
	Count int
}

// Backend is the remote store: generic views, detail tables and write procedures.
type Backend interface {
	Query(ctx context.Context, req Request) (*Result, error)
	QueryDetails(ctx context.Context, table string, foreignKey string, value any) ([]models.Record, error)
	CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error)
}

// BackendError tags a failure of the store with the operation and target that produced it.
// The message is the store's own, unchanged.
type BackendError struct {
	Op     string
	Target string
	Err    error
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func wrap(op string, target string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Target: target, Err: err}
}

func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// mysql error numbers raised by SIGNAL in the write procedures
const (
	erSignalException = 1644
	erDupEntry        = 1062
	erRowIsReferenced = 1451
	erNoReferencedRow = 1452
)

// Rejection reports whether err is the store refusing a write on business grounds
// (a SIGNAL from a procedure or a constraint violation) and returns its message.
func Rejection(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erSignalException, erDupEntry, erRowIsReferenced, erNoReferencedRow:
			return me.Message, true
		}
		if string(me.SQLState[:]) == "45000" {
			return me.Message, true
		}
		return "", false
	}
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Message, true
	}
	return "", false
}

// RejectedError is the in-memory counterpart of a procedure SIGNAL.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}
