package repository

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
	"github.com/lightningnetwork/lnd/fn/v2"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
	"github.com/unclebandit/followup-engine/internal/model"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Postgres error codes the adapter reacts to.
const (
	pqForeignKeyViolation = "23503"
	pqInvalidTextRepr     = "22P02"
)

// mapSQLError folds driver errors into the application taxonomy. Malformed
// UUIDs and dangling foreign keys can only come from ids the caller does not
// own, so they collapse into not-found.
func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqInvalidTextRepr, pqForeignKeyViolation:
			return appErrors.Wrap(appErrors.ErrNotFound, pqErr.Message)
		}
	}

	return err
}

func nullString(o fn.Option[string]) sql.NullString {
	var ns sql.NullString
	o.WhenSome(func(v string) {
		ns = sql.NullString{String: v, Valid: true}
	})

	return ns
}

func optionFromNull(ns sql.NullString) fn.Option[string] {
	if !ns.Valid {
		return fn.None[string]()
	}

	return fn.Some(ns.String)
}

func encodeAttachments(atts []model.Attachment) ([]byte, error) {
	if atts == nil {
		atts = []model.Attachment{}
	}

	return json.Marshal(atts)
}

func decodeAttachments(b []byte) ([]model.Attachment, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var atts []model.Attachment
	if err := json.Unmarshal(b, &atts); err != nil {
		return nil, err
	}

	return atts, nil
}
