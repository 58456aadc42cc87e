package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/followup-engine/internal/errors"
)

func TestFindOwned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM email_accounts WHERE id = \$1 AND user_id = \$2`).
		WithArgs("acct-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "email", "display_name", "smtp_host", "smtp_port",
			"smtp_secure", "smtp_user", "smtp_password", "created_at",
		}).AddRow("acct-1", "user-1", "me@corp.com", "Me", "smtp.corp.com", 465, true, "me", "secret", time.Now()))

	repo := &EmailAccountRepository{DB: db}
	acct, err := repo.FindOwned(context.Background(), "acct-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, "smtp.corp.com", acct.SMTPHost)
	assert.Equal(t, 465, acct.SMTPPort)
	assert.True(t, acct.SMTPSecure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOwned_ForeignAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM email_accounts`).
		WithArgs("acct-1", "user-2").
		WillReturnError(sql.ErrNoRows)

	repo := &EmailAccountRepository{DB: db}
	_, err = repo.FindOwned(context.Background(), "acct-1", "user-2")

	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
