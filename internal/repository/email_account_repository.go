package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/followup-engine/internal/model"
)

type EmailAccountRepositoryInterface interface {
	FindOwned(ctx context.Context, id, userID string) (*model.EmailAccount, error)
}

type EmailAccountRepository struct {
	DB *sql.DB
}

// FindOwned returns the account only if it belongs to userID.
func (r *EmailAccountRepository) FindOwned(ctx context.Context, id, userID string) (*model.EmailAccount, error) {
	query := `
        SELECT id, user_id, email, display_name, smtp_host, smtp_port, smtp_secure,
               smtp_user, smtp_password, created_at
        FROM email_accounts
        WHERE id = $1 AND user_id = $2
    `
	var a model.EmailAccount
	err := r.DB.QueryRowContext(ctx, query, id, userID).Scan(
		&a.ID, &a.UserID, &a.Email, &a.DisplayName, &a.SMTPHost, &a.SMTPPort,
		&a.SMTPSecure, &a.SMTPUser, &a.SMTPPassword, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapSQLError(err)
	}
	return &a, nil
}

var _ EmailAccountRepositoryInterface = (*EmailAccountRepository)(nil)
