// internal/model/email_account.go
package model

import "time"

// EmailAccount is a sending identity together with its SMTP credentials.
type EmailAccount struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	SMTPHost     string    `db:"smtp_host" json:"smtp_host"`
	SMTPPort     int       `db:"smtp_port" json:"smtp_port"`
	SMTPSecure   bool      `db:"smtp_secure" json:"smtp_secure"`
	SMTPUser     string    `db:"smtp_user" json:"smtp_user"`
	SMTPPassword string    `db:"smtp_password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
