// Package model defines domain entities for the application.
package model

import "time"

// User is the minimal view of a site account that may request access keys.
// Accounts are owned by the main site; keygate only reads them.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
