package model

import "time"

// SourcePortfolio tags messages submitted through the portfolio site's contact form.
const SourcePortfolio = "portfolio"

// ContactMessage represents a message submitted via the contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactListOptions carries filter and size parameters for listing contact messages.
type ContactListOptions struct {
	// Source filters by submission channel. Empty string returns all messages.
	Source string
	Limit  int
}
