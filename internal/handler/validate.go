package handler

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength    = 2
	maxNameLength    = 100
	minMessageLength = 10
	maxMessageLength = 5000
	maxEmailLength   = 254
)

// contactInput is a submission after trimming and lowercasing.
type contactInput struct {
	Name    string
	Email   string
	Message string
}

func normalizeContact(req submitRequest) contactInput {
	return contactInput{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Message: strings.TrimSpace(req.Message),
	}
}

// validate returns a message per invalid field, or nil when the input is valid.
// Lengths are counted in characters, not bytes.
func (in contactInput) validate() map[string]string {
	problems := map[string]string{}

	if n := utf8.RuneCountInString(in.Name); n < minNameLength || n > maxNameLength {
		problems["name"] = fmt.Sprintf("must be between %d and %d characters", minNameLength, maxNameLength)
	}
	if !validEmail(in.Email) {
		problems["email"] = "must be a valid email address"
	}
	if n := utf8.RuneCountInString(in.Message); n < minMessageLength || n > maxMessageLength {
		problems["message"] = fmt.Sprintf("must be between %d and %d characters", minMessageLength, maxMessageLength)
	}

	if len(problems) == 0 {
		return nil
	}
	return problems
}

// validEmail accepts a bare addr-spec whose domain has at least one dot.
// Display names and angle brackets are rejected.
func validEmail(s string) bool {
	if s == "" || len(s) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	return strings.Contains(domain, ".") &&
		!strings.HasPrefix(domain, ".") &&
		!strings.HasSuffix(domain, ".")
}
