package domain

import (
	"strings"
	"time"
	"unicode"
)

// ContactCustomField is an arbitrary key/value attached to a contact.
type ContactCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Contact is an external WhatsApp identity, unique by number.
type Contact struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	Number        string               `json:"number"`
	Email         string               `json:"email"`
	ProfilePicURL string               `json:"profilePicUrl"`
	IsGroup       bool                 `json:"isGroup"`
	ExtraInfo     []ContactCustomField `json:"extraInfo,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// Clone copies the contact including its extra fields.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ExtraInfo != nil {
		cp.ExtraInfo = append([]ContactCustomField(nil), c.ExtraInfo...)
	}
	return &cp
}

// NormalizeNumber keeps digits only and drops leading zeros.
func NormalizeNumber(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
