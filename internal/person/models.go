package person

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"personrelay/pkg/errors"
)

// Person is one row of the people table and the payload of one queue
// message.
type Person struct {
	PersonID string  `json:"PersonID" example:"42"`
	Email    *string `json:"Email" example:"user42@example.com"`
}

func New(personID string, email *string) Person {
	return Person{PersonID: personID, Email: email}
}

// MaxFieldLength is the width, in characters, of the PersonID and Email
// columns.
const MaxFieldLength = 255

// Validate enforces what the people table accepts, so a bad record is
// rejected on its own instead of failing the batch it would join.
func (p Person) Validate() error {
	if p.PersonID == "" {
		return errors.ErrValidation.WithMessage("PersonID must be a non-empty string")
	}
	if err := validateColumn("PersonID", p.PersonID); err != nil {
		return err
	}
	if p.Email != nil {
		return validateColumn("Email", *p.Email)
	}
	return nil
}

func validateColumn(name, value string) error {
	if n := utf8.RuneCountInString(value); n > MaxFieldLength {
		return errors.ErrValidation.WithMessage("%s exceeds %d characters (got %d)", name, MaxFieldLength, n)
	}
	if strings.ContainsRune(value, 0) {
		return errors.ErrValidation.WithMessage("%s must not contain NUL characters", name)
	}
	return nil
}

// Display renders the row the way GET /all lists it.
func (p Person) Display() string {
	email := "None"
	if p.Email != nil {
		email = *p.Email
	}
	return fmt.Sprintf("%s, %s", p.PersonID, email)
}

// Parse decodes a UTF-8 JSON object with a required string PersonID and an
// optional string-or-null Email. Unknown fields are ignored.
func Parse(payload []byte) (Person, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Person{}, errors.ErrParse.WithCause(err)
	}
	if fields == nil {
		return Person{}, errors.ErrParse.WithMessage("payload is not a JSON object")
	}

	rawID, ok := fields["PersonID"]
	if !ok {
		return Person{}, errors.ErrParse.WithMessage("PersonID is required")
	}
	var p Person
	if err := json.Unmarshal(rawID, &p.PersonID); err != nil || isNull(rawID) {
		return Person{}, errors.ErrParse.WithMessage("PersonID must be a string")
	}

	if rawEmail, ok := fields["Email"]; ok && !isNull(rawEmail) {
		var email string
		if err := json.Unmarshal(rawEmail, &email); err != nil {
			return Person{}, errors.ErrParse.WithMessage("Email must be a string or null")
		}
		p.Email = &email
	}

	if err := p.Validate(); err != nil {
		return Person{}, errors.ErrParse.WithCause(err)
	}
	return p, nil
}

func Encode(p Person) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
