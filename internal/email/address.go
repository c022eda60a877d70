package email

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// ErrInvalidAddress is returned when an email address fails validation.
var ErrInvalidAddress = errors.New("invalid email address")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Address is an email address paired with a display name.
type Address struct {
	Email string
	Name  string
}

// NewAddress validates addr and returns an Address. When name is empty the
// email string itself is used as the display name.
func NewAddress(addr, name string) (Address, error) {
	addr = strings.TrimSpace(addr)
	if err := validate.Var(addr, "required,email"); err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if name == "" {
		name = addr
	}
	return Address{Email: addr, Name: name}, nil
}

// String renders the address as "Name" <email> in plain UTF-8. Header
// encoding is left to the MIME writer.
func (a Address) String() string {
	if a.Name == "" {
		return "<" + a.Email + ">"
	}
	return `"` + strings.ReplaceAll(a.Name, `"`, `\"`) + `" <` + a.Email + ">"
}

// JoinAddresses renders a list of addresses separated by ";".
func JoinAddresses(list []Address) string {
	return strings.Join(lo.Map(list, func(a Address, _ int) string {
		return a.String()
	}), ";")
}

// Emails returns the bare email strings of list, in order.
func Emails(list []Address) []string {
	return lo.Map(list, func(a Address, _ int) string {
		return a.Email
	})
}
