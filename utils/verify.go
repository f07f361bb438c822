package utils

import (
	"fmt"

	"github.com/badoux/checkmail"
)

// ValidateEmailAddress performs a syntax check and, when requested, a
// DNS/MX host check of the address's domain. Used when rules and mailbox
// settings are created, so a typo fails at configuration time instead of
// at send time.
func ValidateEmailAddress(email string, checkHost bool) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}

	if !checkHost {
		return nil
	}

	ok, err := ValidateMXRecords(email)
	if err != nil {
		return fmt.Errorf("domain lookup failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("domain of %s has no mail servers", email)
	}
	return nil
}
