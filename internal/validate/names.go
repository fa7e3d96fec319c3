package validate

import (
	"fmt"
	"strings"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// Limits on user-supplied names.
const (
	// MaxSecretNameLength bounds secret names; environment variable names
	// beyond this are almost certainly a paste error.
	MaxSecretNameLength = 256

	// MaxProfileNameLength bounds profile names, which also become file names.
	MaxProfileNameLength = 64

	// ReservedPrefix marks names the tool keeps for its own records.
	ReservedPrefix = "__"
)

// ValidateSecretName checks that name can be exported as an environment
// variable: a letter or underscore followed by letters, digits or
// underscores. Names starting with ReservedPrefix are refused.
func ValidateSecretName(name string) error {
	if name == "" {
		return witherrors.NewError(witherrors.ValidationError, "secret name cannot be empty")
	}

	if len(name) > MaxSecretNameLength {
		return witherrors.NewError(witherrors.ValidationError,
			fmt.Sprintf("secret name is too long (max %d characters)", MaxSecretNameLength)).
			WithContext("name", name[:16]+"...")
	}

	if strings.HasPrefix(name, ReservedPrefix) {
		return witherrors.NewError(witherrors.ValidationError,
			fmt.Sprintf("secret names starting with %q are reserved", ReservedPrefix)).
			WithContext("name", name)
	}

	if c := name[0]; c >= '0' && c <= '9' {
		return witherrors.NewError(witherrors.ValidationError, "secret name cannot start with a digit").
			WithContext("name", name)
	}

	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return witherrors.NewError(witherrors.ValidationError,
				"secret name may contain only letters, digits and underscores").
				WithContext("name", name)
		}
	}

	return nil
}

// ValidateProfileName checks a profile name. Profile names become file names
// for the age backend, so path separators and dot-only names are refused.
func ValidateProfileName(name string) error {
	if name == "" {
		return witherrors.NewError(witherrors.ValidationError, "profile name cannot be empty")
	}

	if len(name) > MaxProfileNameLength {
		return witherrors.NewError(witherrors.ValidationError,
			fmt.Sprintf("profile name is too long (max %d characters)", MaxProfileNameLength)).
			WithContext("profile", name)
	}

	if strings.Trim(name, ".") == "" {
		return witherrors.NewError(witherrors.ValidationError, "profile name cannot consist of dots only").
			WithContext("profile", name)
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isNameByte(c) && c != '-' && c != '.' {
			return witherrors.NewError(witherrors.ValidationError,
				"profile name may contain only letters, digits, '_', '-' and '.'").
				WithContext("profile", name)
		}
	}

	return nil
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
