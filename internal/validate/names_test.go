package validate

import (
	"errors"
	"strings"
	"testing"

	witherrors "github.com/dkmnx/with/internal/errors"
)

func TestValidateSecretName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "API_TOKEN", false},
		{"lowercase", "database_url", false},
		{"leading underscore", "_PRIVATE", false},
		{"single letter", "A", false},
		{"digits after first", "S3_BUCKET2", false},
		{"empty", "", true},
		{"leading digit", "1PASSWORD", true},
		{"dash", "MY-KEY", true},
		{"space", "MY KEY", true},
		{"equals", "A=B", true},
		{"reserved prefix", "__profile_info", true},
		{"reserved prefix only", "__", true},
		{"non-ascii", "CLÉ", true},
		{"too long", strings.Repeat("A", MaxSecretNameLength+1), true},
		{"at limit", strings.Repeat("A", MaxSecretNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecretName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecretName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProfileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "dev", false},
		{"with dash and dot", "prod-eu.west", false},
		{"with underscore", "team_a", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"dot", ".", true},
		{"dot dot", "..", true},
		{"space", "my profile", true},
		{"too long", strings.Repeat("p", MaxProfileNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfileName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProfileName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrorType(t *testing.T) {
	err := ValidateSecretName("1BAD")
	if err == nil {
		t.Fatal("expected validation error")
	}

	var wErr *witherrors.WithError
	if !errors.As(err, &wErr) {
		t.Fatalf("expected *WithError, got %T", err)
	}
	if wErr.Type != witherrors.ValidationError {
		t.Errorf("Type = %v, want %v", wErr.Type, witherrors.ValidationError)
	}
	if wErr.Context["name"] != "1BAD" {
		t.Errorf("Context[name] = %q, want 1BAD", wErr.Context["name"])
	}
}

func FuzzValidateSecretName(f *testing.F) {
	f.Add("API_TOKEN")
	f.Add("")
	f.Add("__x")
	f.Add("9lives")
	f.Add("a-b")

	f.Fuzz(func(t *testing.T, name string) {
		err := ValidateSecretName(name)
		if err != nil {
			return
		}
		if strings.ContainsAny(name, " \t\r\n\"'=-") {
			t.Errorf("ValidateSecretName(%q) accepted a forbidden character", name)
		}
		if strings.HasPrefix(name, ReservedPrefix) {
			t.Errorf("ValidateSecretName(%q) accepted a reserved name", name)
		}
	})
}
