package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

type Validator interface {
	Validate(ctx context.Context, passcode string) bool
}

// PasscodeValidator accepts a single shared secret.
type PasscodeValidator struct {
	passcode []byte
}

func NewPasscodeValidator(passcode string) (*PasscodeValidator, error) {
	passcode = strings.TrimSpace(passcode)
	if passcode == "" {
		return nil, fmt.Errorf("passcode is required")
	}
	return &PasscodeValidator{passcode: []byte(passcode)}, nil
}

func (v *PasscodeValidator) Validate(_ context.Context, passcode string) bool {
	if passcode == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(passcode), v.passcode) == 1
}
