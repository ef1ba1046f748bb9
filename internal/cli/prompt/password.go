package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// ErrAborted is returned when the user presses Ctrl+C.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user gave up on the prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Password reads a masked password of at least minLength characters.
func Password(label string, minLength int) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(input string) error {
			if len(input) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// NewPassword reads a password twice and fails when the two differ.
func NewPassword(minLength int) (string, error) {
	password, err := Password("Password", minLength)
	if err != nil {
		return "", err
	}
	confirm, err := Password("Confirm password", 0)
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}
