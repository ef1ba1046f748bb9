// Package prompt wraps promptui for the interactive dapper commands.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// Confirm asks a yes/no question. An empty answer means no.
func Confirm(label string) (bool, error) {
	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [y/N]", label),
		IsConfirm: true,
	}

	result, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrInterrupt):
		return false, ErrAborted
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case err != nil:
		if result == "" {
			return false, nil
		}
		return false, err
	}

	answer := strings.ToLower(result)
	return answer == "y" || answer == "yes", nil
}
