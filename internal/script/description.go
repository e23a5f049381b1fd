package script

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits on natural-language descriptions accepted for generation.
const (
	MinDescriptionLength = 10
	MaxDescriptionLength = 2000
)

var (
	ErrDescriptionEmpty    = errors.New("description cannot be empty")
	ErrDescriptionTooShort = fmt.Errorf("description must be at least %d characters", MinDescriptionLength)
	ErrDescriptionTooLong  = fmt.Errorf("description must be at most %d characters", MaxDescriptionLength)
)

// CheckDescription trims desc and enforces the length limits.
func CheckDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	n := utf8.RuneCountInString(desc)
	switch {
	case n == 0:
		return "", ErrDescriptionEmpty
	case n < MinDescriptionLength:
		return "", ErrDescriptionTooShort
	case n > MaxDescriptionLength:
		return "", ErrDescriptionTooLong
	}
	return desc, nil
}
