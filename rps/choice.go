package rps

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Choice is a single throw
type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
	// Special beats every other throw and ties only with itself
	Special Choice = "special"
)

var ErrInvalidChoice = errors.New("invalid choice")

// ParseChoice accepts the long names and the aliases r, p, s and x
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r":
		return Rock, nil
	case "paper", "p":
		return Paper, nil
	case "scissors", "s":
		return Scissors, nil
	case "special", "x":
		return Special, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
}

// Valid reports whether c is one of the four throws
func (c Choice) Valid() bool {
	switch c {
	case Rock, Paper, Scissors, Special:
		return true
	}
	return false
}

// UnmarshalJSON accepts aliases. An empty string or null leaves the zero value.
func (c *Choice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChoice, err)
	}
	if s == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseChoice(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// duel returns 1 when a beats b, -1 when b beats a and 0 on a tie
func duel(a, b Choice) int {
	if a == b {
		return 0
	}
	switch {
	case a == Special:
		return 1
	case b == Special:
		return -1
	case a == Rock && b == Scissors,
		a == Scissors && b == Paper,
		a == Paper && b == Rock:
		return 1
	default:
		return -1
	}
}
