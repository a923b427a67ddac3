// Package gcode parses the line commands accepted by standalone mode.
package gcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadWord = errors.New("malformed word")

// Command represents a parsed line
type Command struct {
	Type       byte             // 'G' or 'M', 0 for comment-only lines
	Number     int              // Command number (e.g., 1 for G1)
	Parameters map[byte]float64 // Letter to value, letters upper-cased
	Order      []byte           // Parameter letters in the order given
	Comment    string
}

// Parser handles line parsing
type Parser struct{}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line. Blank lines yield a nil command.
func (p *Parser) ParseLine(line string) (*Command, error) {
	body, comment := splitComment(line)
	words := strings.Fields(body)
	if len(words) == 0 {
		if comment == "" {
			return nil, nil
		}
		return &Command{Parameters: map[byte]float64{}, Comment: comment}, nil
	}

	cmd := &Command{
		Parameters: make(map[byte]float64, len(words)),
		Comment:    comment,
	}

	for i, w := range words {
		letter, value, err := parseWord(w)
		if err != nil {
			return nil, err
		}
		if i == 0 && (letter == 'G' || letter == 'M') {
			n := int(value)
			if float64(n) != value {
				return nil, fmt.Errorf("%w: %q", ErrBadWord, w)
			}
			cmd.Type, cmd.Number = letter, n
			continue
		}
		if _, dup := cmd.Parameters[letter]; !dup {
			cmd.Order = append(cmd.Order, letter)
		}
		cmd.Parameters[letter] = value
	}

	return cmd, nil
}

// splitComment separates ';' and '(' comments from the command body
func splitComment(line string) (string, string) {
	if i := strings.IndexAny(line, ";("); i >= 0 {
		return line[:i], strings.TrimSpace(line[i:])
	}
	return line, ""
}

// parseWord splits a word such as "X-10.5" into its letter and value
func parseWord(w string) (byte, float64, error) {
	letter := toUpper(w[0])
	if letter < 'A' || letter > 'Z' || len(w) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadWord, w)
	}
	value, err := strconv.ParseFloat(w[1:], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadWord, w)
	}
	return letter, value, nil
}

// toUpper converts a byte to uppercase
func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// HasParameter checks if a parameter exists in the command
func (cmd *Command) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *Command) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}
