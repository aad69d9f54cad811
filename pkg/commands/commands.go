// Package commands implements the text commands available to an
// authenticated session: parentheses balance, LCM and Caesar cipher.
//
// Every function is total: malformed input yields a *Error whose Reply is
// the exact line sent to the client. None of them decide whether a
// connection survives; that is the session's job.
package commands

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	Parentheses = "parentheses"
	LCMName     = "lcm"
	CaesarName  = "caesar"
)

// Error is a recoverable command failure with its wire text.
type Error struct {
	Reply string
}

func (e *Error) Error() string {
	return e.Reply
}

// ErrUnknownCommand is returned by Run for names that are not commands.
var ErrUnknownCommand = errors.New("unknown command")

var (
	ErrNotParentheses     = &Error{Reply: "ERROR: The string isn't only parentheses"}
	ErrMissingParentheses = &Error{Reply: "ERROR: parentheses requires a parameter"}
	ErrLCMArity           = &Error{Reply: "ERROR: lcm requires exactly 2 parameters"}
	ErrLCMNotIntegers     = &Error{Reply: "ERROR: lcm parameters must be integers"}
	ErrCaesarArity        = &Error{Reply: "ERROR: caesar requires plaintext and shift"}
	ErrShiftNotInteger    = &Error{Reply: "ERROR: shift must be an integer"}
	ErrInvalidInput       = &Error{Reply: "error: invalid input"}
)

// Known reports whether name is a recognised command.
func Known(name string) bool {
	switch name {
	case Parentheses, LCMName, CaesarName:
		return true
	}
	return false
}

// Balanced reports whether s is a balanced sequence of '(' and ')'.
// Any other character yields ErrNotParentheses, even when an unbalanced
// prefix was already seen.
func Balanced(s string) (bool, error) {
	if strings.Trim(s, "()") != "" {
		return false, ErrNotParentheses
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '(' {
			depth++
			continue
		}
		depth--
		if depth < 0 {
			return false, nil
		}
	}
	return depth == 0, nil
}

// LCM returns the least common multiple of two decimal integers of any
// size. Signs are ignored and LCM(0, n) is 0.
func LCM(a, b string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return nil, ErrLCMNotIntegers
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return nil, ErrLCMNotIntegers
	}
	x.Abs(x)
	y.Abs(y)
	if x.Sign() == 0 || y.Sign() == 0 {
		return new(big.Int), nil
	}
	gcd := new(big.Int).GCD(nil, nil, x, y)
	result := new(big.Int).Mul(x, y)
	return result.Quo(result, gcd), nil
}

// ParseShift parses a decimal shift of any size and reduces it into [0, 26).
func ParseShift(s string) (int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, ErrShiftNotInteger
	}
	// Mod is Euclidean, so negative shifts land in range too.
	return int(n.Mod(n, big.NewInt(26)).Int64()), nil
}

// Caesar rotates every letter of text by shift positions and lowercases
// the result. Spaces pass through. Anything other than ASCII letters and
// spaces yields ErrInvalidInput.
func Caesar(text string, shift int) (string, error) {
	shift %= 26
	if shift < 0 {
		shift += 26
	}
	out := make([]byte, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == ' ':
			out[i] = c
		case c >= 'a' && c <= 'z':
			out[i] = 'a' + (c-'a'+byte(shift))%26
		case c >= 'A' && c <= 'Z':
			out[i] = 'a' + (c-'A'+byte(shift))%26
		default:
			return "", ErrInvalidInput
		}
	}
	return string(out), nil
}

// Run executes the named command on its raw parameter text and returns
// the success response line. Parameter problems come back as a *Error;
// a name that is not a command yields ErrUnknownCommand.
func Run(name, params string) (string, error) {
	switch name {
	case Parentheses:
		return runParentheses(params)
	case LCMName:
		return runLCM(params)
	case CaesarName:
		return runCaesar(params)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

func runParentheses(params string) (string, error) {
	p := strings.TrimSpace(params)
	if p == "" {
		return "", ErrMissingParentheses
	}
	ok, err := Balanced(p)
	if err != nil {
		return "", err
	}
	if ok {
		return "the parentheses are balanced: yes", nil
	}
	return "the parentheses are balanced: no", nil
}

func runLCM(params string) (string, error) {
	tokens := strings.Fields(params)
	if len(tokens) != 2 {
		return "", ErrLCMArity
	}
	v, err := LCM(tokens[0], tokens[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("the lcm is: %s", v), nil
}

func runCaesar(params string) (string, error) {
	p := strings.TrimSpace(params)
	idx := strings.LastIndexByte(p, ' ')
	if idx < 0 {
		return "", ErrCaesarArity
	}
	shift, err := ParseShift(p[idx+1:])
	if err != nil {
		return "", err
	}
	out, err := Caesar(p[:idx], shift)
	if err != nil {
		return "", err
	}
	return "The ciphertext is: " + out, nil
}
