package scanning

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/anstrom/portsweep/internal/errors"
)

const expectedPortRangeParts = 2

// ParseError reports a malformed port specification.
type ParseError struct {
	Token  string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid port specification %q: %s", e.Token, e.Reason)
}

// ErrorCode returns errors.CodeParse.
func (e *ParseError) ErrorCode() errors.ErrorCode {
	return errors.CodeParse
}

// ExpandPorts parses a comma-separated list of ports and inclusive "A-B"
// ranges into an ascending, duplicate-free list of ports.
func ExpandPorts(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, &ParseError{Token: spec, Reason: "empty port specification"}
	}

	set := make(map[int]struct{})
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, &ParseError{Token: spec, Reason: "empty token"}
		}

		if strings.Contains(token, "-") {
			start, end, err := parsePortRange(token)
			if err != nil {
				return nil, err
			}
			for p := start; p <= end; p++ {
				set[p] = struct{}{}
			}
			continue
		}

		port, err := parsePort(token, token)
		if err != nil {
			return nil, err
		}
		set[port] = struct{}{}
	}

	return slices.Sorted(maps.Keys(set)), nil
}

func parsePortRange(token string) (start, end int, err error) {
	parts := strings.SplitN(token, "-", expectedPortRangeParts)
	if start, err = parsePort(token, parts[0]); err != nil {
		return 0, 0, err
	}
	if end, err = parsePort(token, parts[1]); err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, &ParseError{Token: token, Reason: "range start is greater than range end"}
	}
	return start, end, nil
}

func parsePort(token, value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ParseError{Token: token, Reason: "not a number"}
	}
	if port < MinPort || port > MaxPort {
		return 0, &ParseError{
			Token:  token,
			Reason: fmt.Sprintf("port %d out of range %d-%d", port, MinPort, MaxPort),
		}
	}
	return port, nil
}
