package scanning

import (
	"fmt"
	"strings"
	"time"

	"github.com/anstrom/portsweep/internal/errors"
)

const (
	// MinPort and MaxPort bound valid port numbers.
	MinPort = 1
	MaxPort = 65535

	// DefaultTimeout is the per-probe timeout used when none is configured.
	DefaultTimeout = 3 * time.Second
	// DefaultConcurrency is the worker pool size used when none is configured.
	DefaultConcurrency = 100
	// DefaultProgressInterval is the number of completions between progress reports.
	DefaultProgressInterval = 50
	// DefaultPorts is the port specification used when none is given.
	DefaultPorts = "1-1000"
	// DefaultMaxProbes caps hosts x ports x protocols for a single scan.
	DefaultMaxProbes = 1 << 21
)

// Protocol is the transport a probe uses.
type Protocol uint8

const (
	TCP Protocol = iota + 1
	UDP
)

// String returns the wire name of the protocol.
func (p Protocol) String() string {
	switch p {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	return p == TCP || p == UDP
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid protocol %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProtocol parses a protocol name, case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TCP":
		return TCP, nil
	case "UDP":
		return UDP, nil
	default:
		return 0, errors.NewScanError(errors.CodeValidation, fmt.Sprintf("unknown protocol %q", s))
	}
}

// ParseProtocols parses a list of protocol names and normalizes the result.
func ParseProtocols(names []string) ([]Protocol, error) {
	protocols := make([]Protocol, 0, len(names))
	for _, name := range names {
		p, err := ParseProtocol(name)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, p)
	}
	return NormalizeProtocols(protocols), nil
}

// NormalizeProtocols removes duplicates and invalid values while keeping the
// first-seen order. An empty selection defaults to TCP.
func NormalizeProtocols(protocols []Protocol) []Protocol {
	out := make([]Protocol, 0, 2)
	seen := make(map[Protocol]bool, 2)
	for _, p := range protocols {
		if !p.Valid() || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		out = append(out, TCP)
	}
	return out
}

// Status is the classification of a single probe. It has exactly four members.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusOpenFiltered
	StatusClosed
	StatusFiltered
)

// Statuses lists every status in report order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusOpenFiltered, StatusClosed, StatusFiltered}
}

// String returns the lower-case wire name used in reports and CSV.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusOpenFiltered:
		return "open|filtered"
	case StatusClosed:
		return "closed"
	case StatusFiltered:
		return "filtered"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	return s >= StatusOpen && s <= StatusFiltered
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a status wire name. "open_or_filtered" is accepted as an
// alias of "open|filtered".
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return StatusOpen, nil
	case "open|filtered", "open_or_filtered":
		return StatusOpenFiltered, nil
	case "closed":
		return StatusClosed, nil
	case "filtered":
		return StatusFiltered, nil
	default:
		return 0, errors.NewScanError(errors.CodeValidation, fmt.Sprintf("unknown status %q", s))
	}
}

// Task is one unit of dispatch: a single (host, port, protocol) probe.
type Task struct {
	Host     string
	Port     int
	Protocol Protocol
}

// Result is the classified outcome of one probe.
type Result struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
	Status   Status   `json:"status"`
}

func (t Task) result(status Status) Result {
	return Result{Host: t.Host, Port: t.Port, Protocol: t.Protocol, Status: status}
}

// Config holds the per-scan settings. It is not modified during a scan.
type Config struct {
	Timeout     time.Duration `json:"timeout"`
	Concurrency int           `json:"concurrency"`
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, Concurrency: DefaultConcurrency}
}

// Validate checks the scan configuration.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.ErrConfigInvalid("timeout", c.Timeout)
	}
	if c.Concurrency < 1 {
		return errors.ErrConfigInvalid("concurrency", c.Concurrency)
	}
	return nil
}

// CheckProbeLimit fails with VALIDATION when hosts x ports x protocols
// exceeds limit. A limit of zero or less means DefaultMaxProbes.
func CheckProbeLimit(hosts, ports, protocols, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxProbes
	}
	if hosts <= 0 || ports <= 0 || protocols <= 0 {
		return nil
	}
	if hosts > limit/ports/protocols || hosts*ports*protocols > limit {
		return errors.NewScanError(errors.CodeValidation, fmt.Sprintf(
			"scan of %d hosts x %d ports x %d protocols exceeds the limit of %d probes",
			hosts, ports, protocols, limit))
	}
	return nil
}

// Request is a scan described by raw target and port specifications.
type Request struct {
	Targets   string
	Ports     string
	Protocols []Protocol
	Config    Config
}

// ProgressFunc receives (completed, total) task counts.
type ProgressFunc func(completed, total int)
