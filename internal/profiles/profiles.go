// Package profiles provides scan presets and named port sets for portsweep.
// Built-in presets cover common use cases; custom presets can be loaded from
// a YAML file and override built-ins of the same name.
package profiles

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

// Named port sets accepted wherever a port specification is.
const (
	KeywordCommon    = "common"
	KeywordUDPCommon = "udp-common"
	KeywordTop100    = "top100"
	KeywordTop1000   = "top1000"

	servicePrefix = "service:"
)

var (
	tcpCommonPorts = []int{21, 22, 23, 25, 53, 80, 110, 111, 135, 139, 143, 443, 993, 995,
		1723, 3306, 3389, 5432, 5900, 8080}
	udpCommonPorts = []int{53, 67, 68, 69, 123, 161, 162, 514, 1194, 4500}
)

// ServiceGroups maps service categories to their usual ports.
var ServiceGroups = map[string][]int{
	"web":            {80, 443, 8080, 8443, 8000, 8888, 9000, 9090, 3000, 5000},
	"ssh":            {22},
	"ftp":            {20, 21},
	"mail":           {25, 110, 143, 465, 587, 993, 995},
	"dns":            {53},
	"dhcp":           {67, 68},
	"http_alt":       {8080, 8443, 8000, 8888, 9000, 9090},
	"database":       {1433, 1521, 3306, 5432, 6379, 27017, 28017},
	"remote":         {22, 23, 3389, 5900, 5901, 5902},
	"file_sharing":   {135, 139, 445, 2049},
	"voip":           {5060, 5061},
	"gaming":         {25565, 7777, 27015},
	"monitoring":     {161, 162, 10050, 12489},
	"backup":         {10000, 10001, 10002},
	"virtualization": {902, 903, 8006, 8007},
}

// Profile is a named scan preset.
type Profile struct {
	Name        string        `yaml:"name" json:"name" validate:"required,max=64"`
	Description string        `yaml:"description" json:"description"`
	Ports       string        `yaml:"ports" json:"ports" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"min=1s,max=60s"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" validate:"min=1,max=500"`
	Protocols   []string      `yaml:"protocols" json:"protocols" validate:"min=1,dive,oneof=TCP UDP tcp udp"`
	BuiltIn     bool          `yaml:"-" json:"built_in"`
}

// ScanConfig returns the profile's timeout and concurrency.
func (p *Profile) ScanConfig() scanning.Config {
	return scanning.Config{Timeout: p.Timeout, Concurrency: p.Concurrency}
}

// ProtocolList parses the profile's protocols.
func (p *Profile) ProtocolList() ([]scanning.Protocol, error) {
	return scanning.ParseProtocols(p.Protocols)
}

func builtIns() []*Profile {
	return []*Profile{
		{
			Name:        "quick",
			Description: "Quick scan of the most common ports",
			Ports:       "21,22,23,25,53,80,110,143,443,993,995,8080",
			Timeout:     1 * time.Second,
			Concurrency: 200,
			Protocols:   []string{"TCP"},
		},
		{
			Name:        "common",
			Description: "Standard scan of common service ports",
			Ports:       "20,21,22,23,25,53,80,110,111,135,139,143,443,445,993,995,1723,3306,3389,5432,5900,8080,8443",
			Timeout:     3 * time.Second,
			Concurrency: 100,
			Protocols:   []string{"TCP"},
		},
		{
			Name:        "comprehensive",
			Description: "Full scan of the first 1000 ports",
			Ports:       "1-1000",
			Timeout:     5 * time.Second,
			Concurrency: 50,
			Protocols:   []string{"TCP"},
		},
		{
			Name:        "stealth",
			Description: "Slow, low-concurrency scan",
			Ports:       "21,22,23,25,53,80,110,143,443,993,995",
			Timeout:     10 * time.Second,
			Concurrency: 5,
			Protocols:   []string{"TCP"},
		},
		{
			Name:        "dns",
			Description: "DNS over TCP and UDP",
			Ports:       "53",
			Timeout:     2 * time.Second,
			Concurrency: 10,
			Protocols:   []string{"TCP", "UDP"},
		},
		{
			Name:        "web",
			Description: "Web servers and common HTTP alternates",
			Ports:       "80,443,8080,8443,8000,8888,9000,9090",
			Timeout:     3 * time.Second,
			Concurrency: 50,
			Protocols:   []string{"TCP"},
		},
		{
			Name:        "database",
			Description: "Database servers",
			Ports:       "1433,1521,3306,5432,6379,27017",
			Timeout:     5 * time.Second,
			Concurrency: 20,
			Protocols:   []string{"TCP"},
		},
		{
			Name:        "mail",
			Description: "Mail servers",
			Ports:       "25,110,143,465,587,993,995",
			Timeout:     5 * time.Second,
			Concurrency: 30,
			Protocols:   []string{"TCP"},
		},
	}
}

// Manager holds the available profiles.
type Manager struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	validate *validator.Validate
}

// NewManager creates a manager containing the built-in profiles.
func NewManager() *Manager {
	m := &Manager{
		profiles: make(map[string]*Profile),
		validate: validator.New(),
	}
	for _, p := range builtIns() {
		p.BuiltIn = true
		m.profiles[p.Name] = p
	}
	return m
}

type profileFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// LoadFile reads custom profiles from a YAML file with a top-level
// "profiles" list. Custom profiles replace built-ins with the same name.
func (m *Manager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to read profiles file", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to parse profiles file", err)
	}

	for _, p := range file.Profiles {
		if err := m.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// Add validates and registers a custom profile.
func (m *Manager) Add(p *Profile) error {
	if p == nil {
		return errors.NewConfigError(errors.CodeValidation, "profile is nil")
	}
	if err := m.validate.Struct(p); err != nil {
		return &errors.ConfigError{
			Code:    errors.CodeValidation,
			Message: "invalid profile",
			Field:   p.Name,
			Cause:   err,
		}
	}
	if _, err := scanning.ExpandPorts(ResolvePorts(p.Ports)); err != nil {
		return &errors.ConfigError{Code: errors.CodeValidation, Message: "invalid profile ports", Field: p.Name, Cause: err}
	}

	clone := *p
	clone.Name = strings.ToLower(strings.TrimSpace(p.Name))
	clone.Protocols = slices.Clone(p.Protocols)
	clone.BuiltIn = false

	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[clone.Name] = &clone
	return nil
}

// Get returns a copy of the named profile.
func (m *Manager) Get(name string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.NewConfigFieldError(errors.CodeNotFound, "unknown profile", "profile", name)
	}
	clone := *p
	clone.Protocols = slices.Clone(p.Protocols)
	return &clone, nil
}

// List returns copies of all profiles sorted by name.
func (m *Manager) List() []*Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		clone := *p
		clone.Protocols = slices.Clone(p.Protocols)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResolvePorts expands named port sets inside a comma-separated port
// specification. Tokens that are not names are kept as-is for
// scanning.ExpandPorts to parse.
//
// Recognized names are "common", "udp-common", "top100", "top1000" and
// "service:<group>" for any key of ServiceGroups.
func ResolvePorts(spec string) string {
	tokens := strings.Split(spec, ",")
	for i, token := range tokens {
		tokens[i] = resolveToken(token)
	}
	return strings.Join(tokens, ",")
}

func resolveToken(token string) string {
	key := strings.ToLower(strings.TrimSpace(token))
	switch key {
	case KeywordCommon:
		return joinPorts(tcpCommonPorts)
	case KeywordUDPCommon:
		return joinPorts(udpCommonPorts)
	case KeywordTop100:
		return "1-100"
	case KeywordTop1000:
		return "1-1000"
	}
	if group, ok := strings.CutPrefix(key, servicePrefix); ok {
		if ports, found := ServiceGroups[group]; found {
			return joinPorts(ports)
		}
	}
	return token
}

// CombinePorts joins several port specifications, resolving named sets, and
// skips empty entries.
func CombinePorts(specs ...string) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, ResolvePorts(s))
	}
	return strings.Join(parts, ",")
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// Describe returns a one-line summary of the profile.
func (p *Profile) Describe() string {
	return fmt.Sprintf("%s: %s (ports %s, timeout %s, concurrency %d, %s)",
		p.Name, p.Description, p.Ports, p.Timeout, p.Concurrency, strings.Join(p.Protocols, "+"))
}
