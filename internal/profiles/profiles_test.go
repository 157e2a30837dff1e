package profiles

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

func TestBuiltInProfiles(t *testing.T) {
	m := NewManager()
	names := make([]string, 0)
	for _, p := range m.List() {
		names = append(names, p.Name)
		assert.True(t, p.BuiltIn)

		ports, err := scanning.ExpandPorts(p.Ports)
		require.NoError(t, err, p.Name)
		assert.NotEmpty(t, ports)
		assert.NoError(t, p.ScanConfig().Validate(), p.Name)
	}
	assert.Equal(t, []string{"common", "comprehensive", "database", "dns", "mail", "quick", "stealth", "web"}, names)
}

func TestGet(t *testing.T) {
	m := NewManager()

	p, err := m.Get(" DNS ")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p.Timeout)
	assert.Equal(t, 10, p.Concurrency)

	protocols, err := p.ProtocolList()
	require.NoError(t, err)
	assert.Equal(t, []scanning.Protocol{scanning.TCP, scanning.UDP}, protocols)

	p.Protocols[0] = "mutated"
	again, err := m.Get("dns")
	require.NoError(t, err)
	assert.Equal(t, "TCP", again.Protocols[0])

	_, err = m.Get("nope")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestResolvePorts(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"common", "21,22,23,25,53,80,110,111,135,139,143,443,993,995,1723,3306,3389,5432,5900,8080"},
		{"udp-common", "53,67,68,69,123,161,162,514,1194,4500"},
		{"TOP100", "1-100"},
		{"top1000", "1-1000"},
		{"service:ftp", "20,21"},
		{"service:unknown", "service:unknown"},
		{"80,443", "80,443"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePorts(tt.spec))
		})
	}
}

func TestCombinePorts(t *testing.T) {
	assert.Equal(t, "8000,1-100", CombinePorts("8000", "", "top100"))
	assert.Equal(t, "", CombinePorts())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  - name: iot
    description: Embedded devices
    ports: "23,80,1883,service:voip"
    timeout: 2s
    concurrency: 40
    protocols: [TCP, UDP]
  - name: quick
    description: Faster quick
    ports: top100
    timeout: 1s
    concurrency: 300
    protocols: [TCP]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m := NewManager()
	require.NoError(t, m.LoadFile(path))

	iot, err := m.Get("iot")
	require.NoError(t, err)
	assert.False(t, iot.BuiltIn)
	assert.Equal(t, 2*time.Second, iot.Timeout)

	quick, err := m.Get("quick")
	require.NoError(t, err)
	assert.Equal(t, 300, quick.Concurrency)
	assert.False(t, quick.BuiltIn)
}

func TestAdd_Validation(t *testing.T) {
	m := NewManager()
	valid := Profile{Name: "x", Ports: "80", Timeout: time.Second, Concurrency: 1, Protocols: []string{"TCP"}}

	tests := []struct {
		name   string
		mutate func(p *Profile)
	}{
		{"missing name", func(p *Profile) { p.Name = "" }},
		{"missing ports", func(p *Profile) { p.Ports = "" }},
		{"bad ports", func(p *Profile) { p.Ports = "80-70" }},
		{"timeout too long", func(p *Profile) { p.Timeout = 2 * time.Minute }},
		{"timeout too short", func(p *Profile) { p.Timeout = 10 * time.Millisecond }},
		{"concurrency too high", func(p *Profile) { p.Concurrency = 501 }},
		{"no protocols", func(p *Profile) { p.Protocols = nil }},
		{"bad protocol", func(p *Profile) { p.Protocols = []string{"ICMP"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			p.Protocols = []string{"TCP"}
			tt.mutate(&p)
			err := m.Add(&p)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))
		})
	}

	require.NoError(t, m.Add(&valid))
	assert.Error(t, m.Add(nil))
}

func TestLoadFile_Errors(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [:"), 0o600))
	assert.Error(t, m.LoadFile(path))
}

func TestResolvePorts_MixedTokens(t *testing.T) {
	got := ResolvePorts("22,service:voip, top100")
	ports, err := scanning.ExpandPorts(got)
	require.NoError(t, err)
	assert.Len(t, ports, 102)
	assert.Contains(t, ports, 5061)
}
