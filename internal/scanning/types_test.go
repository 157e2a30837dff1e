package scanning

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/errors"
)

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "open", StatusOpen.String())
	assert.Equal(t, "open|filtered", StatusOpenFiltered.String())
	assert.Equal(t, "closed", StatusClosed.String())
	assert.Equal(t, "filtered", StatusFiltered.String())
	assert.Len(t, Statuses(), 4)
	assert.False(t, Status(0).Valid())
	assert.False(t, Status(9).Valid())
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	parsed, err := ParseStatus("open_or_filtered")
	require.NoError(t, err)
	assert.Equal(t, StatusOpenFiltered, parsed)

	_, err = ParseStatus("maybe")
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestParseProtocols(t *testing.T) {
	got, err := ParseProtocols([]string{"udp", "TCP", "Udp"})
	require.NoError(t, err)
	assert.Equal(t, []Protocol{UDP, TCP}, got)

	got, err = ParseProtocols(nil)
	require.NoError(t, err)
	assert.Equal(t, []Protocol{TCP}, got)

	_, err = ParseProtocols([]string{"sctp"})
	assert.Error(t, err)
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(Result{Host: "10.0.0.1", Port: 53, Protocol: UDP, Status: StatusOpenFiltered})
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"10.0.0.1","port":53,"protocol":"UDP","status":"open|filtered"}`, string(data))

	_, err = json.Marshal(Result{Host: "x", Port: 1})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Timeout: 0, Concurrency: 1}.Validate())
	assert.Error(t, Config{Timeout: time.Second, Concurrency: 0}.Validate())
}

func TestCheckProbeLimit(t *testing.T) {
	tests := []struct {
		name                       string
		hosts, ports, protocols, n int
		wantErr                    bool
	}{
		{"under the limit", 10, 10, 2, 300, false},
		{"at the limit", 10, 10, 2, 200, false},
		{"over the limit", 10, 10, 2, 199, true},
		{"zero limit uses the default", DefaultMaxProbes, 1, 1, 0, false},
		{"over the default", DefaultMaxProbes, 1, 2, 0, true},
		{"whole address space", 1<<32 - 2, 1000, 1, 0, true},
		{"product would overflow", 1 << 50, 65535, 2, 1 << 62, true},
		{"nothing to probe", 0, 1000, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckProbeLimit(tt.hosts, tt.ports, tt.protocols, tt.n)
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.CodeValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
