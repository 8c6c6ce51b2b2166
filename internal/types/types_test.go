package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSeverityYAML(t *testing.T) {
	t.Parallel()
	input := `
return-disposed:
  severity: WARNING
close-injected:
  severity: off
discarded-creation:
  severity: info
`
	var rules map[string]ConfigRule
	require.NoError(t, yaml.Unmarshal([]byte(input), &rules))
	assert.Equal(t, SeverityWarning, rules["return-disposed"].Severity)
	assert.Equal(t, SeverityOff, rules["close-injected"].Severity)
	assert.Equal(t, SeverityInfo, rules["discarded-creation"].Severity)

	out, err := yaml.Marshal(rules["return-disposed"])
	require.NoError(t, err)
	assert.Equal(t, "severity: WARNING\n", string(out))

	err = yaml.Unmarshal([]byte("x:\n  severity: LOUD\n"), &rules)
	assert.ErrorContains(t, err, `unknown severity "LOUD"`)
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()
	for _, s := range []Severity{SeverityError, SeverityWarning, SeverityInfo, SeverityOff} {
		got, err := ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseSeverity("")
	assert.Error(t, err)
}
