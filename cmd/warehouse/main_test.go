package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mapper "github.com/ignite/campaign-warehouse/internal/hierarchy"
)

func TestParseCampaignID(t *testing.T) {
	id, err := parseCampaignID("42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	for _, bad := range []string{"", "0", "-3", "abc", "4.2"} {
		_, err := parseCampaignID(bad)
		assert.Error(t, err, bad)
	}
}

func TestOverrideSetRegistersFieldFlags(t *testing.T) {
	cmd := overrideSetCmd()
	for _, name := range []string{"network", "domain", "placement", "targeting", "special", "reason", "author"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestOverrideSetNeedsAField(t *testing.T) {
	cmd := overrideSetCmd()
	cmd.SetArgs([]string{"42", "--reason", "manual review"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestRulesSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rulesCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"validate", "reload", "test", "stats", "backup"} {
		assert.True(t, names[want], want)
	}
}

func TestRulesValidate(t *testing.T) {
	cmd := rulesValidateCmd()
	cmd.SetArgs([]string{"../../config/hierarchy_rules.yaml"})
	require.NoError(t, cmd.Execute())

	bad := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: \"1\"\nrules: []\n"), 0o644))
	cmd = rulesValidateCmd()
	cmd.SetArgs([]string{bad})
	err := cmd.Execute()
	var verr *mapper.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, bad, verr.Source)
}
