package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/raterudder/energystats/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
entries:
  - id: home
    name: Home
    dailyReset: "06:30"
    sources:
      grid_power: sensor.grid_power
      pv_power: sensor.pv_power
      grid_in_energy: sensor.grid_import
  - id: cabin
    sources:
      grid_power: sensor.cabin_grid
      pv_power: sensor.cabin_pv
`

func TestParseEntries(t *testing.T) {
	entries, err := ParseEntries([]byte(validConfig))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "home", entries[0].ID)
	assert.Equal(t, "Home", entries[0].Name)
	assert.Equal(t, "06:30", entries[0].DailyReset)
	assert.Equal(t, map[types.SourceKey]string{
		types.SourceGridPower:    "sensor.grid_power",
		types.SourcePVPower:      "sensor.pv_power",
		types.SourceGridInEnergy: "sensor.grid_import",
	}, entries[0].Sources)

	assert.Equal(t, "cabin", entries[1].ID)
	assert.Equal(t, "00:00", entries[1].DailyReset)
}

func TestParseEntriesErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		yaml string
		err  string
	}{
		"UnknownSource": {
			yaml: "entries:\n  - id: home\n    sources:\n      grid_power: a\n      pv_power: b\n      wind_power: c\n",
			err:  "unknown source key: wind_power",
		},
		"MissingRequired": {
			yaml: "entries:\n  - id: home\n    sources:\n      grid_power: a\n",
			err:  "missing required source pv_power",
		},
		"MissingID": {
			yaml: "entries:\n  - sources:\n      grid_power: a\n      pv_power: b\n",
			err:  "entry id cannot be empty",
		},
		"Duplicate": {
			yaml: "entries:\n  - id: home\n    sources:\n      grid_power: a\n      pv_power: b\n  - id: home\n    sources:\n      grid_power: c\n      pv_power: d\n",
			err:  "duplicate id home",
		},
		"InvalidYAML": {
			yaml: "entries: [",
			err:  "parsing yaml",
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEntries([]byte(tc.yaml))
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

func TestLoadEntries(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "entries.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(validConfig), 0o600))

	entries, err := LoadEntries(filename)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = LoadEntries(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestEntriesList(t *testing.T) {
	entries, err := ParseEntries([]byte(validConfig))
	require.NoError(t, err)

	e := NewEntries(entries)
	list := e.List()
	list[0].ID = "changed"
	assert.Equal(t, "home", e.List()[0].ID)

	e.Set(entries[1:])
	assert.Len(t, e.List(), 1)
}

func TestEntriesReload(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "entries.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(validConfig), 0o600))

	e, err := NewFileEntries(filename)
	require.NoError(t, err)
	assert.Len(t, e.List(), 2)

	const oneEntry = `
entries:
  - id: home
    sources:
      grid_power: sensor.grid_power
      pv_power: sensor.pv_power
`
	require.NoError(t, os.WriteFile(filename, []byte(oneEntry), 0o600))
	list, err := e.Reload()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "home", e.List()[0].ID)

	t.Run("Invalid File Keeps Entries", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filename, []byte("entries: ["), 0o600))
		_, err := e.Reload()
		assert.Error(t, err)
		assert.Len(t, e.List(), 1)
	})

	t.Run("Not From File", func(t *testing.T) {
		_, err := NewEntries(nil).Reload()
		assert.Error(t, err)
	})
}
