package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/simerrors"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const canonicalPlatform = `{
	"processor_types": [{"name": "big", "performance": 1.0, "context_switch_delay_us": 0}],
	"clock_domains": [{"id": 1, "frequencies_mhz": [1000, 2000], "power_model": [1, 2, 3, 4]}],
	"power_domains": [{"id": 1, "c_states": [{"level": 1, "power_mw": 10, "latency_us": 100, "scope": "per_processor"}]}],
	"processors": [{"type": "big", "clock_domain": 1, "power_domain": 1}]
}`

func TestLoadPlatformParsesCanonicalForm(t *testing.T) {
	path := writeTemp(t, "platform.json", canonicalPlatform)
	b, err := LoadPlatform(path)
	require.NoError(t, err)

	eng := engine.New(&trace.MemorySink{}, false)
	plat, err := b.Finalize(eng)
	require.NoError(t, err)
	assert.Len(t, plat.ProcessorIDs(), 1)
}

const legacyClustersPlatform = `{
	"clusters": [
		{"type": "big", "performance": 2.0, "count": 2, "clock_domain_id": 1, "frequencies_mhz": [1000, 2000], "power_model": [1,2,3,4], "power_domain_id": 1, "c_states": []},
		{"type": "little", "performance": 1.0, "count": 3, "clock_domain_id": 2, "frequencies_mhz": [500, 1000], "power_model": [1,2,3,4], "power_domain_id": 2, "c_states": []}
	]
}`

func TestLoadPlatformConvertsLegacyClusters(t *testing.T) {
	path := writeTemp(t, "platform.json", legacyClustersPlatform)
	b, err := LoadPlatform(path)
	require.NoError(t, err)

	eng := engine.New(&trace.MemorySink{}, false)
	plat, err := b.Finalize(eng)
	require.NoError(t, err)
	assert.Len(t, plat.ProcessorIDs(), 5, "2 big + 3 little processors must be replicated from cluster counts")
}

func TestLoadPlatformWrapsMissingFile(t *testing.T) {
	_, err := LoadPlatform(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, simerrors.ErrConfiguration)
}

func TestLoadPlatformRejectsInvalidJSON(t *testing.T) {
	path := writeTemp(t, "platform.json", "{not valid json")
	_, err := LoadPlatform(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerrors.ErrConfiguration)
}

func TestLoadPlatformRejectsNoProcessorTypes(t *testing.T) {
	path := writeTemp(t, "platform.json", `{"processors": []}`)
	_, err := LoadPlatform(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerrors.ErrConfiguration)
}

func TestLoadPlatformRejectsDanglingProcessorType(t *testing.T) {
	path := writeTemp(t, "platform.json", `{
		"processor_types": [{"name": "big", "performance": 1.0}],
		"clock_domains": [{"id": 1, "frequencies_mhz": [1000]}],
		"power_domains": [{"id": 1}],
		"processors": [{"type": "unknown", "clock_domain": 1, "power_domain": 1}]
	}`)
	_, err := LoadPlatform(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerrors.ErrConfiguration)
}

const simpleScenario = `{
	"tasks": [
		{"id": 1, "period": 10, "relative_deadline": 10, "wcet": 2, "jobs": [{"arrival": 0, "duration": 2}, {"arrival": 10, "duration": 2}]},
		{"id": 2, "period": 20, "relative_deadline": 20, "wcet": 5, "jobs": []}
	]
}`

func TestLoadScenarioParsesTasksAndArrivals(t *testing.T) {
	path := writeTemp(t, "scenario.json", simpleScenario)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	require.Len(t, sc.Tasks, 2)
	assert.Equal(t, uint64(1), uint64(sc.Tasks[0].ID))
	require.Len(t, sc.Arrivals, 2)
	assert.Equal(t, sc.Tasks[0].ID, sc.Arrivals[0].TaskID)
	assert.InDelta(t, 10.0, float64(sc.Arrivals[1].Arrival), 1e-9)
}

func TestLoadScenarioRejectsNonPositivePeriod(t *testing.T) {
	path := writeTemp(t, "scenario.json", `{"tasks": [{"id": 1, "period": 0, "wcet": 1}]}`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, simerrors.ErrConfiguration)
}
