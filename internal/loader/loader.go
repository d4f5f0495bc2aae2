// Package loader parses the platform and scenario input files of
// spec.md 6 into pkg/platform and pkg/job types. Grounded on
// pkg/colonyos/config_loader.go's JSON-struct-tag idiom (nested
// anonymous structs, os.ReadFile + json.Unmarshal, %w-wrapped errors)
// adapted from offload configuration to simulator configuration.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/platform"
	"github.com/halvorsen/schedsim-go/pkg/simerrors"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

type cStateFile struct {
	Level     int     `json:"level"`
	PowerMW   float64 `json:"power_mw"`
	LatencyUs float64 `json:"latency_us"`
	Scope     string  `json:"scope"`
}

type platformFile struct {
	ProcessorTypes []struct {
		Name                 string  `json:"name"`
		Performance          float64 `json:"performance"`
		ContextSwitchDelayUs float64 `json:"context_switch_delay_us"`
	} `json:"processor_types"`

	ClockDomains []struct {
		ID                    int        `json:"id"`
		FrequenciesMHz        []float64  `json:"frequencies_mhz"`
		EffectiveFrequencyMHz *float64   `json:"effective_frequency_mhz"`
		InitialFrequencyMHz   *float64   `json:"initial_frequency_mhz"`
		PowerModel            []float64  `json:"power_model"`
		TransitionDelayUs     float64    `json:"transition_delay_us"`
	} `json:"clock_domains"`

	PowerDomains []struct {
		ID      int          `json:"id"`
		CStates []cStateFile `json:"c_states"`
	} `json:"power_domains"`

	Processors []struct {
		Type        string `json:"type"`
		ClockDomain int    `json:"clock_domain"`
		PowerDomain int    `json:"power_domain"`
	} `json:"processors"`

	// Clusters is the legacy form: one processor type, one clock domain
	// and one power domain bundled per entry, replicated `count` times.
	Clusters []struct {
		Type              string       `json:"type"`
		Performance       float64      `json:"performance"`
		Count             int          `json:"count"`
		ClockDomainID     int          `json:"clock_domain_id"`
		FrequenciesMHz    []float64    `json:"frequencies_mhz"`
		PowerModel        []float64    `json:"power_model"`
		TransitionDelayUs float64      `json:"transition_delay_us"`
		PowerDomainID     int          `json:"power_domain_id"`
		CStates           []cStateFile `json:"c_states"`
	} `json:"clusters"`
}

func usToDuration(us float64) simtime.Duration { return simtime.Duration(us / 1e6) }

// LoadPlatform reads and converts a platform file into a Builder ready for
// Finalize. Legacy `clusters` entries are converted into the canonical
// processor_types/clock_domains/power_domains/processors form first.
func LoadPlatform(path string) (*platform.Builder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading platform file %s: %v", simerrors.ErrConfiguration, path, err)
	}

	var pf platformFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("%w: parsing platform file %s: %v", simerrors.ErrConfiguration, path, err)
	}

	if len(pf.Clusters) > 0 {
		convertClusters(&pf)
	}

	if len(pf.ProcessorTypes) == 0 {
		return nil, fmt.Errorf("%w: platform file declares no processor_types", simerrors.ErrConfiguration)
	}

	b := platform.NewBuilder()
	typeIDs := make(map[string]platform.ProcessorTypeID, len(pf.ProcessorTypes))
	for _, pt := range pf.ProcessorTypes {
		if pt.Name == "" {
			return nil, fmt.Errorf("%w: processor type missing name", simerrors.ErrConfiguration)
		}
		typeIDs[pt.Name] = b.AddProcessorType(pt.Name, pt.Performance, usToDuration(pt.ContextSwitchDelayUs))
	}

	for _, cd := range pf.ClockDomains {
		if len(cd.FrequenciesMHz) == 0 {
			return nil, fmt.Errorf("%w: clock domain %d declares no frequencies_mhz", simerrors.ErrConfiguration, cd.ID)
		}
		freqMin := platform.Frequency(cd.FrequenciesMHz[0])
		freqMax := platform.Frequency(cd.FrequenciesMHz[len(cd.FrequenciesMHz)-1])
		modes := make([]platform.Frequency, len(cd.FrequenciesMHz))
		for i, f := range cd.FrequenciesMHz {
			modes[i] = platform.Frequency(f)
		}
		freqEff := freqMax
		if cd.EffectiveFrequencyMHz != nil {
			freqEff = platform.Frequency(*cd.EffectiveFrequencyMHz)
		}
		var initial platform.Frequency
		if cd.InitialFrequencyMHz != nil {
			initial = platform.Frequency(*cd.InitialFrequencyMHz)
		}
		c0, c1, c2, c3 := 0.0, 0.0, 0.0, 0.0
		if len(cd.PowerModel) > 0 {
			c0 = cd.PowerModel[0]
		}
		if len(cd.PowerModel) > 1 {
			c1 = cd.PowerModel[1]
		}
		if len(cd.PowerModel) > 2 {
			c2 = cd.PowerModel[2]
		}
		if len(cd.PowerModel) > 3 {
			c3 = cd.PowerModel[3]
		}
		b.AddClockDomain(platform.ClockDomain{
			ID:              platform.ClockDomainID(cd.ID),
			FreqMin:         freqMin,
			FreqMax:         freqMax,
			Modes:           modes,
			FreqEff:         freqEff,
			C0:              c0,
			C1:              c1,
			C2:              c2,
			C3:              c3,
			TransitionDelay: usToDuration(cd.TransitionDelayUs),
			Current:         initial,
		})
	}

	for _, pd := range pf.PowerDomains {
		cstates := make(map[int]platform.CState, len(pd.CStates))
		for _, cs := range pd.CStates {
			scope := platform.PerProcessor
			if cs.Scope == "domain_wide" {
				scope = platform.DomainWide
			}
			cstates[cs.Level] = platform.CState{
				Level:       cs.Level,
				Scope:       scope,
				WakeLatency: usToDuration(cs.LatencyUs),
				SleepPower:  simtime.Power(cs.PowerMW),
			}
		}
		b.AddPowerDomain(platform.PowerDomain{ID: platform.PowerDomainID(pd.ID), CStates: cstates})
	}

	if len(pf.Processors) == 0 {
		return nil, fmt.Errorf("%w: platform file declares no processors", simerrors.ErrConfiguration)
	}
	for _, p := range pf.Processors {
		typeID, ok := typeIDs[p.Type]
		if !ok {
			return nil, fmt.Errorf("%w: processor references unknown type %q", simerrors.ErrConfiguration, p.Type)
		}
		b.AddProcessor(typeID, platform.ClockDomainID(p.ClockDomain), platform.PowerDomainID(p.PowerDomain))
	}

	return b, nil
}

// convertClusters expands the legacy `clusters` shorthand into the
// canonical processor_types/clock_domains/power_domains/processors
// fields, each cluster becoming one type/domain triple replicated
// `count` times.
func convertClusters(pf *platformFile) {
	for i, c := range pf.Clusters {
		typeName := c.Type
		if typeName == "" {
			typeName = fmt.Sprintf("cluster-%d", i)
		}
		pf.ProcessorTypes = append(pf.ProcessorTypes, struct {
			Name                 string  `json:"name"`
			Performance          float64 `json:"performance"`
			ContextSwitchDelayUs float64 `json:"context_switch_delay_us"`
		}{Name: typeName, Performance: c.Performance})

		pf.ClockDomains = append(pf.ClockDomains, struct {
			ID                    int       `json:"id"`
			FrequenciesMHz        []float64 `json:"frequencies_mhz"`
			EffectiveFrequencyMHz *float64  `json:"effective_frequency_mhz"`
			InitialFrequencyMHz   *float64  `json:"initial_frequency_mhz"`
			PowerModel            []float64 `json:"power_model"`
			TransitionDelayUs     float64   `json:"transition_delay_us"`
		}{
			ID:                c.ClockDomainID,
			FrequenciesMHz:    c.FrequenciesMHz,
			PowerModel:        c.PowerModel,
			TransitionDelayUs: c.TransitionDelayUs,
		})

		pf.PowerDomains = append(pf.PowerDomains, struct {
			ID      int          `json:"id"`
			CStates []cStateFile `json:"c_states"`
		}{ID: c.PowerDomainID, CStates: c.CStates})

		for n := 0; n < c.Count; n++ {
			pf.Processors = append(pf.Processors, struct {
				Type        string `json:"type"`
				ClockDomain int    `json:"clock_domain"`
				PowerDomain int    `json:"power_domain"`
			}{Type: typeName, ClockDomain: c.ClockDomainID, PowerDomain: c.PowerDomainID})
		}
	}
}

// JobArrival is one scheduled job activation parsed from a scenario file.
type JobArrival struct {
	TaskID  job.TaskID
	Arrival simtime.TimePoint
	WCET    simtime.Duration
}

// Scenario is a fully parsed set of tasks and their job arrivals.
type Scenario struct {
	Tasks     []*job.Task
	Arrivals  []JobArrival
}

type scenarioFile struct {
	Tasks []struct {
		ID               uint64  `json:"id"`
		Period           float64 `json:"period"`
		RelativeDeadline float64 `json:"relative_deadline"`
		WCET             float64 `json:"wcet"`
		Jobs             []struct {
			Arrival  float64 `json:"arrival"`
			Duration float64 `json:"duration"`
		} `json:"jobs"`
	} `json:"tasks"`
}

// LoadScenario reads and converts a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading scenario file %s: %v", simerrors.ErrConfiguration, path, err)
	}

	var sf scenarioFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("%w: parsing scenario file %s: %v", simerrors.ErrConfiguration, path, err)
	}

	sc := &Scenario{}
	for _, t := range sf.Tasks {
		if t.Period <= 0 {
			return nil, fmt.Errorf("%w: task %d has non-positive period", simerrors.ErrConfiguration, t.ID)
		}
		task := &job.Task{
			ID:               job.TaskID(t.ID),
			Period:           simtime.Duration(t.Period),
			RelativeDeadline: simtime.Duration(t.RelativeDeadline),
			WCET:             simtime.Duration(t.WCET),
		}
		sc.Tasks = append(sc.Tasks, task)
		for _, j := range t.Jobs {
			sc.Arrivals = append(sc.Arrivals, JobArrival{
				TaskID:  task.ID,
				Arrival: simtime.TimePoint(j.Arrival),
				WCET:    simtime.Duration(j.Duration),
			})
		}
	}
	return sc, nil
}
