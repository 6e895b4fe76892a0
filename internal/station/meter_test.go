package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFluctuateZeroPercentIsExact(t *testing.T) {
	assert.Equal(t, 100.0, fluctuate(100, 0))
}

func TestFluctuateStaysWithinBand(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := fluctuate(100, 10)
		assert.GreaterOrEqual(t, v, 89.0)
		assert.LessOrEqual(t, v, 111.0)
	}
}

func TestBuildMeterValueACExpandsThreePhases(t *testing.T) {
	st := &Station{
		MaximumPower:   22000,
		PowerDivider:   1,
		CurrentOutType: CurrentOutAC,
		NumberOfPhases: 3,
		VoltageOut:     230,
		Connectors:     map[int]*Connector{1: {Id: 1}},
	}
	e := &Engine{Station: st}
	c := st.Connectors[1]

	entry := e.buildMeterValue(c)

	assert.Equal(t, "Energy.Active.Import.Register", entry.SampledValue[0].Measurand)

	// 1 (line) + 3 (L-N) voltage samples, per the AC 3-phase expansion.
	var voltages []string
	for _, sv := range entry.SampledValue {
		if sv.Measurand == "Voltage" {
			voltages = append(voltages, sv.Phase)
		}
	}
	assert.Len(t, voltages, 4)
	assert.ElementsMatch(t, []string{"", "L1", "L2", "L3"}, voltages)
}

func TestBuildMeterValueDCCollapsesToSinglePhase(t *testing.T) {
	st := &Station{
		MaximumPower:   50000,
		PowerDivider:   1,
		CurrentOutType: CurrentOutDC,
		NumberOfPhases: 1,
		VoltageOut:     400,
		Connectors:     map[int]*Connector{1: {Id: 1}},
	}
	e := &Engine{Station: st}
	c := st.Connectors[1]

	entry := e.buildMeterValue(c)

	// Energy + Power + Voltage + Current = 4 samples, none phase-tagged.
	assert.Len(t, entry.SampledValue, 4)
	for _, sv := range entry.SampledValue {
		assert.Empty(t, sv.Phase)
	}
}

func TestBuildMeterValueScalesByPowerUnit(t *testing.T) {
	st := &Station{
		MaximumPower:   22000,
		PowerDivider:   1,
		PowerUnit:      "kW",
		CurrentOutType: CurrentOutDC,
		NumberOfPhases: 1,
		VoltageOut:     400,
		Connectors:     map[int]*Connector{1: {Id: 1}},
	}
	e := &Engine{Station: st}
	c := st.Connectors[1]

	entry := e.buildMeterValue(c)

	for _, sv := range entry.SampledValue {
		switch sv.Measurand {
		case "Energy.Active.Import.Register":
			assert.Equal(t, "kWh", sv.Unit)
		case "Power.Active.Import":
			assert.Equal(t, "kW", sv.Unit)
		}
	}
}

func TestUnitDividerMatchesPowerUnit(t *testing.T) {
	assert.Equal(t, 1.0, (&Station{}).unitDivider())
	assert.Equal(t, 1.0, (&Station{PowerUnit: "W"}).unitDivider())
	assert.Equal(t, 1000.0, (&Station{PowerUnit: "kW"}).unitDivider())
	assert.Equal(t, 1000.0, (&Station{PowerUnit: "KW"}).unitDivider())
}

func TestBuildMeterValueAccumulatesEnergy(t *testing.T) {
	st := &Station{
		MaximumPower:   11000,
		PowerDivider:   1,
		CurrentOutType: CurrentOutDC,
		NumberOfPhases: 1,
		VoltageOut:     230,
		Connectors:     map[int]*Connector{1: {Id: 1}},
	}
	e := &Engine{Station: st}
	c := st.Connectors[1]

	e.buildMeterValue(c)
	first := c.EnergyActiveImportRegisterValue
	e.buildMeterValue(c)
	second := c.EnergyActiveImportRegisterValue

	assert.Greater(t, second, first)
}
