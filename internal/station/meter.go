package station

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
)

const defaultMeterValueSampleInterval = 60 * time.Second

// fluctuate returns base randomly varied by +/- pct percent.
func fluctuate(base, pct float64) float64 {
	if pct <= 0 {
		return base
	}
	delta := base * (pct / 100)
	return base - delta + rand.Float64()*2*delta
}

// unitDivider returns 1000 when the template's powerUnit is "kW"
// (case-insensitive), 1 otherwise. The unit is fixed per station, not per sample.
func (s *Station) unitDivider() float64 {
	if strings.EqualFold(s.PowerUnit, "kW") {
		return 1000
	}
	return 1
}

// energyUnit and powerUnit return the OCPP sample unit label matching
// unitDivider's scale.
func (s *Station) energyUnit() string {
	if strings.EqualFold(s.PowerUnit, "kW") {
		return "kWh"
	}
	return "Wh"
}

func (s *Station) powerUnit() string {
	if strings.EqualFold(s.PowerUnit, "kW") {
		return "kW"
	}
	return "W"
}

func sampledValue(value float64, measurand, unit, phase string, decimals int) v16.SampledValue {
	sv := v16.SampledValue{
		Value:     fmt.Sprintf("%.*f", decimals, value),
		Context:   "Sample.Periodic",
		Measurand: measurand,
		Unit:      unit,
	}
	if phase != "" {
		sv.Phase = phase
	}
	return sv
}

// buildMeterValue synthesizes one OCPP 1.6 MeterValue entry for connector c:
// Energy always; Voltage/Current.Import always; AC 3-phase expands Voltage,
// Current.Import, and Power.Active.Import into per-phase L1/L2/L3 samples on
// top of the station-wide ones, while DC stays a single unphased sample.
// Values are fluctuated; the station-wide power sample is also clamped to the
// connector's fair share of station capacity, the other samples are not.
func (e *Engine) buildMeterValue(c *Connector) v16.MeterValueEntry {
	st := e.Station

	st.mu.RLock()
	maxPower := st.MaximumPower
	powerDivider := st.PowerDivider
	current := st.CurrentOutType
	phases := st.NumberOfPhases
	voltage := st.VoltageOut
	cumulative := c.EnergyActiveImportRegisterValue
	st.mu.RUnlock()

	if powerDivider < 1 {
		powerDivider = 1
	}
	connectorCapacity := maxPower / float64(powerDivider)

	power := fluctuate(connectorCapacity, 5)
	if power > connectorCapacity {
		power = connectorCapacity
	}

	intervalSeconds := defaultMeterValueSampleInterval.Seconds()
	energyIncrement := power * intervalSeconds / 3600
	cumulative += energyIncrement

	e.Station.mu.Lock()
	c.EnergyActiveImportRegisterValue = cumulative
	c.TransactionEnergyActiveImportRegisterValue += energyIncrement
	e.Station.mu.Unlock()

	divider := st.unitDivider()
	energyUnit := st.energyUnit()
	powerUnit := st.powerUnit()

	samples := []v16.SampledValue{
		sampledValue(cumulative/divider, "Energy.Active.Import.Register", energyUnit, "", 0),
		sampledValue(power/divider, "Power.Active.Import", powerUnit, "", 1),
	}

	amps := 0.0
	if voltage > 0 {
		amps = power / voltage
	}

	// One station-wide voltage/current sample, plus one per phase below
	// when AC 3-phase.
	samples = append(samples,
		sampledValue(fluctuate(voltage, 2), "Voltage", "V", "", 1),
		sampledValue(fluctuate(amps, 5), "Current.Import", "A", "", 1),
	)

	if current == CurrentOutAC && phases >= 3 {
		perPhasePower := power / float64(phases)
		perPhaseAmps := amps / float64(phases)
		for _, phase := range []string{"L1", "L2", "L3"} {
			samples = append(samples,
				sampledValue(fluctuate(voltage, 2), "Voltage", "V", phase, 1),
				sampledValue(fluctuate(perPhaseAmps, 5), "Current.Import", "A", phase, 1),
				sampledValue(fluctuate(perPhasePower, 5)/divider, "Power.Active.Import", powerUnit, phase, 1),
			)
		}
	}

	return v16.MeterValueEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		SampledValue: samples,
	}
}

func (e *Engine) sendMeterValues(c *Connector) error {
	entry := e.buildMeterValue(c)

	req := v16.MeterValuesRequest{
		ConnectorId:  c.Id,
		MeterValue:   []v16.MeterValueEntry{entry},
	}
	if c.TransactionStarted {
		req.TransactionId = c.TransactionId
	}

	_, err := e.SendCall(v16.ActionMeterValues, req)
	return err
}

// startMeterValuesLoop starts the periodic MeterValues timer for a
// connector entering Charging; it is a no-op under OCPP 2.0.1, whose meter
// reporting rides TransactionEvent instead (out of scope here).
func (e *Engine) startMeterValuesLoop(c *Connector) {
	if e.Station.OcppVersion != OcppVersion16 {
		return
	}

	e.Station.mu.Lock()
	stopCh := make(chan struct{})
	c.meterStopCh = stopCh
	e.Station.mu.Unlock()

	go func() {
		ticker := time.NewTicker(defaultMeterValueSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if err := e.sendMeterValues(c); err != nil {
					e.log.Warn().Err(err).Int("connectorId", c.Id).Msg("MeterValues failed")
				}
			}
		}
	}()
}

func (e *Engine) stopMeterValuesLoop(c *Connector) {
	e.Station.mu.Lock()
	stopCh := c.meterStopCh
	c.meterStopCh = nil
	e.Station.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
}
