package station

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/template"
)

// BuildStation materializes a Station from a parsed template, the station's
// 1-based index within that template, and its resolved identity/supervision
// URL (spec.md §3 Initialization, steps 3-5: materialize connectors/evses,
// compute derived electrical values, install default OCPP keys). If
// persisted is non-nil and its TemplateHash matches templateHash, its keys
// overlay the template-derived defaults (step 2); otherwise the freshly
// materialized defaults are used, per step 3's "template config changed ⇒
// rebuild".
func BuildStation(tpl *template.Template, index int, hashId, chargingStationId, supervisionUrl, templateHash string, persisted *PersistedConfig) (*Station, error) {
	version := OcppVersion16
	if tpl.OcppVersion == string(OcppVersion201) {
		version = OcppVersion201
	}

	st := &Station{
		HashId:            hashId,
		ChargingStationId: chargingStationId,
		Index:             index,
		OcppVersion:       version,
		CurrentOutType:    CurrentOutAC,
		NumberOfPhases:    3,
		VoltageOut:        tpl.VoltageOut,
		PowerUnit:         tpl.PowerUnit,
		SupervisionUrl:    supervisionUrl,
		ConfigurationKeys: ocppconfig.New(true),
	}
	if tpl.CurrentOutType == string(CurrentOutDC) {
		st.CurrentOutType = CurrentOutDC
	}
	if tpl.NumberOfPhases > 0 {
		st.NumberOfPhases = tpl.NumberOfPhases
	}
	if st.VoltageOut == 0 {
		st.VoltageOut = 230
	}

	power, err := parsePower(tpl.Power)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", chargingStationId, err)
	}

	numberOfConnectors := 0
	if len(tpl.Evses) > 0 {
		st.Evses = buildEvses(tpl.Evses)
		for _, evse := range st.Evses {
			numberOfConnectors += len(evse.Connectors)
		}
		st.PowerDivider = len(st.Evses)
	} else {
		st.Connectors = buildConnectors(tpl.Connectors)
		numberOfConnectors = len(st.Connectors)
		st.PowerDivider = numberOfConnectors
	}
	if st.PowerDivider == 0 {
		st.PowerDivider = 1
	}

	st.MaximumPower = power
	if st.VoltageOut > 0 {
		st.MaximumAmperage = power / st.VoltageOut
	}

	installDefaultKeys(st.ConfigurationKeys, numberOfConnectors, true)
	for k, v := range tpl.Configuration {
		st.ConfigurationKeys.Set(ocppconfig.Key{Key: k, Value: v, Visible: true}, true)
	}
	if tpl.SupervisionUrlOcppConfiguration && tpl.SupervisionUrlOcppKey != "" && supervisionUrl != "" {
		st.ConfigurationKeys.Set(ocppconfig.Key{Key: tpl.SupervisionUrlOcppKey, Value: supervisionUrl, Visible: true}, true)
	}

	applyPersistedConfig(st, persisted, templateHash)

	return st, nil
}

// parsePower accepts the template's power field as either a single number
// (the station's total maximum power) or an array (summed to a total,
// the per-connector/per-phase breakdown is not otherwise consumed).
func parsePower(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var single float64
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}

	var multi []float64
	if err := json.Unmarshal(raw, &multi); err == nil {
		total := 0.0
		for _, p := range multi {
			total += p
		}
		return total, nil
	}

	return 0, fmt.Errorf("power field is neither a number nor an array of numbers")
}

func buildConnectors(tplConnectors map[string]template.ConnectorTemplate) map[int]*Connector {
	if len(tplConnectors) == 0 {
		return map[int]*Connector{1: newConnector(1, template.ConnectorTemplate{})}
	}
	out := make(map[int]*Connector, len(tplConnectors))
	for key, ct := range tplConnectors {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[id] = newConnector(id, ct)
	}
	return out
}

func buildEvses(tplEvses map[string]template.EVSETemplate) map[int]*EVSE {
	out := make(map[int]*EVSE, len(tplEvses))
	for key, et := range tplEvses {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		evse := &EVSE{Id: id, Availability: AvailabilityOperative, Connectors: make(map[int]*Connector, len(et.Connectors))}
		for ckey, ct := range et.Connectors {
			cid, err := strconv.Atoi(ckey)
			if err != nil {
				continue
			}
			evse.Connectors[cid] = newConnector(cid, ct)
		}
		out[id] = evse
	}
	return out
}

func newConnector(id int, ct template.ConnectorTemplate) *Connector {
	status := ct.Status
	if status == "" {
		status = "Available"
	}
	errorCode := ct.ErrorCode
	if errorCode == "" {
		errorCode = "NoError"
	}
	return &Connector{
		Id:           id,
		Availability: AvailabilityOperative,
		Status:       status,
		ErrorCode:    errorCode,
	}
}
