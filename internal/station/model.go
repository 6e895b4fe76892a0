// Package station implements StationEngine: the per-station actor that
// owns the WebSocket connection, request cache, connector/EVSE state, ATG
// handle, and OCPP services (spec.md §2, §3, §4.1). Grounded on the
// teacher's charger.go/boot.go/heartbeat.go/status.go/meter.go/transaction.go/remote.go,
// generalized from one hard-coded connector per station to the full
// Connector/EVSE model and from a single protocol version per binary to a
// per-station OcppVersion switch.
package station

import (
	"sync"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
)

// OcppVersion selects which protocol module a Station speaks.
type OcppVersion string

const (
	OcppVersion16  OcppVersion = "1.6"
	OcppVersion201 OcppVersion = "2.0.1"
)

// CurrentOutType is the station's electrical output type.
type CurrentOutType string

const (
	CurrentOutAC CurrentOutType = "AC"
	CurrentOutDC CurrentOutType = "DC"
)

// ConnectorAvailability mirrors OCPP's Operative/Inoperative flag,
// independent of the richer Status vocabulary.
type ConnectorAvailability string

const (
	AvailabilityOperative   ConnectorAvailability = "Operative"
	AvailabilityInoperative ConnectorAvailability = "Inoperative"
)

// Reservation is a pending connector hold (spec.md §3).
type Reservation struct {
	Id                int
	ConnectorId       int
	IdTag             string
	ParentIdTag       string
	ExpiryDate        time.Time
	ReservationStatus string
}

// ChargingProfile is stored verbatim; its shape differs by protocol
// version, so the connector holds it as an opaque value set by the
// version-specific incoming handler.
type ChargingProfile struct {
	ChargingProfileId int
	StackLevel        int
	Purpose           string
	Raw               interface{}
}

// Connector is one physical connector (index 0 is the station-global
// pseudo-connector used for station-wide operations).
type Connector struct {
	Id           int
	Availability ConnectorAvailability
	Status       string // protocol-version-specific status string
	ErrorCode    string

	TransactionStarted    bool
	TransactionId         int
	TransactionIdTag      string
	TransactionStart      time.Time

	EnergyActiveImportRegisterValue            float64 // Wh, cumulative
	TransactionEnergyActiveImportRegisterValue float64 // Wh, since transaction start

	AuthorizeIdTag        string
	IdTagAuthorized       bool
	LocalAuthorizeIdTag   string
	IdTagLocalAuthorized  bool

	Reservation      *Reservation
	ChargingProfiles []ChargingProfile

	meterStopCh chan struct{}
}

// EVSE groups connectors under the 2.0 topology.
type EVSE struct {
	Id           int
	Availability ConnectorAvailability
	Connectors   map[int]*Connector
}

// BootNotificationResponse is the registration gate: nil until a boot
// response is received; non-nil afterwards, regardless of status.
type BootNotificationResponse struct {
	Status      string
	CurrentTime string
	Interval    int
}

// Station is the per-station data model (spec.md §3). StationEngine wraps
// one Station and serializes all mutation through its owning goroutine;
// see engine.go.
type Station struct {
	mu sync.RWMutex

	HashId            string
	ChargingStationId string
	Index             int
	OcppVersion       OcppVersion

	MaximumPower    float64 // W
	MaximumAmperage float64 // A
	VoltageOut      float64
	NumberOfPhases  int
	CurrentOutType  CurrentOutType
	PowerDivider    int
	PowerUnit       string // "W" (default) or "kW"

	Started  bool
	Starting bool
	Stopping bool

	BootNotificationResponse *BootNotificationResponse
	HeartbeatInterval        int
	FirmwareStatus           string

	Connectors map[int]*Connector // mutually exclusive with Evses
	Evses      map[int]*EVSE

	ConfigurationKeys *ocppconfig.Store

	SupervisionUrl string
}

// IsAccepted reports whether the station's boot handshake completed with
// status Accepted, the only state in which non-boot OCPP requests may be
// issued (spec.md §3 invariant).
func (s *Station) IsAccepted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BootNotificationResponse != nil && s.BootNotificationResponse.Status == "Accepted"
}

// ConnectorByID returns the connector (flat topology) or, for the EVSE
// topology, the first connector under any EVSE matching id; it never
// returns results from both.
func (s *Station) ConnectorByID(id int) (*Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Connectors != nil {
		c, ok := s.Connectors[id]
		return c, ok
	}
	for _, evse := range s.Evses {
		if c, ok := evse.Connectors[id]; ok {
			return c, ok
		}
	}
	return nil, false
}

// AllConnectors returns every connector, flattening the EVSE topology if
// in use.
func (s *Station) AllConnectors() []*Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Connector
	if s.Connectors != nil {
		for _, c := range s.Connectors {
			out = append(out, c)
		}
		return out
	}
	for _, evse := range s.Evses {
		for _, c := range evse.Connectors {
			out = append(out, c)
		}
	}
	return out
}

// RunningTransactions counts connectors with an active transaction,
// used to recompute PowerDivider under powerSharedByConnectors.
func (s *Station) RunningTransactions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	consider := func(c *Connector) {
		if c.TransactionStarted {
			count++
		}
	}
	if s.Connectors != nil {
		for _, c := range s.Connectors {
			consider(c)
		}
	} else {
		for _, evse := range s.Evses {
			for _, c := range evse.Connectors {
				consider(c)
			}
		}
	}
	return count
}
