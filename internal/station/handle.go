package station

import (
	"encoding/json"
	"fmt"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/controlbus"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
)

// HashId implements controlbus.Station.
func (e *Engine) HashId() string {
	return e.Station.HashId
}

// connectorArgs covers every control-plane procedure that targets one
// connector by id, with the extra fields each specific procedure needs.
type connectorArgs struct {
	ConnectorId             int    `json:"connectorId"`
	IdTag                   string `json:"idTag"`
	TransactionId           int    `json:"transactionId"`
	Reason                  string `json:"reason"`
	Status                  string `json:"status"`
	ErrorCode               string `json:"errorCode"`
	BeginEndMeterValues     bool   `json:"beginEndMeterValues"`
	AuthorizeRemoteTx       bool   `json:"authorizeRemoteTxRequests"`
	PowerSharedByConnectors bool   `json:"powerSharedByConnectors"`
	OutOfOrderEndMeterValues bool  `json:"outOfOrderEndMeterValues"`
	StrictCompliance        bool  `json:"strictCompliance"`
}

type dataTransferArgs struct {
	VendorId  string      `json:"vendorId"`
	MessageId string      `json:"messageId"`
	Data      interface{} `json:"data"`
}

type supervisionUrlArgs struct {
	Url string `json:"url"`
}

type atgArgs struct {
	ConnectorIds []int `json:"connectorIds"`
}

func decodeArgs(payload interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal control-plane payload: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode control-plane payload: %w", err)
	}
	return nil
}

// Handle implements controlbus.Station: it routes one fanned-out procedure
// call to the matching StationEngine operation (spec.md §4.5's procedure
// list). Field names on each procedure's payload are this implementation's
// own choice (the spec names procedures, not wire field names): connectorId,
// idTag, transactionId, reason, status, errorCode, vendorId/messageId/data.
func (e *Engine) Handle(procedure string, payload interface{}) (interface{}, error) {
	switch procedure {
	case controlbus.ProcStartChargingStation:
		return nil, e.Start()

	case controlbus.ProcStopChargingStation:
		e.Stop()
		return nil, nil

	case controlbus.ProcOpenConnection:
		return nil, e.openConnection()

	case controlbus.ProcCloseConnection:
		e.closeConnection()
		return nil, nil

	case controlbus.ProcStartTransaction:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		return nil, e.StartTransaction(a.ConnectorId, a.IdTag, a.BeginEndMeterValues, a.AuthorizeRemoteTx, a.PowerSharedByConnectors)

	case controlbus.ProcStopTransaction:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		if a.Reason == "" {
			a.Reason = "Local"
		}
		return nil, e.StopTransaction(a.ConnectorId, a.Reason, a.BeginEndMeterValues, a.StrictCompliance, a.OutOfOrderEndMeterValues, a.PowerSharedByConnectors)

	case controlbus.ProcAuthorize:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		accepted, err := e.Authorize(a.IdTag)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"accepted": accepted}, nil

	case controlbus.ProcUpdateStatus:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		errorCode := a.ErrorCode
		if errorCode == "" {
			errorCode = "NoError"
		}
		return nil, e.SetConnectorStatus(a.ConnectorId, a.Status, errorCode)

	case controlbus.ProcUpdateFirmwareStatus:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		return nil, e.SendFirmwareStatusNotification(a.Status)

	case controlbus.ProcDataTransfer:
		var a dataTransferArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		id, err := e.SendDataTransfer(a.VendorId, a.MessageId, a.Data)
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": id}, nil

	case controlbus.ProcStartAutomaticTransactionGenerator:
		var a atgArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		e.StartATG(a.ConnectorIds)
		return nil, nil

	case controlbus.ProcStopAutomaticTransactionGenerator:
		var a atgArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		e.StopATG(a.ConnectorIds)
		return nil, nil

	case controlbus.ProcSetSupervisionUrl:
		var a supervisionUrlArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		e.Station.mu.Lock()
		e.Station.SupervisionUrl = a.Url
		e.Station.mu.Unlock()
		return nil, nil

	case controlbus.ProcBootNotification:
		status, _, err := e.bootNotification()
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": status}, nil

	case controlbus.ProcStatusNotification:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		errorCode := a.ErrorCode
		if errorCode == "" {
			errorCode = "NoError"
		}
		return nil, e.SendStatusNotification(a.ConnectorId, a.Status, errorCode)

	case controlbus.ProcHeartbeat:
		currentTime, err := e.sendHeartbeat()
		if err != nil {
			return nil, err
		}
		return map[string]string{"currentTime": currentTime}, nil

	case controlbus.ProcMeterValues:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		c, ok := e.Station.ConnectorByID(a.ConnectorId)
		if !ok {
			return nil, fmt.Errorf("unknown connector %d", a.ConnectorId)
		}
		return nil, e.sendMeterValues(c)

	case controlbus.ProcDiagnosticsStatusNotification:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		_, err := e.SendCall(v16.ActionDiagnosticsStatusNotification, v16.DiagnosticsStatusNotificationRequest{Status: a.Status})
		return nil, err

	case controlbus.ProcFirmwareStatusNotification:
		var a connectorArgs
		if err := decodeArgs(payload, &a); err != nil {
			return nil, err
		}
		return nil, e.SendFirmwareStatusNotification(a.Status)

	default:
		return nil, fmt.Errorf("unsupported control-plane procedure %q", procedure)
	}
}
