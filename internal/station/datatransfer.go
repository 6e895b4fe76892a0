package station

import (
	"encoding/json"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// licensePlateReport is the vendor payload carried by the "LicensePlate"
// DataTransfer vendorId, preserved from the teacher's EV-identification
// use case as a worked example of vendor-extension DataTransfer.
type licensePlateReport struct {
	LicensePlate string `json:"licensePlate"`
	ConnectorId  int    `json:"connectorId"`
}

// SendDataTransfer issues a vendor-scoped DataTransfer request and returns
// the server's status string.
func (e *Engine) SendDataTransfer(vendorId, messageId string, data interface{}) (string, error) {
	if e.Station.OcppVersion != OcppVersion16 {
		return "", ocpperror.State("DataTransfer is only implemented for OCPP 1.6")
	}

	payload := ""
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return "", ocpperror.Protocol("failed to marshal DataTransfer payload", err)
		}
		payload = string(raw)
	}

	raw, err := e.SendCall(v16.ActionDataTransfer, v16.DataTransferRequest{
		VendorId:  vendorId,
		MessageId: messageId,
		Data:      payload,
	})
	if err != nil {
		return "", err
	}

	var resp v16.DataTransferResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", ocpperror.Protocol("failed to parse DataTransfer response", err)
	}
	return resp.Status, nil
}

// ReportLicensePlate sends the connector's recognized license plate as a
// DataTransfer under the "LicensePlate" vendorId.
func (e *Engine) ReportLicensePlate(connectorId int, licensePlate string) (string, error) {
	return e.SendDataTransfer("LicensePlate", "EVLicensePlate", licensePlateReport{
		LicensePlate: licensePlate,
		ConnectorId:  connectorId,
	})
}

// HandleDataTransfer is the server-to-station DataTransfer handler,
// registered in the dispatcher for stations that accept inbound vendor
// messages; the simulator has no vendor extension to act on, so it
// reports UnknownVendorId for anything unrecognized.
func (e *Engine) HandleDataTransfer(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.DataTransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed DataTransfer", err)
	}
	return v16.DataTransferResponse{Status: "UnknownVendorId"}, nil
}
