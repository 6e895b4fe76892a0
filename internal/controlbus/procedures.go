package controlbus

// Procedure names routed over the bus (spec.md §4.5). LIST_CHARGING_STATIONS
// is UIServer-local: it never fans out to a station.
const (
	ProcStartSimulator    = "START_SIMULATOR"
	ProcStopSimulator     = "STOP_SIMULATOR"
	ProcListChargingStations = "LIST_CHARGING_STATIONS"

	ProcStartChargingStation = "START_CHARGING_STATION"
	ProcStopChargingStation  = "STOP_CHARGING_STATION"
	ProcOpenConnection       = "OPEN_CONNECTION"
	ProcCloseConnection      = "CLOSE_CONNECTION"

	ProcStartTransaction = "START_TRANSACTION"
	ProcStopTransaction  = "STOP_TRANSACTION"

	ProcStartAutomaticTransactionGenerator = "START_AUTOMATIC_TRANSACTION_GENERATOR"
	ProcStopAutomaticTransactionGenerator  = "STOP_AUTOMATIC_TRANSACTION_GENERATOR"

	ProcSetSupervisionUrl = "SET_SUPERVISION_URL"

	ProcUpdateStatus                  = "UPDATE_STATUS"
	ProcUpdateFirmwareStatus          = "UPDATE_FIRMWARE_STATUS"
	ProcAuthorize                     = "AUTHORIZE"
	ProcBootNotification              = "BOOT_NOTIFICATION"
	ProcStatusNotification            = "STATUS_NOTIFICATION"
	ProcHeartbeat                     = "HEARTBEAT"
	ProcMeterValues                   = "METER_VALUES"
	ProcDataTransfer                  = "DATA_TRANSFER"
	ProcDiagnosticsStatusNotification = "DIAGNOSTICS_STATUS_NOTIFICATION"
	ProcFirmwareStatusNotification    = "FIRMWARE_STATUS_NOTIFICATION"
)

// LocalProcedures are handled by the UIServer itself, never fanned out to
// a station Bus.
var LocalProcedures = map[string]bool{
	ProcListChargingStations: true,
	ProcStartSimulator:       true,
	ProcStopSimulator:        true,
}
