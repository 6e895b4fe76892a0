package ocpp

import (
	"encoding/json"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// ActionHandler handles one incoming CALL action and returns the payload to
// carry back in a CALLRESULT. Returning an *ocpperror.Error instead causes
// Dispatch to send a CALLERROR with that error's Code/Description.
type ActionHandler func(payload json.RawMessage) (interface{}, *ocpperror.Error)

// Dispatcher routes incoming CALL actions to registered handlers and builds
// the matching CALLRESULT/CALLERROR frame, validating both directions
// against a Validator when one is supplied. This is the "capability set"
// replacement for the teacher's inheritance-based message classes
// (spec.md §9): each protocol version package registers its own action set
// without any shared base type.
type Dispatcher struct {
	validator *Validator
	handlers  map[string]ActionHandler
}

// NewDispatcher creates a Dispatcher. validator may be nil to skip schema
// validation entirely (e.g. in unit tests).
func NewDispatcher(validator *Validator) *Dispatcher {
	return &Dispatcher{validator: validator, handlers: make(map[string]ActionHandler)}
}

// Handle registers handler for action, overwriting any previous handler.
func (d *Dispatcher) Handle(action string, handler ActionHandler) {
	d.handlers[action] = handler
}

// Dispatch validates and invokes the handler registered for frame.Action,
// then marshals the result into a CALLRESULT or CALLERROR frame ready to
// send back over the wire. frame must be a MessageTypeCall frame.
func (d *Dispatcher) Dispatch(frame Frame) ([]byte, error) {
	if d.validator != nil {
		if err := d.validator.ValidateRequest(frame.Action, frame.Payload); err != nil {
			ocppErr, ok := err.(*ocpperror.Error)
			if !ok {
				ocppErr = ocpperror.Validation(err.Error(), err)
			}
			return BuildCallError(frame.ID, ocpperror.CodeFormationViolation, ocppErr.Description, nil)
		}
	}

	handler, ok := d.handlers[frame.Action]
	if !ok {
		return BuildCallError(frame.ID, ocpperror.CodeNotImplemented, "action "+frame.Action+" is not supported", nil)
	}

	result, ocppErr := handler(frame.Payload)
	if ocppErr != nil {
		return BuildCallError(frame.ID, codeForError(ocppErr), ocppErr.Description, nil)
	}

	if d.validator != nil {
		if raw, err := json.Marshal(result); err == nil {
			if verr := d.validator.ValidateResult(frame.Action, raw); verr != nil {
				return BuildCallError(frame.ID, ocpperror.CodeInternalError, "generated response failed schema validation", nil)
			}
		}
	}

	return BuildCallResult(frame.ID, result)
}

// codeForError maps an internal error Kind onto the nearest OCPP-J
// CALLERROR error code, per spec.md §7's error taxonomy.
func codeForError(err *ocpperror.Error) string {
	if err.Code != "" {
		return err.Code
	}
	switch err.Kind {
	case ocpperror.KindValidation:
		return ocpperror.CodeFormationViolation
	case ocpperror.KindSecurity:
		return ocpperror.CodeSecurityError
	case ocpperror.KindProtocol:
		return ocpperror.CodeProtocolError
	default:
		return ocpperror.CodeInternalError
	}
}
