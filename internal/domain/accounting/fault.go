package accounting

import (
	"errors"
	"fmt"
	"strings"
)

// Fault is an error reported by the accounting backend itself (as opposed to
// a transport failure reaching it).
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("accounting fault %d: %s", f.Code, f.Message)
}

// benignFaultMarkers are fault texts the XML-RPC endpoint produces after an
// action already succeeded: the action returns None and the server then fails
// to serialize it.
var benignFaultMarkers = []string{
	"cannot marshal none",
}

// IsBenignActionFault reports whether err is a fault raised while encoding an
// empty action result.
func IsBenignActionFault(err error) bool {
	var fault *Fault
	if !errors.As(err, &fault) {
		return false
	}
	msg := strings.ToLower(fault.Message)
	for _, marker := range benignFaultMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ClassifyActionResult maps the result of a state-changing action (posting a
// payment, reconciling lines) to the error the caller should act on. Only use
// it at those call sites; elsewhere the same fault is a real failure.
func ClassifyActionResult(err error) error {
	if err == nil || IsBenignActionFault(err) {
		return nil
	}
	return err
}
