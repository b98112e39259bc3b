package display

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how the pipeline recovers from them.
type Kind string

// Error kinds.
const (
	// KindValidation errors reject a request before anything is imported.
	KindValidation Kind = "validation"
	// KindResource errors reject a whole submission or frame without touching hardware.
	KindResource Kind = "resource"
	// KindHardwareTimeout errors put the pipeline into the degraded state.
	KindHardwareTimeout Kind = "hardware_timeout"
	// KindHardware errors abort the affected frame only.
	KindHardware Kind = "hardware"
	// KindBandwidth errors are advisory; the frame is still committed.
	KindBandwidth Kind = "bandwidth_admission"
	// KindPipeline errors report the pipeline is not accepting frames.
	KindPipeline Kind = "pipeline"
)

// Error codes.
const (
	ErrCodeInvalidGeometry     = "INVALID_GEOMETRY"
	ErrCodeUnsupportedFormat   = "UNSUPPORTED_FORMAT"
	ErrCodeAlignment           = "ALIGNMENT_VIOLATION"
	ErrCodeBlendingNotAllowed  = "BLENDING_NOT_ALLOWED"
	ErrCodeRowTooNarrow        = "ROW_TOO_NARROW"
	ErrCodeProtectedNotAllowed = "PROTECTED_NOT_ALLOWED"
	ErrCodeImportFailed        = "IMPORT_FAILED"
	ErrCodeUnitBusy            = "UNIT_BUSY"
	ErrCodeVsyncTimeout        = "VSYNC_TIMEOUT"
	ErrCodeAckTimeout          = "ACK_TIMEOUT"
	ErrCodeHardwareError       = "HARDWARE_ERROR"
	ErrCodeBandwidthAdmission  = "BANDWIDTH_ADMISSION"
	ErrCodePipelineDegraded    = "PIPELINE_DEGRADED"
	ErrCodePipelineStopped     = "PIPELINE_STOPPED"
)

var codeKinds = map[string]Kind{
	ErrCodeInvalidGeometry:     KindValidation,
	ErrCodeUnsupportedFormat:   KindValidation,
	ErrCodeAlignment:           KindValidation,
	ErrCodeBlendingNotAllowed:  KindValidation,
	ErrCodeRowTooNarrow:        KindValidation,
	ErrCodeProtectedNotAllowed: KindValidation,
	ErrCodeImportFailed:        KindResource,
	ErrCodeUnitBusy:            KindResource,
	ErrCodeVsyncTimeout:        KindHardwareTimeout,
	ErrCodeAckTimeout:          KindHardwareTimeout,
	ErrCodeHardwareError:       KindHardware,
	ErrCodeBandwidthAdmission:  KindBandwidth,
	ErrCodePipelineDegraded:    KindPipeline,
	ErrCodePipelineStopped:     KindPipeline,
}

// Error represents a display pipeline error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Window is the offending window index, or -1 when not window specific.
	Window int
	Cause  error
}

// NewError creates an error for code; the kind is derived from the code.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Kind:    codeKinds[code],
		Code:    code,
		Message: message,
		Window:  -1,
		Cause:   cause,
	}
}

// NewWindowError creates an error attributed to one window.
func NewWindowError(code string, window int, message string) *Error {
	e := NewError(code, message, nil)
	e.Window = window
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Window >= 0 {
		msg = fmt.Sprintf("window %d: %s", e.Window, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code string) bool {
	return e.Code == code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// KindForCode returns the kind an error with code would carry.
func KindForCode(code string) Kind {
	return codeKinds[code]
}
