package protocol

import "fmt"

// PacketType is the advisory message kind stored in the type field. It tells
// the reader which payload accessors make sense but is never enforced against
// the payload bytes.
type PacketType int32

const (
	TypeMeasurement PacketType = iota
	TypeAlertFrequency
	TypeAlertVoltage
	TypeAlertDevice
)

// ParsePacketType maps a wire code to a known PacketType. Codes outside the
// enumeration report false rather than an error.
func ParsePacketType(code int32) (PacketType, bool) {
	switch t := PacketType(code); t {
	case TypeMeasurement, TypeAlertFrequency, TypeAlertVoltage, TypeAlertDevice:
		return t, true
	default:
		return 0, false
	}
}

// IsAlert reports whether packets of this type carry an alert payload.
func (t PacketType) IsAlert() bool {
	return t == TypeAlertFrequency || t == TypeAlertVoltage || t == TypeAlertDevice
}

func (t PacketType) String() string {
	switch t {
	case TypeMeasurement:
		return "measurement"
	case TypeAlertFrequency:
		return "alert_frequency"
	case TypeAlertVoltage:
		return "alert_voltage"
	case TypeAlertDevice:
		return "alert_device"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}
