package serialmux

import "strings"

// LineType is the coarse classification of a line read from a device.
type LineType string

const (
	LineTypePacket     LineType = "packet"
	LineTypeDiagnostic LineType = "diagnostic"
	LineTypeEmpty      LineType = "empty"
	LineTypeUnknown    LineType = "unknown"
)

// ClassifyLine inspects one line from the link. Packets travel as a single
// base64 string; devices also print '#'-prefixed diagnostics on the same
// port. Whether a packet-shaped line actually decodes is left to the caller.
func ClassifyLine(line string) LineType {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineTypeEmpty
	case strings.HasPrefix(line, "#"):
		return LineTypeDiagnostic
	case isBase64Text(line):
		return LineTypePacket
	default:
		return LineTypeUnknown
	}
}

func isBase64Text(s string) bool {
	if len(s)%4 != 0 {
		return false
	}
	trimmed := strings.TrimRight(s, "=")
	if len(s)-len(trimmed) > 2 {
		return false
	}
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/':
		default:
			return false
		}
	}
	return true
}
