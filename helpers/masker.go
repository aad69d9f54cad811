package helpers

import "strings"

// MaskSensitive redacts the value of "<label>: <value>" lines whose label
// matches one of sensitiveLabels (case-insensitive). Other lines are
// returned unchanged. Used to keep passwords out of debug traces.
func MaskSensitive(line string, sensitiveLabels ...string) string {
	label, _, found := strings.Cut(line, ":")
	if !found {
		return line
	}
	label = strings.TrimSpace(label)
	for _, l := range sensitiveLabels {
		if strings.EqualFold(label, l) {
			return label + ": [REDACTED]"
		}
	}
	return line
}
