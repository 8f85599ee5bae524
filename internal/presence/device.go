package presence

import (
	"regexp"

	"chat-engine/internal/models"
)

// Tablet patterns are tried first: tablet identification strings often
// contain mobile markers too.
var (
	tabletPattern = regexp.MustCompile(`(?i)ipad|tablet|playbook|silk|kindle`)
	mobilePattern = regexp.MustCompile(`(?i)mobile|iphone|ipod|android|blackberry|windows phone|opera mini`)
)

// DetectDevice classifies an environment identification string into a
// device class. Pure and deterministic.
func DetectDevice(userAgent string) string {
	switch {
	case tabletPattern.MatchString(userAgent):
		return models.DeviceTablet
	case mobilePattern.MatchString(userAgent):
		return models.DeviceMobile
	default:
		return models.DeviceDesktop
	}
}
