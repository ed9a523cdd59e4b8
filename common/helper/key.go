package helper

// MaskAPIKey returns a masked form of an API key suitable for logging:
// the first 6 and last 4 characters with "..." between. Short keys are
// fully masked so a log line never reconstructs them.
func MaskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
