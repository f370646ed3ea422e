package core

// ParseKeyFormat maps a format literal to a KeyFormat. Unrecognized literals
// fall back to RSA_PEM and report ok=false.
func ParseKeyFormat(s string) (format KeyFormat, ok bool) {
	switch KeyFormat(s) {
	case KeyFormatRSAPEM, KeyFormatRSAX509PEM, KeyFormatES256PEM, KeyFormatES256X509PEM:
		return KeyFormat(s), true
	default:
		return KeyFormatRSAPEM, false
	}
}
