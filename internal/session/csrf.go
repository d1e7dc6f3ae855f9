package session

import "crypto/subtle"

// ValidCSRF compares a submitted token against the session's token in
// constant time.
func ValidCSRF(sess *Session, submitted string) bool {
	if sess == nil || submitted == "" {
		return false
	}
	expected := sess.CSRFToken()
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}
