package summary

import "time"

// A transient message shown above the table, dismissed automatically at ExpiresAt.
type Banner struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Must hold lock.
func (session *Session) showBanner(message string) {
	session.banner = &Banner{Message: message, ExpiresAt: session.now().Add(session.bannerDuration)}
}

// Returns the banner unless it has expired. Must hold lock.
func (session *Session) activeBanner() *Banner {
	if session.banner == nil {
		return nil
	}
	if !session.now().Before(session.banner.ExpiresAt) {
		session.banner = nil
		return nil
	}

	banner := *session.banner
	return &banner
}
