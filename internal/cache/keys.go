package cache

import (
	"fmt"
	"time"
)

const (
	wsTicketKeyPrefix  = "ws_ticket:%s"
	blacklistKeyPrefix = "blacklist:%s"
	rateLimitKeyPrefix = "rate_limit:%s:%s"
)

const (
	// WSTicketTTL bounds the window between ticket issuance and the
	// websocket handshake that redeems it.
	WSTicketTTL = 30 * time.Second
)

// WSTicketKey is the key holding a pending single-use websocket ticket.
func WSTicketKey(ticket string) string {
	return fmt.Sprintf(wsTicketKeyPrefix, ticket)
}

// BlacklistKey is the key marking a revoked JWT by its jti claim.
func BlacklistKey(jti string) string {
	return fmt.Sprintf(blacklistKeyPrefix, jti)
}

// RateLimitKey is the counter key for one principal against one resource.
func RateLimitKey(resource, id string) string {
	return fmt.Sprintf(rateLimitKeyPrefix, resource, id)
}
