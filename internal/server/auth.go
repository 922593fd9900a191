package server

import (
	"context"
	"fmt"
	"time"

	"parley/internal/cache"
	"parley/internal/middleware"
	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// generateToken creates a signed JWT for the user.
func (s *Server) generateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      fmt.Sprintf("%d", user.ID),
		"username": user.Username,
		"iss":      tokenIssuer,
		"aud":      tokenAudience,
		"exp":      now.Add(time.Hour * 24 * 7).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      generateJTI(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return signed, nil
}

// generateJTI creates a unique token identifier for revocation tracking.
func generateJTI() string {
	return fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}

func contextWithUserID(c *fiber.Ctx, userID uint) context.Context {
	return context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
}

func formatUserKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// IssueWSTicket mints a short-lived single-use ticket the browser passes as a
// query parameter on the websocket handshake, where headers are unavailable.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("realtime events unavailable")))
	}

	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthenticatedError("Authorization required"))
	}

	ticket := uuid.New().String()
	key := cache.WSTicketKey(ticket)
	if err := s.redis.Set(c.Context(), key, fmt.Sprintf("%d", userID), cache.WSTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// redeemWSTicket atomically consumes the ticket with GETDEL. The websocket
// upgrade runs the middleware chain more than once for the same request, so
// a ticket consumed moments ago by this process is still accepted from the
// in-memory cache.
func (s *Server) redeemWSTicket(ctx context.Context, ticket string) (uint, bool) {
	s.consumedTicketsMu.Lock()
	if entry, ok := s.consumedTickets[ticket]; ok {
		s.consumedTicketsMu.Unlock()
		return entry.userID, true
	}
	s.consumedTicketsMu.Unlock()

	if s.redis == nil {
		return 0, false
	}

	val, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil || val == "" {
		return 0, false
	}

	var userID uint
	if _, err := fmt.Sscanf(val, "%d", &userID); err != nil {
		return 0, false
	}

	s.consumedTicketsMu.Lock()
	s.consumedTickets[ticket] = consumedTicketEntry{userID: userID, consumeAt: time.Now()}
	s.pruneConsumedTicketsLocked()
	s.consumedTicketsMu.Unlock()

	return userID, true
}

// consumeWSTicket drops the handshake-window cache entry once the websocket
// connection is established (or abandoned).
func (s *Server) consumeWSTicket(ticket string) {
	if ticket == "" {
		return
	}
	s.consumedTicketsMu.Lock()
	delete(s.consumedTickets, ticket)
	s.consumedTicketsMu.Unlock()
}

// pruneConsumedTicketsLocked evicts stale handshake entries. Callers hold
// consumedTicketsMu.
func (s *Server) pruneConsumedTicketsLocked() {
	cutoff := time.Now().Add(-2 * cache.WSTicketTTL)
	for ticket, entry := range s.consumedTickets {
		if entry.consumeAt.Before(cutoff) {
			delete(s.consumedTickets, ticket)
		}
	}
}
