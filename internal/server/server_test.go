package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:    "test-secret-key-for-jwt-signing",
		Port:         "0",
		Env:          "test",
		FeatureFlags: "realtime=on",
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.Chat{},
		&models.ChatMember{},
		&models.Message{},
	))
	return db
}

// newTestServer builds a server over in-memory stores with routes mounted.
func newTestServer(t *testing.T) (*Server, *fiber.App, *miniredis.Miniredis) {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, err := NewServerWithDeps(testConfig(), setupTestDB(t), rdb)
	require.NoError(t, err)

	app := fiber.New()
	srv.SetupRoutes(app)
	return srv, app, mr
}

// callOp performs one tagged operation and decodes the response body.
func callOp(t *testing.T, app *fiber.App, token, opName string, vars any) (int, map[string]json.RawMessage) {
	t.Helper()
	payload := map[string]any{"operationName": opName}
	if vars != nil {
		payload["variables"] = vars
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var envelope map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

// opData unwraps data.<opName> from a response envelope into dst.
func opData(t *testing.T, envelope map[string]json.RawMessage, opName string, dst any) {
	t.Helper()
	raw, ok := envelope["data"]
	require.True(t, ok, "response has no data: %s", envelope["errors"])
	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &data))
	require.NoError(t, json.Unmarshal(data[opName], dst))
}

func opErrorCode(t *testing.T, envelope map[string]json.RawMessage) string {
	t.Helper()
	raw, ok := envelope["errors"]
	require.True(t, ok, "response has no errors: %s", envelope["data"])
	var errs []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	}
	require.NoError(t, json.Unmarshal(raw, &errs))
	require.NotEmpty(t, errs)
	return errs[0].Extensions.Code
}

// signupUser registers an account and returns its token and user payload.
func signupUser(t *testing.T, app *fiber.App, username string) (string, models.User) {
	t.Helper()
	status, envelope := callOp(t, app, "", "createUser", map[string]any{
		"username": username,
		"password": "SecurePass12!",
		"name":     username,
	})
	require.Equal(t, http.StatusOK, status)

	var auth struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	opData(t, envelope, "createUser", &auth)
	require.NotEmpty(t, auth.Token)
	return auth.Token, auth.User
}

func TestDispatch_UnknownOperation(t *testing.T) {
	_, app, _ := newTestServer(t)

	status, envelope := callOp(t, app, "", "selfDestruct", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeBadUserInput, opErrorCode(t, envelope))
}

func TestDispatch_MissingOperationName(t *testing.T) {
	_, app, _ := newTestServer(t)

	status, envelope := callOp(t, app, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeBadUserInput, opErrorCode(t, envelope))
}

func TestDispatch_ProtectedOperationRequiresAuth(t *testing.T) {
	_, app, _ := newTestServer(t)

	status, envelope := callOp(t, app, "", "me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.CodeUnauthenticated, opErrorCode(t, envelope))
}

func TestDispatch_RejectsGarbageToken(t *testing.T) {
	_, app, _ := newTestServer(t)

	status, envelope := callOp(t, app, "not-a-jwt", "me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.CodeUnauthenticated, opErrorCode(t, envelope))
}

func TestCreateUserAndLogin(t *testing.T) {
	_, app, _ := newTestServer(t)

	token, user := signupUser(t, app, "alice")
	assert.Equal(t, "alice", user.Username)

	t.Run("Token works against protected operations", func(t *testing.T) {
		status, envelope := callOp(t, app, token, "me", nil)
		require.Equal(t, http.StatusOK, status)
		var me models.User
		opData(t, envelope, "me", &me)
		assert.Equal(t, user.ID, me.ID)
	})

	t.Run("Login returns fresh token", func(t *testing.T) {
		status, envelope := callOp(t, app, "", "login", map[string]any{
			"username": "alice",
			"password": "SecurePass12!",
		})
		require.Equal(t, http.StatusOK, status)
		var auth struct {
			Token string      `json:"token"`
			User  models.User `json:"user"`
		}
		opData(t, envelope, "login", &auth)
		assert.NotEmpty(t, auth.Token)
		assert.Equal(t, user.ID, auth.User.ID)
	})

	t.Run("Wrong password", func(t *testing.T) {
		status, envelope := callOp(t, app, "", "login", map[string]any{
			"username": "alice",
			"password": "WrongPass12!",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeBadUserInput, opErrorCode(t, envelope))
	})

	t.Run("Duplicate username", func(t *testing.T) {
		status, envelope := callOp(t, app, "", "createUser", map[string]any{
			"username": "alice",
			"password": "SecurePass12!",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeBadUserInput, opErrorCode(t, envelope))
	})
}

func TestContactFlow(t *testing.T) {
	_, app, _ := newTestServer(t)

	aliceToken, _ := signupUser(t, app, "alice")
	_, bob := signupUser(t, app, "bob")

	var contact models.Contact

	t.Run("addContact", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "addContact", map[string]any{"userId": bob.ID})
		require.Equal(t, http.StatusOK, status)
		opData(t, envelope, "addContact", &contact)
		assert.Equal(t, bob.ID, contact.ContactID)
	})

	t.Run("Duplicate addContact", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "addContact", map[string]any{"userId": bob.ID})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeBadUserInput, opErrorCode(t, envelope))
	})

	t.Run("allContactsByUser", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "allContactsByUser", nil)
		require.Equal(t, http.StatusOK, status)
		var contacts []models.Contact
		opData(t, envelope, "allContactsByUser", &contacts)
		assert.Len(t, contacts, 1)
	})

	t.Run("toggleBlockContact", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "toggleBlockContact", map[string]any{"contactId": contact.ID})
		require.Equal(t, http.StatusOK, status)
		var blocked models.Contact
		opData(t, envelope, "toggleBlockContact", &blocked)
		assert.True(t, blocked.IsBlocked)
	})

	t.Run("removeContact", func(t *testing.T) {
		status, _ := callOp(t, app, aliceToken, "removeContact", map[string]any{"contactId": contact.ID})
		require.Equal(t, http.StatusOK, status)

		status, envelope := callOp(t, app, aliceToken, "findContactById", map[string]any{"contactId": contact.ID})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, models.CodeNotFound, opErrorCode(t, envelope))
	})
}

func TestChatFlow(t *testing.T) {
	_, app, _ := newTestServer(t)

	aliceToken, alice := signupUser(t, app, "alice")
	bobToken, bob := signupUser(t, app, "bob")

	var chat models.Chat

	t.Run("createChat infers private type", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "createChat", map[string]any{
			"memberIds":      []uint{bob.ID},
			"initialMessage": "Hello bob",
		})
		require.Equal(t, http.StatusOK, status)
		opData(t, envelope, "createChat", &chat)
		assert.Equal(t, models.ChatTypePrivate, chat.Type)
		assert.Len(t, chat.Members, 2)
	})

	t.Run("Members see the chat, outsiders do not", func(t *testing.T) {
		status, _ := callOp(t, app, bobToken, "findChatById", map[string]any{"chatId": chat.ID})
		assert.Equal(t, http.StatusOK, status)

		carolToken, _ := signupUser(t, app, "carol")
		status, envelope := callOp(t, app, carolToken, "findChatById", map[string]any{"chatId": chat.ID})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, models.CodeNotFound, opErrorCode(t, envelope))
	})

	t.Run("sendMessage bumps recipient unread", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "sendMessage", map[string]any{
			"chatId":  chat.ID,
			"content": "How are you?",
		})
		require.Equal(t, http.StatusOK, status)
		var msg models.Message
		opData(t, envelope, "sendMessage", &msg)
		assert.Equal(t, alice.ID, msg.SenderID)

		status, envelope = callOp(t, app, bobToken, "allChatsByUser", nil)
		require.Equal(t, http.StatusOK, status)
		var chats []models.Chat
		opData(t, envelope, "allChatsByUser", &chats)
		require.Len(t, chats, 1)
		for _, m := range chats[0].Members {
			if m.UserID == bob.ID {
				assert.Equal(t, 2, m.UnreadCount)
			}
		}
	})

	t.Run("markChatAsRead clears unread", func(t *testing.T) {
		status, _ := callOp(t, app, bobToken, "markChatAsRead", map[string]any{"chatId": chat.ID})
		require.Equal(t, http.StatusOK, status)

		status, envelope := callOp(t, app, bobToken, "findChatById", map[string]any{"chatId": chat.ID})
		require.Equal(t, http.StatusOK, status)
		var fresh models.Chat
		opData(t, envelope, "findChatById", &fresh)
		for _, m := range fresh.Members {
			if m.UserID == bob.ID {
				assert.Zero(t, m.UnreadCount)
			}
		}
	})

	t.Run("Empty message content", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "sendMessage", map[string]any{
			"chatId":  chat.ID,
			"content": "   ",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeValidation, opErrorCode(t, envelope))
	})

	t.Run("findPrivateChatWithContact", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "findPrivateChatWithContact", map[string]any{"userId": bob.ID})
		require.Equal(t, http.StatusOK, status)
		var found *models.Chat
		opData(t, envelope, "findPrivateChatWithContact", &found)
		require.NotNil(t, found)
		assert.Equal(t, chat.ID, found.ID)
	})

	t.Run("deleteChat by non-creator hides existence", func(t *testing.T) {
		status, envelope := callOp(t, app, bobToken, "deleteChat", map[string]any{"chatId": chat.ID})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, models.CodeNotFound, opErrorCode(t, envelope))
	})

	t.Run("deleteChat by creator", func(t *testing.T) {
		status, _ := callOp(t, app, aliceToken, "deleteChat", map[string]any{"chatId": chat.ID})
		require.Equal(t, http.StatusOK, status)

		status, _ = callOp(t, app, aliceToken, "findChatById", map[string]any{"chatId": chat.ID})
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestGroupChatLifecycleOverHTTP(t *testing.T) {
	_, app, _ := newTestServer(t)

	aliceToken, _ := signupUser(t, app, "alice")
	bobToken, bob := signupUser(t, app, "bob")
	_, carol := signupUser(t, app, "carol")

	var chat models.Chat
	status, envelope := callOp(t, app, aliceToken, "createChat", map[string]any{
		"name":           "Weekend plans",
		"memberIds":      []uint{bob.ID, carol.ID},
		"initialMessage": "Who is in?",
	})
	require.Equal(t, http.StatusOK, status)
	opData(t, envelope, "createChat", &chat)
	require.Equal(t, models.ChatTypeGroup, chat.Type)

	t.Run("leaveChat removes the member", func(t *testing.T) {
		status, _ := callOp(t, app, bobToken, "leaveChat", map[string]any{"chatId": chat.ID})
		require.Equal(t, http.StatusOK, status)

		status, envelope := callOp(t, app, bobToken, "findChatById", map[string]any{"chatId": chat.ID})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, models.CodeNotFound, opErrorCode(t, envelope))
	})

	t.Run("editChat renames and re-adds", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "editChat", map[string]any{
			"chatId":    chat.ID,
			"name":      "Weekend crew",
			"memberIds": []uint{bob.ID, carol.ID},
		})
		require.Equal(t, http.StatusOK, status)
		var edited models.Chat
		opData(t, envelope, "editChat", &edited)
		assert.Equal(t, "Weekend crew", edited.Name)
		assert.Len(t, edited.Members, 3)
	})

	t.Run("countDocuments reflects activity", func(t *testing.T) {
		status, envelope := callOp(t, app, aliceToken, "countDocuments", nil)
		require.Equal(t, http.StatusOK, status)
		var counts struct {
			Users int64 `json:"users"`
			Chats int64 `json:"chats"`
		}
		opData(t, envelope, "countDocuments", &counts)
		assert.Equal(t, int64(3), counts.Users)
		assert.Equal(t, int64(1), counts.Chats)
	})
}

func TestHealthEndpoints(t *testing.T) {
	_, app, mr := newTestServer(t)

	t.Run("Liveness", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Readiness healthy", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Readiness degrades when redis is down", func(t *testing.T) {
		mr.Close()
		// The redis client retries the refused dial with backoff for just
		// over a second; the handler allows up to 5s, so give the harness
		// headroom beyond app.Test's 1s default.
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), 10000)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestWSTicketLifecycle(t *testing.T) {
	srv, app, mr := newTestServer(t)

	token, user := signupUser(t, app, "alice")

	issueTicket := func(t *testing.T) string {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/ws/ticket", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Ticket string `json:"ticket"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotEmpty(t, body.Ticket)
		return body.Ticket
	}

	t.Run("Issued ticket lands in redis with TTL", func(t *testing.T) {
		ticket := issueTicket(t)
		val, err := mr.Get(cache.WSTicketKey(ticket))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%d", user.ID), val)
		assert.Positive(t, mr.TTL(cache.WSTicketKey(ticket)))
	})

	t.Run("Redeem consumes the redis key", func(t *testing.T) {
		ticket := issueTicket(t)
		gotID, ok := srv.redeemWSTicket(t.Context(), ticket)
		require.True(t, ok)
		assert.Equal(t, user.ID, gotID)
		assert.False(t, mr.Exists(cache.WSTicketKey(ticket)))
	})

	t.Run("Handshake window re-redeems from in-process cache", func(t *testing.T) {
		ticket := issueTicket(t)
		_, ok := srv.redeemWSTicket(t.Context(), ticket)
		require.True(t, ok)

		gotID, ok := srv.redeemWSTicket(t.Context(), ticket)
		require.True(t, ok)
		assert.Equal(t, user.ID, gotID)

		srv.consumeWSTicket(ticket)
		_, ok = srv.redeemWSTicket(t.Context(), ticket)
		assert.False(t, ok, "ticket must be single-use once the handshake completes")
	})

	t.Run("Unknown ticket is rejected", func(t *testing.T) {
		_, ok := srv.redeemWSTicket(t.Context(), "no-such-ticket")
		assert.False(t, ok)
	})

	t.Run("Ticket issuance requires auth", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/ws/ticket", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestGenerateToken_Claims(t *testing.T) {
	srv, app, _ := newTestServer(t)
	_, user := signupUser(t, app, "alice")

	token, err := srv.generateToken(&user)
	require.NoError(t, err)

	app2 := fiber.New()
	app2.Get("/whoami", srv.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals("userID")})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app2.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(user.ID), body["id"])
}
