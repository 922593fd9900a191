package server

import (
	"encoding/json"
	"strings"
	"time"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// operationRequest is the wire shape of a tagged operation call.
type operationRequest struct {
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

type operationHandler func(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error)

// operation binds a handler to its auth and rate-limit policy. Public
// operations dispatch without a caller identity.
type operation struct {
	handler   operationHandler
	public    bool
	rateLimit int
	rateWin   time.Duration
}

// authPayload is the response shape of createUser and login.
type authPayload struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *Server) buildOperations() map[string]operation {
	return map[string]operation{
		// Public operations
		"createUser": {handler: s.opCreateUser, public: true, rateLimit: 5, rateWin: time.Hour},
		"login":      {handler: s.opLogin, public: true, rateLimit: 10, rateWin: 15 * time.Minute},

		// User queries and mutations
		"me":             {handler: s.opMe},
		"findUserById":   {handler: s.opFindUserByID},
		"editProfile":    {handler: s.opEditProfile},
		"changePassword": {handler: s.opChangePassword},

		// Contact operations
		"findContactById":            {handler: s.opFindContactByID},
		"findContactByUserId":        {handler: s.opFindContactByUserID},
		"allContactsByUser":          {handler: s.opAllContactsByUser},
		"contactsWithoutPrivateChat": {handler: s.opContactsWithoutPrivateChat},
		"isBlockedByUser":            {handler: s.opIsBlockedByUser},
		"addContact":                 {handler: s.opAddContact},
		"addContacts":                {handler: s.opAddContacts},
		"removeContact":              {handler: s.opRemoveContact},
		"toggleBlockContact":         {handler: s.opToggleBlockContact},

		// Chat operations
		"allChatsByUser":             {handler: s.opAllChatsByUser},
		"findChatById":               {handler: s.opFindChatByID},
		"findPrivateChatWithContact": {handler: s.opFindPrivateChatWithContact},
		"createChat":                 {handler: s.opCreateChat},
		"editChat":                   {handler: s.opEditChat},
		"deleteChat":                 {handler: s.opDeleteChat},
		"leaveChat":                  {handler: s.opLeaveChat},
		"sendMessage":                {handler: s.opSendMessage, rateLimit: 60, rateWin: time.Minute},
		"markChatAsRead":             {handler: s.opMarkChatAsRead},

		// Admin / introspection
		"countDocuments": {handler: s.opCountDocuments},
	}
}

// Dispatch executes one tagged operation. Responses wrap the result under the
// operation name so clients can address it uniformly.
func (s *Server) Dispatch(c *fiber.Ctx) error {
	var req operationRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondOpError(c, models.NewBadUserInputError("Invalid request body"))
	}
	if req.OperationName == "" {
		return s.respondOpError(c, models.NewBadUserInputError("operationName is required"))
	}

	op, ok := s.operations[req.OperationName]
	if !ok {
		return s.respondOpError(c, models.NewBadUserInputError("Unknown operation: "+req.OperationName))
	}

	var actorID uint
	if op.public {
		if op.rateLimit > 0 && s.redis != nil {
			allowed, err := middleware.CheckRateLimit(c.Context(), s.redis, req.OperationName, c.IP(), op.rateLimit, op.rateWin)
			if err == nil && !allowed {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"errors": []fiber.Map{{
						"message":    "Too many requests, please try again later.",
						"extensions": fiber.Map{"code": "RATE_LIMITED"},
					}},
				})
			}
		}
	} else {
		id, err := s.userIDFromBearer(c)
		if err != nil {
			return s.respondOpError(c, err)
		}
		actorID = id
		c.Locals("userID", actorID)
		c.SetUserContext(contextWithUserID(c, actorID))

		if op.rateLimit > 0 && s.redis != nil {
			allowed, err := middleware.CheckRateLimit(c.Context(), s.redis, req.OperationName, formatUserKey(actorID), op.rateLimit, op.rateWin)
			if err == nil && !allowed {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"errors": []fiber.Map{{
						"message":    "Too many requests, please try again later.",
						"extensions": fiber.Map{"code": "RATE_LIMITED"},
					}},
				})
			}
		}
	}

	vars := req.Variables
	if len(vars) == 0 {
		vars = json.RawMessage("{}")
	}

	result, err := op.handler(c, actorID, vars)
	if err != nil {
		return s.respondOpError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{req.OperationName: result},
	})
}

// respondOpError writes the error envelope, mapping the error code to an
// HTTP status so plain HTTP clients see something sensible too.
func (s *Server) respondOpError(c *fiber.Ctx, err error) error {
	code := models.ErrorCode(err)
	message := err.Error()
	if code == models.CodeInternal {
		middleware.Logger.ErrorContext(c.UserContext(), "operation failed", "error", message)
		message = "Internal server error"
	}
	return c.Status(models.StatusForCode(code)).JSON(fiber.Map{
		"errors": []fiber.Map{{
			"message":    message,
			"extensions": fiber.Map{"code": code},
		}},
	})
}

func decodeVars(vars json.RawMessage, dst any) error {
	dec := json.NewDecoder(strings.NewReader(string(vars)))
	if err := dec.Decode(dst); err != nil {
		return models.NewBadUserInputError("Invalid variables: " + err.Error())
	}
	return nil
}

// --- user operations ---

func (s *Server) opCreateUser(c *fiber.Ctx, _ uint, vars json.RawMessage) (any, error) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}

	user, err := s.userService.Signup(c.UserContext(), service.SignupInput{
		Username: in.Username,
		Password: in.Password,
		Name:     in.Name,
	})
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	return authPayload{Token: token, User: user}, nil
}

func (s *Server) opLogin(c *fiber.Ctx, _ uint, vars json.RawMessage) (any, error) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}

	user, err := s.userService.Authenticate(c.UserContext(), in.Username, in.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	return authPayload{Token: token, User: user}, nil
}

func (s *Server) opMe(c *fiber.Ctx, actorID uint, _ json.RawMessage) (any, error) {
	return s.userService.GetByID(c.UserContext(), actorID)
}

func (s *Server) opFindUserByID(c *fiber.Ctx, _ uint, vars json.RawMessage) (any, error) {
	var in struct {
		ID uint `json:"id"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.userService.GetByID(c.UserContext(), in.ID)
}

func (s *Server) opEditProfile(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		Name           *string `json:"name"`
		About          *string `json:"about"`
		Avatar         *string `json:"avatar"`
		Use24HourClock *bool   `json:"use24HourClock"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.userService.EditProfile(c.UserContext(), actorID, service.EditProfileInput{
		Name:           in.Name,
		About:          in.About,
		Avatar:         in.Avatar,
		Use24HourClock: in.Use24HourClock,
	})
}

func (s *Server) opChangePassword(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	if err := s.userService.ChangePassword(c.UserContext(), actorID, in.CurrentPassword, in.NewPassword); err != nil {
		return nil, err
	}
	return fiber.Map{"success": true}, nil
}

// --- contact operations ---

func (s *Server) opFindContactByID(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ContactID uint `json:"contactId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.GetContact(c.UserContext(), actorID, in.ContactID)
}

func (s *Server) opFindContactByUserID(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		UserID uint `json:"userId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.GetContactByUserID(c.UserContext(), actorID, in.UserID)
}

func (s *Server) opAllContactsByUser(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		Search string `json:"search"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.ListContacts(c.UserContext(), actorID, in.Search)
}

func (s *Server) opContactsWithoutPrivateChat(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		Search string `json:"search"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.ListContactsWithoutPrivateChat(c.UserContext(), actorID, in.Search)
}

func (s *Server) opIsBlockedByUser(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		UserID uint `json:"userId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.IsBlockedBy(c.UserContext(), actorID, in.UserID)
}

func (s *Server) opAddContact(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		UserID uint `json:"userId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.AddContact(c.UserContext(), actorID, in.UserID)
}

func (s *Server) opAddContacts(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		UserIDs []uint `json:"userIds"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.AddContacts(c.UserContext(), actorID, in.UserIDs)
}

func (s *Server) opRemoveContact(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ContactID uint `json:"contactId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.RemoveContact(c.UserContext(), actorID, in.ContactID)
}

func (s *Server) opToggleBlockContact(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ContactID uint `json:"contactId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.contactService.ToggleBlock(c.UserContext(), actorID, in.ContactID)
}

// --- chat operations ---

func (s *Server) opAllChatsByUser(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		Search string `json:"search"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.GetChats(c.UserContext(), actorID, in.Search)
}

func (s *Server) opFindChatByID(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ChatID uint `json:"chatId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.GetChatForUser(c.UserContext(), in.ChatID, actorID)
}

func (s *Server) opFindPrivateChatWithContact(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		UserID uint `json:"userId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	// Absence is a normal answer here, not an error.
	return s.chatService.FindPrivateChatWithContact(c.UserContext(), actorID, in.UserID)
}

func (s *Server) opCreateChat(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		Name           string `json:"name"`
		Description    string `json:"description"`
		Avatar         string `json:"avatar"`
		MemberIDs      []uint `json:"memberIds"`
		InitialMessage string `json:"initialMessage"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.CreateChat(c.UserContext(), actorID, service.CreateChatInput{
		Name:           in.Name,
		Description:    in.Description,
		Avatar:         in.Avatar,
		MemberIDs:      in.MemberIDs,
		InitialMessage: in.InitialMessage,
	})
}

func (s *Server) opEditChat(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ChatID      uint   `json:"chatId"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
		MemberIDs   []uint `json:"memberIds"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.EditChat(c.UserContext(), actorID, service.EditChatInput{
		ChatID:      in.ChatID,
		Name:        in.Name,
		Description: in.Description,
		Avatar:      in.Avatar,
		MemberIDs:   in.MemberIDs,
	})
}

func (s *Server) opDeleteChat(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ChatID uint `json:"chatId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.DeleteChat(c.UserContext(), actorID, in.ChatID)
}

func (s *Server) opLeaveChat(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ChatID uint `json:"chatId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.LeaveChat(c.UserContext(), actorID, in.ChatID)
}

func (s *Server) opSendMessage(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ChatID  uint   `json:"chatId"`
		Content string `json:"content"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.SendMessage(c.UserContext(), actorID, service.SendMessageInput{
		ChatID:  in.ChatID,
		Content: in.Content,
	})
}

func (s *Server) opMarkChatAsRead(c *fiber.Ctx, actorID uint, vars json.RawMessage) (any, error) {
	var in struct {
		ChatID uint `json:"chatId"`
	}
	if err := decodeVars(vars, &in); err != nil {
		return nil, err
	}
	return s.chatService.MarkChatAsRead(c.UserContext(), actorID, in.ChatID)
}

// --- admin operations ---

func (s *Server) opCountDocuments(c *fiber.Ctx, _ uint, _ json.RawMessage) (any, error) {
	return s.statsService.Counts(c.UserContext())
}
