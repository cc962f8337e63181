package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	guestChatID  = "guest-chat"
	newChatTitle = "New Chat"

	welcomeMessage  = "Hello! I'm your FinSight AI advisor. Ask me anything about your investments or taxes."
	fallbackMessage = "I'm having trouble connecting to my brain right now. Please make sure the backend server is running and try again."

	titleWords = 5
)

// SendResult is the outcome of one chat turn.
type SendResult struct {
	ChatID      string      `json:"chatId"`
	UserMessage ChatMessage `json:"userMessage"`
	Reply       ChatMessage `json:"reply"`
	// Fallback is set when the backend failed and the static reply was used.
	Fallback bool       `json:"fallback"`
	Trial    TrialState `json:"trial"`
}

type TrialState struct {
	IsPro     bool `json:"isPro"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

// ChatRelay runs a chat turn: gate, persist the user message, ask the
// backend, persist the reply.
type ChatRelay struct {
	db      *Database
	storage *LocalStorage
	hub     *EventHub
	logger  *zap.Logger

	free  Assistant
	pro   Assistant
	limit int

	now   func() time.Time
	newID func() string
}

func NewChatRelay(db *Database, storage *LocalStorage, hub *EventHub, free, pro Assistant, limit int, logger *zap.Logger) *ChatRelay {
	return &ChatRelay{
		db:      db,
		storage: storage,
		hub:     hub,
		logger:  logger.Named("chat"),
		free:    free,
		pro:     pro,
		limit:   limit,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Trial reports the free-tier state of the caller.
func (r *ChatRelay) Trial(id Identity) (TrialState, error) {
	state := TrialState{Limit: r.limit}
	if id.SignedIn() {
		user, _, err := r.db.GetUser(id.UserID)
		if err != nil {
			return TrialState{}, err
		}
		state.IsPro = user.IsPro
		state.Used = user.FreeTrialCount
	} else {
		used, err := r.guestCount(id.GuestID)
		if err != nil {
			return TrialState{}, err
		}
		state.Used = used
	}

	if !state.IsPro {
		state.Remaining = r.limit - state.Used
		if state.Remaining < 0 {
			state.Remaining = 0
		}
	}
	return state, nil
}

func (t TrialState) exhausted() bool {
	return !t.IsPro && t.Used >= t.Limit
}

// Send runs one turn in chatID. Signed-in callers get a fresh chat when
// chatID is empty; guests always talk in the unsaved guest chat.
func (r *ChatRelay) Send(ctx context.Context, id Identity, chatID, content string) (*SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	trial, err := r.Trial(id)
	if err != nil {
		return nil, err
	}
	if trial.exhausted() {
		return nil, ErrTrialExhausted
	}

	if !id.SignedIn() {
		chatID = guestChatID
	} else if chatID == "" {
		chatID = "chat-" + r.newID()
	}

	userMsg := ChatMessage{
		ID:        r.newID(),
		Type:      AuthorUser,
		Content:   content,
		Timestamp: r.now(),
	}
	if id.SignedIn() {
		if err := r.recordUserMessage(id.UserID, chatID, userMsg); err != nil {
			return nil, err
		}
	}

	if !trial.IsPro {
		if trial.Used, err = r.countMessage(id); err != nil {
			return nil, err
		}
		trial.Remaining = trial.Limit - trial.Used
		if trial.Remaining < 0 {
			trial.Remaining = 0
		}
		r.publish(id, TopicTrial, "", trial)
	}

	assistant, userID := r.free, defaultGuestID
	if trial.IsPro {
		assistant = r.pro
	}
	if id.SignedIn() {
		userID = id.UserID
	}

	result := &SendResult{ChatID: chatID, UserMessage: userMsg, Trial: trial}
	reply, err := r.ask(ctx, assistant, userID, chatID, content)
	if err != nil {
		r.logger.Error("chat backend failed", zap.String("chat", chatID), zap.Bool("pro", trial.IsPro), zap.Error(err))
		reply = ChatReply{Text: fallbackMessage}
		result.Fallback = true
	}

	result.Reply = ChatMessage{
		ID:          r.newID(),
		Type:        AuthorAssistant,
		Content:     reply.Text,
		Timestamp:   r.now(),
		Suggestions: reply.Suggestions,
		ShowChart:   reply.ShowChart,
	}
	if id.SignedIn() {
		if err := r.db.AddMessage(id.UserID, chatID, result.Reply); err != nil {
			return nil, err
		}
		r.publish(id, TopicMessages, chatID, result.Reply)
	}
	return result, nil
}

func (r *ChatRelay) ask(ctx context.Context, assistant Assistant, userID, chatID, content string) (ChatReply, error) {
	if assistant == nil {
		return ChatReply{}, ErrNoModel
	}
	reply, err := assistant.Ask(ctx, userID, chatID, content)
	if err != nil {
		return ChatReply{}, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return ChatReply{}, errors.New("empty reply")
	}
	return reply, nil
}

// recordUserMessage stores the user turn. The first user message of a chat
// names it; a chat with no messages at all gets the welcome line first.
func (r *ChatRelay) recordUserMessage(uid, chatID string, msg ChatMessage) error {
	total, err := r.db.CountMessages(uid, chatID, "")
	if err != nil {
		return err
	}
	fromUser, err := r.db.CountMessages(uid, chatID, AuthorUser)
	if err != nil {
		return err
	}

	title := ""
	if fromUser == 0 {
		title = generateChatTitle(msg.Content)
	}
	if err := r.db.TouchChat(uid, chatID, title, msg.Timestamp); err != nil {
		return err
	}
	if total == 0 {
		if err := r.db.AddMessage(uid, chatID, r.welcome(msg.Timestamp.Add(-time.Millisecond))); err != nil {
			return err
		}
	}
	if err := r.db.AddMessage(uid, chatID, msg); err != nil {
		return err
	}

	id := Identity{UserID: uid}
	r.publish(id, TopicMessages, chatID, msg)
	r.publishChats(id)
	return nil
}

func (r *ChatRelay) countMessage(id Identity) (int, error) {
	if id.SignedIn() {
		return r.db.IncrementFreeTrial(id.UserID)
	}
	used, err := r.guestCount(id.GuestID)
	if err != nil {
		return 0, err
	}
	used++
	if err := r.storage.SetItem(guestTrialKey(id.GuestID), used); err != nil {
		return 0, fmt.Errorf("failed to save guest trial count: %w", err)
	}
	return used, nil
}

func (r *ChatRelay) guestCount(guestID string) (int, error) {
	var used int
	if _, err := r.storage.GetItem(guestTrialKey(guestID), &used); err != nil {
		return 0, fmt.Errorf("failed to read guest trial count: %w", err)
	}
	return used, nil
}

func guestTrialKey(guestID string) string {
	return "freeTrialCount:" + guestID
}

// NewChat starts a chat holding only the welcome message.
func (r *ChatRelay) NewChat(id Identity) (ChatMetadata, []ChatMessage, error) {
	now := r.now()
	welcome := r.welcome(now)
	if !id.SignedIn() {
		meta := ChatMetadata{ID: guestChatID, Title: newChatTitle, CreatedAt: now, LastActivity: now}
		return meta, []ChatMessage{welcome}, nil
	}

	chatID := "chat-" + r.newID()
	if err := r.db.CreateChat(id.UserID, chatID, newChatTitle, now); err != nil {
		return ChatMetadata{}, nil, err
	}
	if err := r.db.AddMessage(id.UserID, chatID, welcome); err != nil {
		return ChatMetadata{}, nil, err
	}
	r.publishChats(id)

	meta := ChatMetadata{ID: chatID, Title: newChatTitle, CreatedAt: now, LastActivity: now}
	return meta, []ChatMessage{welcome}, nil
}

// Chats lists the caller's chats, most recent first. Guests have none.
func (r *ChatRelay) Chats(id Identity) ([]ChatMetadata, error) {
	if !id.SignedIn() {
		return []ChatMetadata{}, nil
	}
	return r.db.ListChats(id.UserID)
}

// Messages returns the transcript of chatID.
func (r *ChatRelay) Messages(id Identity, chatID string) ([]ChatMessage, error) {
	if !id.SignedIn() {
		if chatID != guestChatID {
			return nil, ErrChatNotFound
		}
		return []ChatMessage{r.welcome(r.now())}, nil
	}

	if _, err := r.db.GetChat(id.UserID, chatID); err != nil {
		return nil, err
	}
	messages, err := r.db.ListMessages(id.UserID, chatID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return []ChatMessage{r.welcome(r.now())}, nil
	}
	return messages, nil
}

func (r *ChatRelay) welcome(at time.Time) ChatMessage {
	return ChatMessage{ID: r.newID(), Type: AuthorAssistant, Content: welcomeMessage, Timestamp: at}
}

func (r *ChatRelay) publishChats(id Identity) {
	if r.hub == nil {
		return
	}
	chats, err := r.db.ListChats(id.UserID)
	if err != nil {
		r.logger.Warn("failed to list chats for subscribers", zap.Error(err))
		return
	}
	r.publish(id, TopicChats, "", chats)
}

func (r *ChatRelay) publish(id Identity, topic, key string, payload interface{}) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(Event{Topic: topic, Owner: id.Owner(), Key: key, Payload: payload})
}

// generateChatTitle takes the first five words of message.
func generateChatTitle(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return newChatTitle
	}
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}
