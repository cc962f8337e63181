package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeAssistant struct {
	reply ChatReply
	err   error
	calls []string
}

func (a *fakeAssistant) Ask(_ context.Context, userID, chatID, text string) (ChatReply, error) {
	a.calls = append(a.calls, text)
	if a.err != nil {
		return ChatReply{}, a.err
	}
	return a.reply, nil
}

func newTestRelay(t *testing.T, free, pro Assistant) (*ChatRelay, *Database) {
	t.Helper()
	db := newTestDatabase(t)
	relay := NewChatRelay(db, newTestStorage(t), NewEventHub(8, testLogger), free, pro, 3, testLogger)

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	relay.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	relay.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return relay, db
}

func TestFreeTierGateBlocksAtLimit(t *testing.T) {
	free := &fakeAssistant{reply: ChatReply{Text: "hi"}}
	relay, _ := newTestRelay(t, free, nil)
	ctx := context.Background()

	for _, id := range []Identity{{GuestID: "g1"}, {UserID: "u1"}} {
		for i := 0; i < 3; i++ {
			if _, err := relay.Send(ctx, id, "", "question"); err != nil {
				t.Fatalf("%s send %d: %v", id.Owner(), i+1, err)
			}
		}
		if _, err := relay.Send(ctx, id, "", "one more"); !errors.Is(err, ErrTrialExhausted) {
			t.Fatalf("%s fourth send: got %v, want ErrTrialExhausted", id.Owner(), err)
		}
	}
	if len(free.calls) != 6 {
		t.Errorf("backend called %d times, want 6", len(free.calls))
	}

	trial, err := relay.Trial(Identity{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if trial.Used != 3 || trial.Remaining != 0 {
		t.Errorf("trial state = %+v", trial)
	}
}

func TestProUserBypassesGate(t *testing.T) {
	free := &fakeAssistant{reply: ChatReply{Text: "free"}}
	pro := &fakeAssistant{reply: ChatReply{Text: "pro"}}
	relay, db := newTestRelay(t, free, pro)

	if _, err := db.SetPro("u1", true, time.Now()); err != nil {
		t.Fatal(err)
	}

	id := Identity{UserID: "u1"}
	for i := 0; i < 5; i++ {
		result, err := relay.Send(context.Background(), id, "chat-1", "analyze my holdings")
		if err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
		if result.Reply.Content != "pro" {
			t.Fatalf("pro user routed to %q", result.Reply.Content)
		}
	}
	if len(free.calls) != 0 {
		t.Errorf("free backend used for a pro user")
	}

	user, _, _ := db.GetUser("u1")
	if user.FreeTrialCount != 0 {
		t.Errorf("pro messages counted against the trial: %d", user.FreeTrialCount)
	}
}

func TestSendPersistsTranscript(t *testing.T) {
	free := &fakeAssistant{reply: ChatReply{Text: "Diversify.", Suggestions: []string{"How?"}, ShowChart: boolPtr(false)}}
	relay, db := newTestRelay(t, free, nil)
	id := Identity{UserID: "u1"}

	chat, _, err := relay.NewChat(id)
	if err != nil {
		t.Fatal(err)
	}
	if chat.Title != "New Chat" {
		t.Errorf("new chat title = %q", chat.Title)
	}

	if _, err := relay.Send(context.Background(), id, chat.ID, "what should I do with my tech stocks"); err != nil {
		t.Fatal(err)
	}
	if _, err := relay.Send(context.Background(), id, chat.ID, "and bonds"); err != nil {
		t.Fatal(err)
	}

	messages, err := relay.Messages(id, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected welcome + 2 turns, got %d messages", len(messages))
	}
	if messages[0].Content != welcomeMessage || messages[1].Type != AuthorUser || messages[2].Type != AuthorAssistant {
		t.Errorf("unexpected transcript order: %+v", messages)
	}
	if messages[2].ShowChart == nil || *messages[2].ShowChart {
		t.Errorf("showChart=false should be stored, got %v", messages[2].ShowChart)
	}
	if len(messages[2].Suggestions) != 1 {
		t.Errorf("suggestions not stored: %+v", messages[2])
	}

	chats, err := db.ListChats("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].Title != "what should I do with..." {
		t.Fatalf("chat title = %+v", chats)
	}
}

func TestReplyWithoutChartFlag(t *testing.T) {
	free := &fakeAssistant{reply: ChatReply{Text: "plain text"}}
	relay, _ := newTestRelay(t, free, nil)
	id := Identity{UserID: "u1"}

	result, err := relay.Send(context.Background(), id, "chat-1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if result.Reply.RendersChart() {
		t.Fatalf("reply without showChart must not render a chart")
	}

	messages, err := relay.Messages(id, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	last := messages[len(messages)-1]
	if last.ShowChart != nil || last.Suggestions != nil {
		t.Errorf("absent optional fields were stored: %+v", last)
	}
}

func TestBackendFailureUsesFallback(t *testing.T) {
	free := &fakeAssistant{err: errors.New("connection refused")}
	relay, _ := newTestRelay(t, free, nil)
	id := Identity{UserID: "u1"}

	result, err := relay.Send(context.Background(), id, "chat-1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Fallback || result.Reply.Content != fallbackMessage {
		t.Fatalf("expected fallback reply, got %+v", result)
	}

	messages, _ := relay.Messages(id, "chat-1")
	if messages[len(messages)-1].Content != fallbackMessage {
		t.Errorf("fallback reply not persisted")
	}
}

func TestGuestChatIsNotPersisted(t *testing.T) {
	free := &fakeAssistant{reply: ChatReply{Text: "hi"}}
	relay, db := newTestRelay(t, free, nil)
	id := Identity{GuestID: "g1"}

	result, err := relay.Send(context.Background(), id, "ignored", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if result.ChatID != guestChatID {
		t.Errorf("guest chat id = %q", result.ChatID)
	}

	chats, _ := relay.Chats(id)
	if len(chats) != 0 {
		t.Errorf("guests should have no stored chats")
	}
	if n, _ := db.CountMessages(defaultGuestID, guestChatID, ""); n != 0 {
		t.Errorf("guest messages were stored")
	}
}

func TestMessagesOfUnknownChat(t *testing.T) {
	relay, _ := newTestRelay(t, nil, nil)
	if _, err := relay.Messages(Identity{UserID: "u1"}, "missing"); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("got %v, want ErrChatNotFound", err)
	}
}

func TestGenerateChatTitle(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"How are my stocks doing", "How are my stocks doing"},
		{"How are my stocks doing today?", "How are my stocks doing..."},
		{"  tax   tips  ", "tax tips"},
		{"", "New Chat"},
	}
	for _, tt := range tests {
		if got := generateChatTitle(tt.message); got != tt.want {
			t.Errorf("generateChatTitle(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}
