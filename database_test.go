package main

import (
	"errors"
	"testing"
	"time"
)

func TestEnsureUser(t *testing.T) {
	db := newTestDatabase(t)

	user, created, err := db.EnsureUser("u1", "", "")
	if err != nil || !created {
		t.Fatalf("first EnsureUser: created=%v err=%v", created, err)
	}
	if user.IsPro || user.FreeTrialCount != 0 {
		t.Errorf("new user should start free with no messages: %+v", user)
	}

	user, created, err = db.EnsureUser("u1", "a@example.com", "Ada")
	if err != nil || created {
		t.Fatalf("second EnsureUser: created=%v err=%v", created, err)
	}
	if user.Email != "a@example.com" || user.DisplayName != "Ada" {
		t.Errorf("missing fields not filled in: %+v", user)
	}

	user, _, _ = db.EnsureUser("u1", "b@example.com", "")
	if user.Email != "a@example.com" {
		t.Errorf("existing email overwritten: %q", user.Email)
	}

	if _, found, err := db.GetUser("nobody"); found || err != nil {
		t.Errorf("GetUser(nobody): found=%v err=%v", found, err)
	}
}

func TestProAndTrialCounters(t *testing.T) {
	db := newTestDatabase(t)

	for want := 1; want <= 3; want++ {
		n, err := db.IncrementFreeTrial("u1")
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("count = %d, want %d", n, want)
		}
	}

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	user, err := db.SetPro("u1", true, at)
	if err != nil {
		t.Fatal(err)
	}
	if !user.IsPro || user.ProUpgradedAt == nil || !user.ProUpgradedAt.Equal(at) {
		t.Errorf("pro upgrade not stored: %+v", user)
	}

	user, _ = db.SetPro("u1", false, at)
	if user.IsPro || user.FreeTrialCount != 3 {
		t.Errorf("downgrade changed the wrong fields: %+v", user)
	}
}

func TestHoldingsReplaceOnSave(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.SaveHoldings("u1", []Holding{{Symbol: "MSFT", Quantity: 1}, {Symbol: "AAPL", Quantity: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveHoldings("u2", []Holding{{Symbol: "TSLA", Quantity: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveHoldings("u1", []Holding{{Symbol: "AAPL", Quantity: 5}}); err != nil {
		t.Fatal(err)
	}

	holdings, err := db.LoadHoldings("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 1 || holdings[0].Symbol != "AAPL" || holdings[0].Quantity != 5 {
		t.Errorf("holdings = %+v", holdings)
	}

	owners, err := db.PortfolioOwners()
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 2 || owners[0] != "u1" || owners[1] != "u2" {
		t.Errorf("owners = %v", owners)
	}
}

func TestChatsAndMessages(t *testing.T) {
	db := newTestDatabase(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := db.CreateChat("u1", "c1", "New Chat", base); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateChat("u1", "c2", "New Chat", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := db.TouchChat("u1", "c1", "Tax question", base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 || chats[0].ID != "c1" || chats[0].Title != "Tax question" {
		t.Errorf("chats should be most recent first: %+v", chats)
	}

	if _, err := db.GetChat("u2", "c1"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("other user's chat: got %v, want ErrChatNotFound", err)
	}

	msgs := []ChatMessage{
		{ID: "m1", Type: AuthorUser, Content: "q", Timestamp: base},
		{ID: "m2", Type: AuthorAssistant, Content: "a", Timestamp: base, Suggestions: []string{"more"}, ShowChart: boolPtr(true)},
	}
	for _, m := range msgs {
		if err := db.AddMessage("u1", "c1", m); err != nil {
			t.Fatal(err)
		}
	}

	stored, err := db.ListMessages("u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[0].ID != "m1" || stored[1].Suggestions[0] != "more" || !stored[1].RendersChart() {
		t.Errorf("messages = %+v", stored)
	}
	if n, _ := db.CountMessages("u1", "c1", AuthorUser); n != 1 {
		t.Errorf("user message count = %d", n)
	}
	if n, _ := db.CountMessages("u1", "c1", ""); n != 2 {
		t.Errorf("total message count = %d", n)
	}
}

func TestSnapshotsUpsertPerDay(t *testing.T) {
	db := newTestDatabase(t)

	for _, s := range []struct {
		date  string
		value float64
	}{
		{"2025-01-02", 100.123},
		{"2025-01-01", 90},
		{"2025-01-02", 105.556},
	} {
		if err := db.UpsertSnapshot("u1", s.date, s.value); err != nil {
			t.Fatal(err)
		}
	}

	snapshots, err := db.GetSnapshots("u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 2 || snapshots[0].Date != "2025-01-01" || snapshots[1].Value != 105.56 {
		t.Errorf("snapshots = %+v", snapshots)
	}
}

func TestChatIDsArePerUser(t *testing.T) {
	db := newTestDatabase(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := db.TouchChat("alice", "chat-1", "Alice's chat", at); err != nil {
		t.Fatal(err)
	}
	if err := db.TouchChat("bob", "chat-1", "Bob's chat", at.Add(time.Minute)); err != nil {
		t.Fatalf("second user reusing a chat id: %v", err)
	}
	if err := db.AddMessage("alice", "chat-1", ChatMessage{ID: "m1", Type: AuthorUser, Content: "from alice", Timestamp: at}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMessage("bob", "chat-1", ChatMessage{ID: "m2", Type: AuthorUser, Content: "from bob", Timestamp: at}); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		uid, title, content string
	}{
		{"alice", "Alice's chat", "from alice"},
		{"bob", "Bob's chat", "from bob"},
	} {
		chat, err := db.GetChat(tt.uid, "chat-1")
		if err != nil {
			t.Fatalf("GetChat(%s): %v", tt.uid, err)
		}
		if chat.Title != tt.title {
			t.Errorf("%s chat title = %q, want %q", tt.uid, chat.Title, tt.title)
		}
		msgs, err := db.ListMessages(tt.uid, "chat-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 1 || msgs[0].Content != tt.content {
			t.Errorf("%s messages = %+v", tt.uid, msgs)
		}
	}
}
