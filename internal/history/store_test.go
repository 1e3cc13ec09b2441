package history

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFindOrCreateContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.FindOrCreateContact(ctx, "5511999887766", "João")
	if err != nil {
		t.Fatalf("FindOrCreateContact() error: %v", err)
	}
	if created.ID == 0 {
		t.Error("new contact should get an ID")
	}
	if !created.AutoReply {
		t.Error("new contacts start with auto-reply enabled")
	}

	found, err := s.FindOrCreateContact(ctx, "5511999887766", "João")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != created.ID {
		t.Errorf("second call created a new contact: %d != %d", found.ID, created.ID)
	}
}

func TestFindOrCreateContactUpdatesName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreateContact(ctx, "5511999887766", ""); err != nil {
		t.Fatal(err)
	}

	updated, err := s.FindOrCreateContact(ctx, "5511999887766", "Maria")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Maria" {
		t.Errorf("Name = %q, want Maria", updated.Name)
	}

	reread, err := s.ContactByPhone(ctx, "5511999887766")
	if err != nil {
		t.Fatal(err)
	}
	if reread.Name != "Maria" {
		t.Errorf("persisted Name = %q, want Maria", reread.Name)
	}
}

func TestContactByPhoneNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ContactByPhone(context.Background(), "5500000000000")
	if !errors.Is(err, ErrContactNotFound) {
		t.Errorf("err = %v, want ErrContactNotFound", err)
	}
}

func TestSetAutoReply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreateContact(ctx, "5511999887766", "João"); err != nil {
		t.Fatal(err)
	}

	if err := s.SetAutoReply(ctx, "5511999887766", false); err != nil {
		t.Fatalf("SetAutoReply() error: %v", err)
	}

	c, err := s.ContactByPhone(ctx, "5511999887766")
	if err != nil {
		t.Fatal(err)
	}
	if c.AutoReply {
		t.Error("auto-reply should be off")
	}

	if err := s.SetAutoReply(ctx, "5500000000000", true); !errors.Is(err, ErrContactNotFound) {
		t.Errorf("unknown phone: err = %v, want ErrContactNotFound", err)
	}
}

func TestSaveAndRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.FindOrCreateContact(ctx, "5511999887766", "João")
	if err != nil {
		t.Fatal(err)
	}

	lines := []struct {
		direction string
		body      string
	}{
		{DirectionInbound, "Oi, vi o anúncio do apartamento"},
		{DirectionOutbound, "Olá! Qual imóvel te interessou?"},
		{DirectionInbound, "O de 2 quartos no centro"},
	}
	for _, l := range lines {
		if err := s.SaveMessage(ctx, c.ID, l.direction, l.body); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.RecentMessages(ctx, c.ID, 10)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, l := range lines {
		if msgs[i].Body != l.body || msgs[i].Direction != l.direction {
			t.Errorf("msgs[%d] = %+v, want %+v", i, msgs[i], l)
		}
	}
}

func TestRecentMessagesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.FindOrCreateContact(ctx, "5511999887766", "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		body := string(rune('a' + i))
		if err := s.SaveMessage(ctx, c.ID, DirectionInbound, body); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.RecentMessages(ctx, c.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	// The two newest, oldest first.
	if msgs[0].Body != "d" || msgs[1].Body != "e" {
		t.Errorf("got %q, %q; want d, e", msgs[0].Body, msgs[1].Body)
	}
}

func TestSaveMessageValidatesDirection(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveMessage(context.Background(), 1, "sideways", "x"); err == nil {
		t.Error("invalid direction should be rejected")
	}
}
