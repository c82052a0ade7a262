package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"confbot/bot/store"
)

func newTestBot() (*Bot, *store.Store) {
	st := store.NewMemory()
	return &Bot{store: st, outbox: NewTeleOutbox()}, st
}

func openSession(t *testing.T, st *store.Store, adminID int64, sa store.SessionAction) store.Session {
	t.Helper()
	if err := st.Sessions.Open(context.Background(), adminID, sa); err != nil {
		t.Fatal(err)
	}
	sess, err := st.Sessions.Peek(context.Background(), adminID)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestContinuationChangeChannel(t *testing.T) {
	b, st := newTestBot()
	ctx := context.Background()
	sess := openSession(t, st, 100, store.SessionChangeChannel)

	reply, err := b.applyContinuation(ctx, sess, "@myconfessions")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Channel changed to @myconfessions" {
		t.Fatalf("reply = %q", reply)
	}
	settings, _ := st.Settings.Get(ctx)
	if settings.ChannelTarget != "@myconfessions" {
		t.Fatalf("channel = %q", settings.ChannelTarget)
	}

	// Numeric chat ids are accepted verbatim too.
	reply, err = b.applyContinuation(ctx, sess, "-1001234567")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(reply, "-1001234567") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestContinuationManageAdmins(t *testing.T) {
	b, st := newTestBot()
	ctx := context.Background()
	sess := openSession(t, st, 100, store.SessionManageAdmins)

	reply, err := b.applyContinuation(ctx, sess, "add 555")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Added admin 555" {
		t.Fatalf("reply = %q", reply)
	}
	settings, _ := st.Settings.Get(ctx)
	if !settings.IsAdmin(555) {
		t.Fatal("admin not added")
	}

	// Adding twice keeps the set deduplicated.
	if _, err := b.applyContinuation(ctx, sess, "add 555"); err != nil {
		t.Fatal(err)
	}
	settings, _ = st.Settings.Get(ctx)
	if len(settings.Admins) != 1 {
		t.Fatalf("admins = %v", settings.Admins)
	}

	reply, err = b.applyContinuation(ctx, sess, "remove 555")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Removed admin 555" {
		t.Fatalf("reply = %q", reply)
	}
	settings, _ = st.Settings.Get(ctx)
	if settings.IsAdmin(555) {
		t.Fatal("admin not removed")
	}

	for _, input := range []string{"", "add", "add abc", "promote 555", "add 1 2"} {
		reply, err := b.applyContinuation(ctx, sess, input)
		if err != nil {
			t.Fatal(err)
		}
		if reply != "Invalid command. Use add <id> or remove <id>." {
			t.Fatalf("input %q reply = %q", input, reply)
		}
	}
}

func TestConsumeSessionClosesOnce(t *testing.T) {
	b, st := newTestBot()
	ctx := context.Background()

	// Valid continuation completes and consumes the session.
	sess := openSession(t, st, 100, store.SessionManageAdmins)
	reply, err := b.consumeSession(ctx, sess, "add 555")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Added admin 555" {
		t.Fatalf("reply = %q", reply)
	}
	if _, err := st.Sessions.Peek(ctx, 100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session still open after valid input: %v", err)
	}

	// Invalid continuation reports the error and is consumed just the same,
	// so the admin's next message is treated as a submission again.
	sess = openSession(t, st, 100, store.SessionManageAdmins)
	reply, err = b.consumeSession(ctx, sess, "promote 555")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Invalid command. Use add <id> or remove <id>." {
		t.Fatalf("reply = %q", reply)
	}
	if _, err := st.Sessions.Peek(ctx, 100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("session still open after invalid input: %v", err)
	}
}

func TestContinuationBlacklist(t *testing.T) {
	b, st := newTestBot()
	ctx := context.Background()
	sess := openSession(t, st, 100, store.SessionBlacklist)

	reply, err := b.applyContinuation(ctx, sess, "add SPAM")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Added to blacklist: spam" {
		t.Fatalf("reply = %q", reply)
	}
	settings, _ := st.Settings.Get(ctx)
	if len(settings.Blacklist) != 1 || settings.Blacklist[0] != "spam" {
		t.Fatalf("blacklist = %v", settings.Blacklist)
	}

	if _, err := b.applyContinuation(ctx, sess, "add promo"); err != nil {
		t.Fatal(err)
	}
	reply, err = b.applyContinuation(ctx, sess, "list")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Blacklisted words: spam, promo" {
		t.Fatalf("reply = %q", reply)
	}

	reply, err = b.applyContinuation(ctx, sess, "remove SPAM")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Removed from blacklist: spam" {
		t.Fatalf("reply = %q", reply)
	}
	settings, _ = st.Settings.Get(ctx)
	if len(settings.Blacklist) != 1 || settings.Blacklist[0] != "promo" {
		t.Fatalf("blacklist = %v", settings.Blacklist)
	}

	reply, err = b.applyContinuation(ctx, sess, "purge everything")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Invalid blacklist command." {
		t.Fatalf("reply = %q", reply)
	}
}
