package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSequenceConcurrentCallers(t *testing.T) {
	seq := &memSequence{}
	ctx := context.Background()

	const callers = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[n] {
				t.Errorf("duplicate number %d", n)
			}
			seen[n] = true
		}()
	}
	wg.Wait()

	for n := int64(1); n <= callers; n++ {
		if !seen[n] {
			t.Fatalf("number %d was skipped", n)
		}
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewMemoryRateLimiter(func() time.Time { return now })
	ctx := context.Background()
	window := time.Minute

	ok, err := rl.Allow(ctx, 7, window)
	if err != nil || !ok {
		t.Fatalf("first submission denied: ok=%v err=%v", ok, err)
	}

	ok, _ = rl.Allow(ctx, 7, window)
	if ok {
		t.Fatal("second submission inside window was allowed")
	}

	// A different user is unaffected.
	ok, _ = rl.Allow(ctx, 8, window)
	if !ok {
		t.Fatal("other user was denied")
	}

	now = now.Add(window)
	ok, _ = rl.Allow(ctx, 7, window)
	if !ok {
		t.Fatal("submission after window was denied")
	}

	// The grant refreshed the timestamp.
	ok, _ = rl.Allow(ctx, 7, window)
	if ok {
		t.Fatal("timestamp was not refreshed on grant")
	}
}

func TestSettingsPartialMerge(t *testing.T) {
	s := &memSettings{}
	ctx := context.Background()

	channel := "@confessions"
	if _, err := s.Update(ctx, SettingsPatch{ChannelTarget: &channel}); err != nil {
		t.Fatal(err)
	}
	auto := true
	updated, err := s.Update(ctx, SettingsPatch{AutoPost: &auto})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ChannelTarget != "@confessions" {
		t.Fatalf("auto-post update clobbered channel: %q", updated.ChannelTarget)
	}
	if !updated.AutoPost {
		t.Fatal("auto-post not set")
	}

	admins := []int64{1, 2}
	updated, err = s.Update(ctx, SettingsPatch{Admins: &admins})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ChannelTarget != "@confessions" || !updated.AutoPost {
		t.Fatal("admin update clobbered other fields")
	}
	if len(updated.Admins) != 2 {
		t.Fatalf("admins = %v", updated.Admins)
	}
}

func TestSettingsHelpers(t *testing.T) {
	s := Settings{
		Admins:    []int64{10, 20},
		Blacklist: []string{"spam", "Promo"},
	}
	if !s.IsAdmin(10) || s.IsAdmin(30) {
		t.Fatal("IsAdmin membership wrong")
	}
	if w, ok := s.Blocked("This is SPAM really"); !ok || w != "spam" {
		t.Fatalf("Blocked = %q %v", w, ok)
	}
	// Substring matching is case-insensitive both ways.
	if _, ok := s.Blocked("big promotion"); !ok {
		t.Fatal("mixed-case blacklist entry not matched")
	}
	if _, ok := s.Blocked("all clean here"); ok {
		t.Fatal("clean text flagged")
	}
}

func TestConfessionDecideOnce(t *testing.T) {
	c := &memConfessions{byNumber: make(map[int64]Confession)}
	ctx := context.Background()

	if err := c.Create(ctx, Confession{Number: 1, Body: "first", AuthorID: 5}); err != nil {
		t.Fatal(err)
	}

	if err := c.Decide(ctx, 1, StatusApproved, "99"); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	if err := c.Decide(ctx, 1, StatusRejected, "100"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("second decide err = %v", err)
	}
	if err := c.Decide(ctx, 2, StatusApproved, "99"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing decide err = %v", err)
	}

	conf, err := c.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Status != StatusApproved || conf.DecidedBy != "99" {
		t.Fatalf("conf = %+v", conf)
	}
}

func TestConfessionListAndPurge(t *testing.T) {
	c := &memConfessions{byNumber: make(map[int64]Confession)}
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		author := int64(5)
		if i == 3 {
			author = 6
		}
		if err := c.Create(ctx, Confession{Number: i, Body: "text", AuthorID: author}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := c.ListByAuthor(ctx, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Number != 4 || list[1].Number != 2 {
		t.Fatalf("order = #%d #%d", list[0].Number, list[1].Number)
	}

	n, err := c.DeleteByAuthor(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("deleted %d", n)
	}
	if _, err := c.Get(ctx, 3); err != nil {
		t.Fatal("other author's confession was deleted")
	}
}

func TestSessionsSingleOpenPerAdmin(t *testing.T) {
	s := &memSessions{sessions: make(map[int64]Session)}
	ctx := context.Background()

	if _, err := s.Peek(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("peek empty err = %v", err)
	}

	if err := s.Open(ctx, 1, SessionChangeChannel); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(ctx, 1, SessionBlacklist); err != nil {
		t.Fatal(err)
	}

	sess, err := s.Peek(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Action != SessionBlacklist {
		t.Fatalf("action = %s, want re-opened session to win", sess.Action)
	}

	if err := s.Close(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Peek(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("peek after close err = %v", err)
	}
}
