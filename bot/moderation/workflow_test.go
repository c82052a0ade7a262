package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"confbot/bot/store"
)

type sentMessage struct {
	to   int64
	text string
}

type fakeOutbox struct {
	acks       []sentMessage
	prompts    []sentMessage
	posts      []sentMessage
	edits      []string
	publishErr error
	notifyErr  map[int64]error
	channel    string
}

func (f *fakeOutbox) Ack(ctx context.Context, userID int64, text string) error {
	f.acks = append(f.acks, sentMessage{to: userID, text: text})
	return nil
}

func (f *fakeOutbox) NotifyAdmin(ctx context.Context, adminID, confNumber int64, text string) error {
	if err := f.notifyErr[adminID]; err != nil {
		return err
	}
	f.prompts = append(f.prompts, sentMessage{to: adminID, text: text})
	return nil
}

func (f *fakeOutbox) Publish(ctx context.Context, channel, text string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.channel = channel
	f.posts = append(f.posts, sentMessage{text: text})
	return nil
}

func (f *fakeOutbox) EditPrompt(ctx context.Context, ref PromptRef, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

func newTestWorkflow(cfg Config) (*Workflow, *store.Store, *fakeOutbox) {
	st := store.NewMemory()
	outbox := &fakeOutbox{}
	return New(st, outbox, cfg), st, outbox
}

func TestSubmitAccepted(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{Cooldown: time.Minute})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100, 200}}

	res, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "  my secret  "})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitAccepted || res.Number != 1 {
		t.Fatalf("result = %+v", res)
	}

	conf, err := st.Confessions.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Body != "my secret" || conf.Status != store.StatusPending || conf.AuthorID != 5 {
		t.Fatalf("conf = %+v", conf)
	}

	if len(outbox.acks) != 1 || outbox.acks[0].text != "Received anonymously. Pending approval (ID #1)." {
		t.Fatalf("acks = %+v", outbox.acks)
	}
	if len(outbox.prompts) != 2 {
		t.Fatalf("prompts = %+v", outbox.prompts)
	}
	want := "New Confession #1\nAnonymous:\n\"my secret\""
	if outbox.prompts[0].text != want {
		t.Fatalf("prompt = %q", outbox.prompts[0].text)
	}
	if len(outbox.posts) != 0 {
		t.Fatal("auto-post happened without the flag")
	}
}

func TestSubmitValidationFailures(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{Cooldown: time.Minute})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}, Blacklist: []string{"secret"}}

	res, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitEmpty {
		t.Fatalf("outcome = %v", res.Outcome)
	}

	res, err = wf.Submit(ctx, settings, SubmitRequest{AuthorID: 6, Text: "My SECRET crush"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitBlacklisted {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if _, err := st.Confessions.Get(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("rejected submission was persisted")
	}
	if len(outbox.prompts) != 0 {
		t.Fatal("rejected submission reached admins")
	}

	wantTexts := []string{
		"Please send a non-empty confession.",
		"Your confession contains disallowed words and was rejected.",
	}
	if len(outbox.acks) != 2 {
		t.Fatalf("acks = %+v", outbox.acks)
	}
	for i, want := range wantTexts {
		if outbox.acks[i].text != want {
			t.Fatalf("ack[%d] = %q", i, outbox.acks[i].text)
		}
	}
}

func TestSubmitRateLimited(t *testing.T) {
	wf, _, outbox := newTestWorkflow(Config{Cooldown: time.Minute})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}}

	if _, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "one"}); err != nil {
		t.Fatal(err)
	}
	res, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "two"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitRateLimited {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	last := outbox.acks[len(outbox.acks)-1]
	if last.text != "You are sending confessions too quickly. Please wait." {
		t.Fatalf("ack = %q", last.text)
	}
}

func TestSubmitMediaOnlyAllowed(t *testing.T) {
	wf, st, _ := newTestWorkflow(Config{Cooldown: time.Minute})
	ctx := context.Background()

	res, err := wf.Submit(ctx, store.Settings{Admins: []int64{100}}, SubmitRequest{AuthorID: 5, HasMedia: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitAccepted {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	conf, err := st.Confessions.Get(ctx, res.Number)
	if err != nil {
		t.Fatal(err)
	}
	if !conf.HasMedia {
		t.Fatal("media flag lost")
	}
}

func TestSubmitFallbackAdmin(t *testing.T) {
	wf, _, outbox := newTestWorkflow(Config{Cooldown: time.Minute, FallbackAdminID: 777})
	ctx := context.Background()

	if _, err := wf.Submit(ctx, store.Settings{}, SubmitRequest{AuthorID: 5, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	if len(outbox.prompts) != 1 || outbox.prompts[0].to != 777 {
		t.Fatalf("prompts = %+v", outbox.prompts)
	}
}

func TestSubmitAdminFanOutIsolatesFailures(t *testing.T) {
	wf, _, outbox := newTestWorkflow(Config{Cooldown: time.Minute})
	outbox.notifyErr = map[int64]error{100: fmt.Errorf("blocked by user")}
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100, 200, 300}}

	res, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitAccepted {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if len(outbox.prompts) != 2 {
		t.Fatalf("prompts = %+v", outbox.prompts)
	}
	for _, p := range outbox.prompts {
		if p.to == 100 {
			t.Fatal("failed recipient recorded as notified")
		}
	}
}

func TestSubmitAutoPost(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{Cooldown: time.Minute})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}, AutoPost: true, ChannelTarget: "@confessions"}

	res, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.AutoPosted {
		t.Fatal("not auto-posted")
	}
	if outbox.channel != "@confessions" {
		t.Fatalf("channel = %q", outbox.channel)
	}
	if len(outbox.posts) != 1 || outbox.posts[0].text != "#1\nhello" {
		t.Fatalf("posts = %+v", outbox.posts)
	}
	conf, err := st.Confessions.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Status != store.StatusApproved || conf.DecidedBy != AutoDecider {
		t.Fatalf("conf = %+v", conf)
	}
	// Admins are still notified even when auto-post fires.
	if len(outbox.prompts) != 1 {
		t.Fatalf("prompts = %+v", outbox.prompts)
	}
}

func TestSubmitAutoPostFailureKeepsPending(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{Cooldown: time.Minute})
	outbox.publishErr = fmt.Errorf("channel unreachable")
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}, AutoPost: true, ChannelTarget: "@confessions"}

	res, err := wf.Submit(ctx, settings, SubmitRequest{AuthorID: 5, Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != SubmitAccepted || res.AutoPosted {
		t.Fatalf("result = %+v", res)
	}
	conf, err := st.Confessions.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Status != store.StatusPending {
		t.Fatalf("status = %s", conf.Status)
	}
}

func seedPending(t *testing.T, st *store.Store, number int64, body string) {
	t.Helper()
	if _, err := st.Sequence.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := st.Confessions.Create(context.Background(), store.Confession{
		Number:   number,
		Body:     body,
		AuthorID: 5,
		Status:   store.StatusPending,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDecideApprove(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}, ChannelTarget: "@confessions"}
	seedPending(t, st, 1, "hello world")

	outcome, err := wf.Decide(ctx, settings, DecideRequest{
		ConfNumber: 1,
		Approve:    true,
		ActorID:    100,
		Prompt:     PromptRef{ChatID: 100, MessageID: 42},
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DecideApproved {
		t.Fatalf("outcome = %v", outcome)
	}
	if len(outbox.posts) != 1 || outbox.posts[0].text != "#1\nhello world" {
		t.Fatalf("posts = %+v", outbox.posts)
	}
	conf, _ := st.Confessions.Get(ctx, 1)
	if conf.Status != store.StatusApproved || conf.DecidedBy != "100" {
		t.Fatalf("conf = %+v", conf)
	}
	if len(outbox.edits) != 1 || !strings.HasPrefix(outbox.edits[0], "✅ Approved — Confession #1") {
		t.Fatalf("edits = %+v", outbox.edits)
	}
}

func TestDecideReject(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}}
	seedPending(t, st, 1, "hello")

	outcome, err := wf.Decide(ctx, settings, DecideRequest{
		ConfNumber: 1,
		ActorID:    100,
		Prompt:     PromptRef{ChatID: 100, MessageID: 42},
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DecideRejected {
		t.Fatalf("outcome = %v", outcome)
	}
	if len(outbox.posts) != 0 {
		t.Fatal("rejection published to channel")
	}
	conf, _ := st.Confessions.Get(ctx, 1)
	if conf.Status != store.StatusRejected || conf.DecidedBy != "100" {
		t.Fatalf("conf = %+v", conf)
	}
	if len(outbox.edits) != 1 || !strings.HasPrefix(outbox.edits[0], "❌ Rejected — Confession #1") {
		t.Fatalf("edits = %+v", outbox.edits)
	}
}

func TestDecideGuards(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}}
	seedPending(t, st, 1, "hello")

	cases := []struct {
		name    string
		req     DecideRequest
		outcome DecideOutcome
	}{
		{"not authorized", DecideRequest{ConfNumber: 1, Approve: true, ActorID: 50}, DecideNotAuthorized},
		{"missing id", DecideRequest{Approve: true, ActorID: 100}, DecideMissingID},
		{"not found", DecideRequest{ConfNumber: 99, Approve: true, ActorID: 100}, DecideNotFound},
		{"no channel", DecideRequest{ConfNumber: 1, Approve: true, ActorID: 100}, DecideNoChannel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := wf.Decide(ctx, settings, tc.req)
			if err != nil {
				t.Fatal(err)
			}
			if outcome != tc.outcome {
				t.Fatalf("outcome = %v, want %v", outcome, tc.outcome)
			}
		})
	}

	// None of the guard paths may touch state or the channel.
	conf, _ := st.Confessions.Get(ctx, 1)
	if conf.Status != store.StatusPending {
		t.Fatalf("status = %s", conf.Status)
	}
	if len(outbox.posts) != 0 {
		t.Fatal("guard path published")
	}

	// Rejecting without a channel still works: no publication involved.
	outcome, err := wf.Decide(ctx, settings, DecideRequest{ConfNumber: 1, ActorID: 100})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DecideRejected {
		t.Fatalf("outcome = %v", outcome)
	}
}

func TestDecideAlreadyDecided(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100, 200}, ChannelTarget: "@confessions"}
	seedPending(t, st, 1, "hello")

	if _, err := wf.Decide(ctx, settings, DecideRequest{ConfNumber: 1, Approve: true, ActorID: 100}); err != nil {
		t.Fatal(err)
	}

	// A second decision reports the settled state regardless of direction,
	// and an approve retry must not publish the confession again.
	for _, req := range []DecideRequest{
		{ConfNumber: 1, ActorID: 200},
		{ConfNumber: 1, Approve: true, ActorID: 200},
	} {
		outcome, err := wf.Decide(ctx, settings, req)
		if err != nil {
			t.Fatal(err)
		}
		if outcome != DecideAlreadyDecided {
			t.Fatalf("outcome = %v", outcome)
		}
	}
	if len(outbox.posts) != 1 {
		t.Fatalf("posts = %+v", outbox.posts)
	}
	conf, _ := st.Confessions.Get(ctx, 1)
	if conf.Status != store.StatusApproved || conf.DecidedBy != "100" {
		t.Fatalf("first decision overwritten: %+v", conf)
	}
}

func TestDecidePublishFailureKeepsPending(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{})
	outbox.publishErr = fmt.Errorf("channel unreachable")
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}, ChannelTarget: "@confessions"}
	seedPending(t, st, 1, "hello")

	if _, err := wf.Decide(ctx, settings, DecideRequest{ConfNumber: 1, Approve: true, ActorID: 100}); err == nil {
		t.Fatal("publish failure not surfaced")
	}
	conf, _ := st.Confessions.Get(ctx, 1)
	if conf.Status != store.StatusPending {
		t.Fatalf("status = %s", conf.Status)
	}
}

func TestDecideDefaultChannelFallback(t *testing.T) {
	wf, st, outbox := newTestWorkflow(Config{DefaultChannel: "-1001234"})
	ctx := context.Background()
	settings := store.Settings{Admins: []int64{100}}
	seedPending(t, st, 1, "hello")

	outcome, err := wf.Decide(ctx, settings, DecideRequest{ConfNumber: 1, Approve: true, ActorID: 100})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != DecideApproved {
		t.Fatalf("outcome = %v", outcome)
	}
	if outbox.channel != "-1001234" {
		t.Fatalf("channel = %q", outbox.channel)
	}
}
