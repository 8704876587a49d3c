package domain

import (
	"strings"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusSending, true},
		{StatusPending, StatusCanceled, true},
		{StatusPending, StatusDelivered, false},
		{StatusSending, StatusDelivered, true},
		{StatusSending, StatusRetrying, true},
		{StatusSending, StatusFailed, true},
		{StatusSending, StatusCanceled, false},
		{StatusRetrying, StatusSending, true},
		{StatusRetrying, StatusFailed, true},
		{StatusRetrying, StatusCanceled, true},
		{StatusDelivered, StatusSending, false},
		{StatusFailed, StatusSending, false},
		{StatusCanceled, StatusSending, false},
	}

	for _, tc := range testCases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusDelivered, StatusFailed, StatusCanceled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []Status{StatusPending, StatusSending, StatusRetrying}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	ch, err := ParseChannelFromString(" in_app ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch != ChannelInApp {
		t.Fatalf("channel = %s, want IN_APP", ch)
	}

	if _, err := ParseChannelFromString("carrier-pigeon"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestChannelDefaults(t *testing.T) {
	t.Parallel()

	if !ChannelInApp.DefaultEnabled() {
		t.Error("in-app should be enabled by default")
	}
	if ChannelEmail.DefaultEnabled() {
		t.Error("email should be opt-in")
	}
	if ChannelPush.DefaultEnabled() {
		t.Error("push should be opt-in")
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	valid := Notification{
		RecipientID: "user-1",
		Category:    CategoryMention,
		Title:       "You were mentioned",
		Body:        "alice mentioned you in a post",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(n *Notification)
	}{
		{"missing recipient", func(n *Notification) { n.RecipientID = " " }},
		{"invalid category", func(n *Notification) { n.Category = "NOISE" }},
		{"missing title", func(n *Notification) { n.Title = "" }},
		{"oversized title", func(n *Notification) { n.Title = strings.Repeat("a", MaxTitleLength+1) }},
		{"oversized body", func(n *Notification) { n.Body = strings.Repeat("b", MaxBodyLength+1) }},
		{"invalid payload", func(n *Notification) { n.Payload = []byte("{not-json") }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := valid
			tc.mutate(&n)
			if err := n.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestResolveChannels(t *testing.T) {
	t.Parallel()

	t.Run("defaults only", func(t *testing.T) {
		t.Parallel()

		got := ResolveChannels(nil)
		if len(got) != 1 || got[0] != ChannelInApp {
			t.Fatalf("channels = %v, want [IN_APP]", got)
		}
	})

	t.Run("explicit rows override defaults", func(t *testing.T) {
		t.Parallel()

		prefs := []NotificationPreference{
			{RecipientID: "r", Category: CategoryMention, Channel: ChannelEmail, Enabled: true},
			{RecipientID: "r", Category: CategoryMention, Channel: ChannelPush, Enabled: false},
			{RecipientID: "r", Category: CategoryMention, Channel: ChannelInApp, Enabled: true},
		}
		got := ResolveChannels(prefs)
		if len(got) != 2 {
			t.Fatalf("channels = %v, want email and in-app", got)
		}
		if got[0] != ChannelEmail || got[1] != ChannelInApp {
			t.Fatalf("channels = %v, want [EMAIL IN_APP]", got)
		}
	})

	t.Run("all disabled", func(t *testing.T) {
		t.Parallel()

		prefs := []NotificationPreference{
			{RecipientID: "r", Category: CategorySystem, Channel: ChannelInApp, Enabled: false},
		}
		if got := ResolveChannels(prefs); len(got) != 0 {
			t.Fatalf("channels = %v, want empty", got)
		}
	})
}

func TestEventRecipientIdempotencyKey(t *testing.T) {
	t.Parallel()

	key := "comment-42"
	e := Event{DedupeKey: &key}
	got := e.RecipientIdempotencyKey("user-7")
	if got == nil || *got != "comment-42:user-7" {
		t.Fatalf("idempotency key = %v, want comment-42:user-7", got)
	}

	var noKey Event
	if noKey.RecipientIdempotencyKey("user-7") != nil {
		t.Fatal("expected nil key without dedupe key")
	}
}
