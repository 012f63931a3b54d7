package intent

import (
	"testing"
)

func TestClassifyPayment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   float64
		wantOK bool
	}{
		{"plain amount with verb", "I paid 5000 naira", 5000, true},
		{"bare amount with paid", "paid 50", 50, true},
		{"k suffix multiplies", "I sent 1.5k today", 1500, true},
		{"comma grouping", "transferred 25,000 yesterday", 25000, true},
		{"out of range", "I paid 2,000,000", 0, false},
		{"zero amount", "paid 0", 0, false},
		{"verb without amount", "I paid you back", 0, false},
		{"amount without verb", "the meeting is at 5000", 0, false},
		{"phone number not an amount", "call me on 08012345678, I paid", 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Classify(tt.text)
			if tt.wantOK {
				if !ok || got.Kind != Payment {
					t.Fatalf("Classify(%q) = %+v, %v; want payment intent", tt.text, got, ok)
				}
				if got.Amount != tt.want {
					t.Errorf("amount = %v, want %v", got.Amount, tt.want)
				}
				return
			}
			if ok && got.Kind == Payment {
				t.Errorf("Classify(%q) unexpectedly produced payment %+v", tt.text, got)
			}
		})
	}
}

func TestAmountParsingIsStable(t *testing.T) {
	t.Parallel()

	first, ok := Classify("I paid 1.5k")
	if !ok {
		t.Fatal("expected payment intent")
	}
	second, ok := Classify("I paid 1500")
	if !ok {
		t.Fatal("expected payment intent")
	}
	if first.Amount != second.Amount {
		t.Errorf("parse not stable: %v vs %v", first.Amount, second.Amount)
	}
}

func TestClassifyNameUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"my name is", "my name is Amina Bello", "Amina Bello", true},
		{"call me", "please call me Tunde", "Tunde", true},
		{"blacklisted user", "my name is user", "", false},
		{"blacklisted unknown", "call me Unknown", "", false},
		{"too short", "call me Al", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Classify(tt.text)
			if tt.wantOK {
				if !ok || got.Kind != NameUpdate {
					t.Fatalf("Classify(%q) = %+v, %v; want name_update", tt.text, got, ok)
				}
				if got.Name != tt.want {
					t.Errorf("name = %q, want %q", got.Name, tt.want)
				}
				return
			}
			if ok && got.Kind == NameUpdate {
				t.Errorf("Classify(%q) unexpectedly produced name_update %+v", tt.text, got)
			}
		})
	}
}

func TestClassifyGroupIntents(t *testing.T) {
	t.Parallel()

	got, ok := Classify("create a group called Savers Circle")
	if !ok || got.Kind != CreateGroup || got.GroupName != "Savers Circle" {
		t.Fatalf("create: got %+v, %v", got, ok)
	}

	got, ok = Classify("set up a community named Umoja")
	if !ok || got.Kind != CreateGroup || got.GroupName != "Umoja" {
		t.Fatalf("set up: got %+v, %v", got, ok)
	}

	got, ok = Classify("join group Savers Circle")
	if !ok || got.Kind != JoinGroup || got.GroupName != "Savers Circle" {
		t.Fatalf("join: got %+v, %v", got, ok)
	}

	if got, ok := Classify("create a group called   "); ok {
		t.Fatalf("empty group name should not classify, got %+v", got)
	}
}

func TestClassifyLeaderCommands(t *testing.T) {
	t.Parallel()

	got, ok := Classify("confirm payment a1b2c3d4")
	if !ok || got.Kind != LeaderConfirmPayment || got.PaymentRef != "a1b2c3d4" {
		t.Fatalf("confirm: got %+v, %v", got, ok)
	}

	got, ok = Classify("  Reject Payment a1b2c3d4  ")
	if !ok || got.Kind != LeaderRejectPayment || got.PaymentRef != "a1b2c3d4" {
		t.Fatalf("reject: got %+v, %v", got, ok)
	}
}

func TestClassifyAmbiguousTextReturnsNone(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"hello",
		"how much do I owe?",
		"when is the next cycle?",
		"",
	} {
		if got, ok := Classify(text); ok {
			t.Errorf("Classify(%q) = %+v, want none", text, got)
		}
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	t.Parallel()

	// A message matching both payment and name rules resolves as payment.
	got, ok := Classify("this is Amina, I paid 2000")
	if !ok || got.Kind != Payment {
		t.Fatalf("got %+v, %v; want payment to win", got, ok)
	}
}
