package domain

import (
	"encoding/json"
	"testing"
)

func TestOptionalIDDistinguishesAbsentFromNull(t *testing.T) {
	var payload struct {
		UserID  OptionalID `json:"userId"`
		QueueID OptionalID `json:"queueId"`
		Other   OptionalID `json:"whatsappId"`
	}
	if err := json.Unmarshal([]byte(`{"userId":null,"queueId":"7"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !payload.UserID.IsNull() {
		t.Fatalf("expected userId to be explicit null, got %+v", payload.UserID)
	}
	if !payload.QueueID.Set || payload.QueueID.Value == nil || *payload.QueueID.Value != 7 {
		t.Fatalf("expected queueId 7, got %+v", payload.QueueID)
	}
	if payload.Other.Set {
		t.Fatalf("expected whatsappId to be absent")
	}
}

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"+55 (11) 99999-0000": "5511999990000",
		"0044 20 1234":        "44201234",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizeNumber(in); got != want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTicketStatusActive(t *testing.T) {
	if !TicketStatusPending.Active() || !TicketStatusOpen.Active() {
		t.Fatal("pending and open must be active")
	}
	if TicketStatusClosed.Active() {
		t.Fatal("closed must not be active")
	}
	if TicketStatus("archived").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
