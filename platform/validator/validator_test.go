package validator

import (
	"errors"
	"testing"
)

type inbound struct {
	Sender string `json:"sender" validate:"required,e164able"`
	Mode   string `form:"mode" validate:"omitempty,oneof=recent historical"`
}

func TestE164AbleTag(t *testing.T) {
	v := New()
	cases := []struct {
		in    string
		valid bool
	}{
		{"+525566752552", true},
		{"5566752552", true},
		{"whatsapp:+573162892694", true},
		{"hola", false},
		{"", false},
	}
	for _, tc := range cases {
		err := v.Var(tc.in, "required,e164able")
		if (err == nil) != tc.valid {
			t.Errorf("%q: expected valid=%v, got err=%v", tc.in, tc.valid, err)
		}
	}
}

func TestFieldsUsesTagNames(t *testing.T) {
	err := New().Struct(inbound{Sender: "nope", Mode: "weekly"})
	got := Fields(err)
	if got["sender"] != "e164able" || got["mode"] != "oneof" {
		t.Fatalf("unexpected fields: %v", got)
	}
	if Fields(errors.New("other")) != nil {
		t.Fatal("non-validation errors must yield nil")
	}
}
