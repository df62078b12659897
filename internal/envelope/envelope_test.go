package envelope

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "Hello world", "Hello world"},
		{"utf8 q-encoded", "=?UTF-8?Q?Gr=C3=BC=C3=9Fe?=", "Grüße"},
		{"utf8 b-encoded", "=?utf-8?B?SGVsbG8g8J+Niw==?=", "Hello 🍋"},
		{"iso-8859-1", "=?ISO-8859-1?Q?caf=E9?=", "café"},
		{"mixed text", "Re: =?UTF-8?Q?=C3=A5?= test", "Re: å test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeHeader(tt.in); got != tt.want {
				t.Errorf("DecodeHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeHeaderMalformedPassesThrough(t *testing.T) {
	in := "=?UTF-8?Q?truncated"
	if got := DecodeHeader(in); got != in {
		t.Errorf("DecodeHeader(%q) = %q, want input unchanged", in, got)
	}
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		mailbox string
		host    string
		want    string
	}{
		{"alice", "example.com", "alice@example.com"},
		{"", "example.com", None},
		{"alice", "", None},
		{"", "", None},
	}

	for _, tt := range tests {
		if got := FormatAddress(tt.mailbox, tt.host); got != tt.want {
			t.Errorf("FormatAddress(%q, %q) = %q, want %q", tt.mailbox, tt.host, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	e := Envelope{
		Subject:   "  Weekly report  ",
		From:      "alice@example.com",
		To:        "bob@example.com",
		Date:      time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		MessageID: "<x@example.com>",
	}
	want := "2024.03.15 09.30.00 - Weekly report - alice@example.com - bob@example.com"
	if got := e.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestDescribeMissingDate(t *testing.T) {
	e := Envelope{Subject: "hi", From: "a@x.com", To: None}
	got := e.Describe()
	if !strings.HasPrefix(got, None+" - ") {
		t.Errorf("Describe() = %q, want NONE date placeholder", got)
	}
}
