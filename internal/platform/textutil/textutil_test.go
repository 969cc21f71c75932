package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{
		"alice":       "alice",
		"  @alice  ":  "alice",
		"@":           "",
		"   ":         "",
		" @  ":        "",
		"＠alice":      "alice",
		"@alice.shop": "alice.shop",
	}
	for input, want := range cases {
		if got := NormalizeHandle(input); got != want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("  <b>Анна</b>   <script>alert(1)</script>Арт & co ")
	if got != "Анна Арт & co" {
		t.Fatalf("unexpected sanitised text %q", got)
	}
	if SanitizeText("   ") != "" {
		t.Fatalf("expected blank input to stay blank")
	}
}

func TestFormatCompact(t *testing.T) {
	cases := map[int64]string{
		0:         "0",
		999:       "999",
		1000:      "1.0K",
		12345:     "12.3K",
		2_500_000: "2.5M",
	}
	for input, want := range cases {
		if got := FormatCompact(input); got != want {
			t.Errorf("FormatCompact(%d) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatRublesSmallAmount(t *testing.T) {
	if got := FormatRubles(499); got != "499 ₽" {
		t.Fatalf("unexpected formatting %q", got)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" rub ")
	if err != nil || got != "RUB" {
		t.Fatalf("expected RUB, got %q (%v)", got, err)
	}
	if _, err := NormalizeCurrency("rubles"); err == nil {
		t.Fatalf("expected error for invalid code")
	}
}

func TestNormalizeStringMap(t *testing.T) {
	got := NormalizeStringMap(map[string]string{" tariff_id ": " 7 ", "": "x", "empty": " "})
	want := map[string]string{"tariff_id": "7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
	if NormalizeStringMap(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}
