package extract

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFirstObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"prose prefix", `Sure! {"predictions":[]}`, `{"predictions":[]}`, false},
		{"prose suffix", "{\"a\":1}\nHope this helps {smile}", `{"a":1}`, false},
		{"markdown fence", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, false},
		{"brace in string", `{"note":"use } carefully","n":1} trailing`, `{"note":"use } carefully","n":1}`, false},
		{"escaped quote", `{"q":"say \"}\" now"}`, `{"q":"say \"}\" now"}`, false},
		{"invalid first, valid later", `{not json} then {"ok":true}`, `{"ok":true}`, false},
		{"nested invalid outer", `{oops {"inner":1}`, `{"inner":1}`, false},
		{"opener inside unterminated string", `{"a{"b":1}`, `{"b":1}`, false},
		{"stray closer", `} {"a":1}`, `{"a":1}`, false},
		{"no braces", "I cannot help with that.", "", true},
		{"unbalanced", `{"a":1`, "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstObject(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrNoStructuredData) {
					t.Fatalf("expected ErrNoStructuredData, got %v (%s)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFirstObject_UnbalancedInputIsLinear(t *testing.T) {
	inputs := map[string]string{
		"openers":         strings.Repeat("{", 1<<20),
		"nested keys":     strings.Repeat(`{"a":`, 1<<17),
		"quoted openers":  strings.Repeat(`{"{"`, 1<<18),
		"invalid objects": strings.Repeat("{x}", 1<<18),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, err := FirstObject(in)
			if !errors.Is(err, ErrNoStructuredData) {
				t.Fatalf("expected ErrNoStructuredData, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Fatalf("took %v on %d bytes", elapsed, len(in))
			}
		})
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Predictions []struct {
			Category string `json:"category"`
		} `json:"predictions"`
	}
	if err := Decode(`Sure! {"predictions":[]}`, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Predictions == nil || len(v.Predictions) != 0 {
		t.Fatalf("expected empty predictions, got %+v", v.Predictions)
	}

	var wrongShape struct {
		Predictions int `json:"predictions"`
	}
	if err := Decode(`{"predictions":[1]}`, &wrongShape); !errors.Is(err, ErrNoStructuredData) {
		t.Fatalf("expected ErrNoStructuredData for wrong shape, got %v", err)
	}
}
