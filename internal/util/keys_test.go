package util

import (
	"reflect"
	"testing"
)

func TestExpandKey(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		args map[string]string
		want string
	}{
		{"no_placeholders", "auth_service_key", nil, "auth_service_key"},
		{"single", "{username}_list_teams", map[string]string{"username": "ada"}, "ada_list_teams"},
		{"repeated", "{u}:{u}", map[string]string{"u": "x"}, "x:x"},
		{"multiple", "{team}/{user}", map[string]string{"team": "t1", "user": "u1"}, "t1/u1"},
		{"unknown_left_alone", "{missing}_k", map[string]string{"other": "v"}, "{missing}_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandKey(tt.tmpl, tt.args); got != tt.want {
				t.Fatalf("ExpandKey(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{a}_x_{b}{}{c")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Placeholders = %v, want %v", got, want)
	}
}
