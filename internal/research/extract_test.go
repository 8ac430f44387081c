package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `Sure! Here you go: {"a":{"b":[1,2]}} Hope this helps.`, `{"a":{"b":[1,2]}}`, true},
		{"code fence", "```json\n{\"prospects\":[]}\n```", `{"prospects":[]}`, true},
		{"braces in strings", `{"s":"a } tricky { value","n":1}`, `{"s":"a } tricky { value","n":1}`, true},
		{"escaped quote", `{"s":"say \"hi\" }"}`, `{"s":"say \"hi\" }"}`, true},
		{"bracketed prose first", `See [note] below. ["Axon","Motorola"]`, `["Axon","Motorola"]`, true},
		{"first of two", `{"a":1} and {"b":2}`, `{"a":1}`, true},
		{"invalid then valid", `{not json} {"ok":true}`, `{"ok":true}`, true},
		{"truncated", `{"a": [1, 2`, "", false},
		{"no json", `I could not find any prospects.`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
