package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLoginError(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "class marker",
			html:     `<html><body><div class="login-error">Invalid email or password</div></body></html>`,
			expected: "Invalid email or password",
		},
		{
			name:     "alert role",
			html:     `<html><body><p role="alert">Your account has been locked</p></body></html>`,
			expected: "Your account has been locked",
		},
		{
			name:     "flash id with nested markup",
			html:     `<html><body><div id="flash-message"><span>Too many</span> <b>attempts</b></div></body></html>`,
			expected: "Too many attempts",
		},
		{
			name:     "first candidate wins",
			html:     `<html><body><div class="alert">first</div><div class="error">second</div></body></html>`,
			expected: "first",
		},
		{
			name:     "empty candidate skipped",
			html:     `<html><body><div class="error"></div><div class="alert">real message</div></body></html>`,
			expected: "real message",
		},
		{
			name:     "no candidates",
			html:     `<html><body><form><input type="email"></form></body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractLoginError(tt.html))
		})
	}
}

func TestExtractLoginError_TruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", 400)
	result := ExtractLoginError(`<div class="error">` + long + `</div>`)
	assert.Len(t, result, 200)
}
