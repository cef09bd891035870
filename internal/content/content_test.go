package content

import (
	"errors"
	"strings"
	"testing"

	"palaver/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello <b>World</b>"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	html, err := RenderMarkdown("**hi** <script>alert(1)</script>")
	if err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	if !strings.Contains(html, "<strong>hi</strong>") {
		t.Errorf("expected bold text, got %q", html)
	}
	if strings.Contains(html, "<script") {
		t.Errorf("script survived rendering: %q", html)
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name     string
		input    models.MessageContent
		wantText string
		wantType models.ContentType
		wantHTML bool
		wantErr  bool
	}{
		{"Default type", models.MessageContent{Text: " hello "}, "hello", models.ContentTypeText, false, false},
		{"Script stripped", models.MessageContent{Text: "<script>x</script>hi", Type: models.ContentTypeText}, "hi", models.ContentTypeText, false, false},
		{"Markdown", models.MessageContent{Text: "*hi*", Type: models.ContentTypeMarkdown}, "*hi*", models.ContentTypeMarkdown, true, false},
		{"Empty", models.MessageContent{Text: "   "}, "", "", false, true},
		{"Unknown type", models.MessageContent{Text: "hi", Type: "video"}, "", "", false, true},
		{"Image without file", models.MessageContent{Type: models.ContentTypeImage}, "", "", false, true},
		{"Image with file", models.MessageContent{Type: models.ContentTypeImage, File: &models.FileRef{URL: "/f/1.png"}}, "", models.ContentTypeImage, false, false},
		{"Too long", models.MessageContent{Text: strings.Repeat("a", MaxTextLength+1)}, "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prepare(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Prepare() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, models.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
				return
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if (got.HTML != "") != tt.wantHTML {
				t.Errorf("HTML = %q, wantHTML %v", got.HTML, tt.wantHTML)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid alphanumeric", "user123", false},
		{"Valid with dot", "user.name", false},
		{"Valid with dash", "user-name", false},
		{"Valid with underscore", "user_name", false},
		{"Invalid space", "user name", true},
		{"Invalid special char", "user@name", true},
		{"Invalid script", "<script>", true},
		{"Empty", "", true},
		{"Mixed case", "User.Name-123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateUsername(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUsernameFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"alice", "alice"},
		{"auth0|5f1c2a", "auth0_5f1c2a"},
		{"jane.doe@example.com", "jane.doe"},
		{"google-oauth2|1234", "google-oauth2_1234"},
		{"@handle", "_handle"},
		{"Zoë", "Zo_"},
		{"", "user"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := UsernameFrom(tt.input)
			if got != tt.want {
				t.Errorf("UsernameFrom(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if err := ValidateUsername(got); err != nil {
				t.Errorf("derived username %q is invalid: %v", got, err)
			}
		})
	}
}
