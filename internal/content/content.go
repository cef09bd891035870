package content

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"palaver/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MaxTextLength is the maximum message text length in runes.
const MaxTextLength = 4000

var (
	policy        = bluemonday.UGCPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	markdown      = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMarkdown converts markdown to HTML and sanitizes the result.
func RenderMarkdown(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// Prepare normalizes message content before it is stored:
// the type defaults to text, text is sanitized and markdown is rendered to HTML.
func Prepare(c models.MessageContent) (models.MessageContent, error) {
	if c.Type == "" {
		c.Type = models.ContentTypeText
	}

	switch c.Type {
	case models.ContentTypeText, models.ContentTypeMarkdown:
		c.File = nil
	case models.ContentTypeImage, models.ContentTypeFile:
		if c.File == nil || c.File.URL == "" {
			return models.MessageContent{}, fmt.Errorf("%w: %s message requires a file", models.ErrValidation, c.Type)
		}
	default:
		return models.MessageContent{}, fmt.Errorf("%w: unknown content type %q", models.ErrValidation, c.Type)
	}

	text := strings.TrimSpace(c.Text)
	if utf8.RuneCountInString(text) > MaxTextLength {
		return models.MessageContent{}, fmt.Errorf("%w: message is longer than %d characters", models.ErrValidation, MaxTextLength)
	}
	if text == "" && c.File == nil {
		return models.MessageContent{}, fmt.Errorf("%w: message is empty", models.ErrValidation)
	}

	c.HTML = ""
	if c.Type == models.ContentTypeMarkdown {
		html, err := RenderMarkdown(text)
		if err != nil {
			return models.MessageContent{}, err
		}
		c.HTML = html
	}
	c.Text = Sanitize(text)
	return c, nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}

// UsernameFrom derives a valid username from an identity provider id.
// Emails keep their local part; any other disallowed rune becomes an underscore.
func UsernameFrom(externalID string) string {
	if at := strings.LastIndex(externalID, "@"); at > 0 {
		externalID = externalID[:at]
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, externalID)
	if name == "" {
		return "user"
	}
	return name
}
