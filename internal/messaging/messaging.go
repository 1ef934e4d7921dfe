// Package messaging composes pre-filled chat deep links and hands them to
// the platform without waiting for a response.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

const baseURL = "https://wa.me/"

// Link returns a deep link opening a composer to phone with text filled in.
// Without a phone number the link opens the share picker instead.
func Link(phone, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return baseURL + digits + "?text=" + escape(text)
}

// escape percent-encodes like a browser's encodeURIComponent, with spaces
// as %20 rather than +.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// InviteMessage is the text sent to someone invited to a family.
func InviteMessage(familyName, inviteCode, appURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi! You've been invited to join %q on Fam Pulse\n\n", familyName)
	fmt.Fprintf(&b, "Your invite code: %s\n\n", inviteCode)
	b.WriteString("Steps to join:\n")
	if appURL != "" {
		fmt.Fprintf(&b, "1. Sign up at: %s\n", appURL)
	} else {
		b.WriteString("1. Sign up for Fam Pulse\n")
	}
	b.WriteString("2. Choose \"Join Family with Code\"\n")
	fmt.Fprintf(&b, "3. Enter code: %s\n\n", inviteCode)
	b.WriteString("Welcome to the family!")
	return b.String()
}

// Opener opens a URL, fire-and-forget.
type Opener interface {
	Open(ctx context.Context, link string) error
}

// CommandOpener runs the platform's URL handler.
type CommandOpener struct {
	Name   string
	Args   []string
	Logger *slog.Logger
}

// NewCommandOpener picks the URL handler for the running OS.
func NewCommandOpener(logger *slog.Logger) *CommandOpener {
	switch runtime.GOOS {
	case "darwin":
		return &CommandOpener{Name: "open", Logger: logger}
	case "windows":
		return &CommandOpener{Name: "rundll32", Args: []string{"url.dll,FileProtocolHandler"}, Logger: logger}
	default:
		return &CommandOpener{Name: "xdg-open", Logger: logger}
	}
}

// Open starts the handler and returns without waiting for it to exit.
func (o *CommandOpener) Open(ctx context.Context, link string) error {
	args := append(append([]string(nil), o.Args...), link)
	cmd := exec.Command(o.Name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", o.Name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			o.Logger.Debug("url handler exited", "command", o.Name, "error", err)
		}
	}()
	return nil
}

// LogOpener only records the link, for headless runs and tests.
type LogOpener struct {
	Logger *slog.Logger

	Opened []string
}

func (o *LogOpener) Open(ctx context.Context, link string) error {
	o.Opened = append(o.Opened, link)
	o.Logger.Info("open link", "url", link)
	return nil
}
