package notify

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/arakabCL/TheNotch/internal/logger"
)

// Sink accepts "show alert" calls; the stager never talks to the display
// surface directly.
type Sink interface {
	Post(title, body, identifier, url string) error
}

// OsaScriptSink posts macOS notification-center alerts via osascript.
type OsaScriptSink struct{}

func NewOsaScriptSink() *OsaScriptSink {
	return &OsaScriptSink{}
}

func (s *OsaScriptSink) Post(title, body, identifier, url string) error {
	script := fmt.Sprintf("display notification %s with title %s",
		osaQuote(body), osaQuote(title))

	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript failed: %w, output: %s", err, string(output))
	}

	logger.Debug("notification posted", "identifier", identifier, "title", title, "url", url)
	return nil
}

// osaQuote escapes a string for inclusion in an AppleScript literal.
func osaQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
