package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// desktopLines is how many repository lines fit in a desktop popup
const desktopLines = 4

// DesktopNotifier shows a popup through notify-send or osascript
type DesktopNotifier struct {
	enabled bool
	goos    string
}

// NewDesktopNotifier creates a desktop notifier for the current platform
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled, goos: runtime.GOOS}
}

// Send shows n. Platforms without a known notification tool are ignored.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}
	cmd := desktopCommand(d.goos, n)
	if cmd == nil {
		return nil
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func desktopCommand(goos string, n Notification) *exec.Cmd {
	body := popupBody(n.Message)
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(body), appleScriptString(n.Title))
		return exec.Command("osascript", "-e", script)
	case "linux":
		urgency := "normal"
		if n.Type == NotifyError {
			urgency = "critical"
		}
		return exec.Command("notify-send", "--app-name", "squad-orch", "--urgency", urgency, n.Title, body)
	}
	return nil
}

// popupBody keeps the first lines of a multi-line message
func popupBody(msg string) string {
	lines := strings.Split(msg, "\n")
	if len(lines) <= desktopLines {
		return msg
	}
	more := len(lines) - desktopLines
	return strings.Join(lines[:desktopLines], "\n") + fmt.Sprintf("\n... and %d more", more)
}

func appleScriptString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
