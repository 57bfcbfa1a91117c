package agents

import (
	"path/filepath"
	"strings"

	"github.com/kingrea/layers/internal/roster"
)

// LaunchCommand composes the line typed into a fresh worker session:
// the entry program, its system prompt file, and the permission flag.
func LaunchCommand(projectDir, defaultEntry string, w roster.WorkerConfig) string {
	entry := strings.TrimSpace(w.EntryCommand)
	if entry == "" {
		entry = defaultEntry
	}
	parts := []string{entry}
	if w.PromptFile != "" {
		prompt := w.PromptFile
		if !filepath.IsAbs(prompt) {
			prompt = filepath.Join(projectDir, prompt)
		}
		parts = append(parts, `--system-prompt-file "`+prompt+`"`)
	}
	switch w.PermissionMode {
	case roster.PermissionAcceptEdits:
		parts = append(parts, "--permission-mode acceptEdits")
	case roster.PermissionDangerouslySkip:
		parts = append(parts, "--dangerously-skip-permissions")
	}
	return strings.Join(parts, " ")
}
