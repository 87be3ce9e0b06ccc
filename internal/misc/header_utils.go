// Package misc holds small helpers shared by the Copilot client and the
// credential manager: the editor header set and the VS Code version lookup.
package misc

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	CopilotChatVersion = "0.26.7"
	GitHubAPIVersion   = "2025-04-01"
	CopilotIntegration = "vscode-chat"
)

// EnsureHeader ensures that a header exists in the target header map by checking
// multiple sources in order of priority: source headers, existing target headers,
// and finally the default value. It only sets the header if it's not already present
// and the value is not empty after trimming whitespace.
func EnsureHeader(target http.Header, source http.Header, key, defaultValue string) {
	if target == nil {
		return
	}
	if source != nil {
		if val := strings.TrimSpace(source.Get(key)); val != "" {
			target.Set(key, val)
			return
		}
	}
	if strings.TrimSpace(target.Get(key)) != "" {
		return
	}
	if val := strings.TrimSpace(defaultValue); val != "" {
		target.Set(key, val)
	}
}

// ApplyGitHubHeaders sets the headers GitHub's API expects from the Copilot Chat extension.
func ApplyGitHubHeaders(h http.Header, githubToken, vsCodeVersion string) {
	h.Set("Authorization", "token "+githubToken)
	h.Set("Accept", "application/json")
	applyEditorHeaders(h, vsCodeVersion)
}

// ApplyCopilotHeaders sets the headers of a Copilot API call. vision marks
// requests that carry image parts. A preset X-Request-Id is kept.
func ApplyCopilotHeaders(h http.Header, sessionToken, vsCodeVersion string, vision bool) {
	h.Set("Authorization", "Bearer "+sessionToken)
	h.Set("Content-Type", "application/json")
	h.Set("Copilot-Integration-Id", CopilotIntegration)
	h.Set("Openai-Intent", "conversation-panel")
	EnsureHeader(h, nil, "X-Request-Id", uuid.NewString())
	applyEditorHeaders(h, vsCodeVersion)
	if vision {
		h.Set("Copilot-Vision-Request", "true")
	}
}

func applyEditorHeaders(h http.Header, vsCodeVersion string) {
	h.Set("Editor-Version", "vscode/"+vsCodeVersion)
	h.Set("Editor-Plugin-Version", "copilot-chat/"+CopilotChatVersion)
	h.Set("User-Agent", "GitHubCopilotChat/"+CopilotChatVersion)
	h.Set("X-Github-Api-Version", GitHubAPIVersion)
	h.Set("X-Vscode-User-Agent-Library-Version", "electron-fetch")
}
