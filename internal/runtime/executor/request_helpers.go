package executor

import "github.com/tidwall/gjson"

// hasVisionContent reports whether any message carries an image part.
func hasVisionContent(body []byte) bool {
	found := false
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		msg.Get("content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "image_url" {
				found = true
			}
			return !found
		})
		return !found
	})
	return found
}

// isAgentCall reports whether the conversation already contains assistant or tool
// turns, which Copilot bills as agent-initiated follow-ups.
func isAgentCall(body []byte) bool {
	found := false
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		switch msg.Get("role").String() {
		case "assistant", "tool":
			found = true
		}
		return !found
	})
	return found
}
