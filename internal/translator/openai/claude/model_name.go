package claude

import "regexp"

// datedSuffix matches the -YYYYMMDD snapshot suffix of Anthropic model ids.
var datedSuffix = regexp.MustCompile(`^(claude-[a-z0-9.-]+?)-\d{8}$`)

// NormalizeModelName maps dated Claude snapshot ids (claude-sonnet-4-20250514) to
// the family id Copilot registers (claude-sonnet-4). Other ids pass through.
func NormalizeModelName(model string) string {
	if m := datedSuffix.FindStringSubmatch(model); m != nil {
		return m[1]
	}
	return model
}
