package model

// Categories are the leaderboard scopes a user or project can belong to.
var Categories = []string{
	"web-development",
	"mobile-app",
	"ai-ml",
	"data-science",
	"blockchain",
	"iot",
	"cybersecurity",
	"other",
}

// ValidCategory reports whether c is empty (no category) or a known one.
func ValidCategory(c string) bool {
	if c == "" {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
