package templates

import (
	"strings"

	"coinalerts/internal/notify"
	"coinalerts/internal/watch"
)

// visuals carries the condition-specific presentation fragments substituted
// into email and SMS bodies.
type visuals struct {
	Emoji string
	Text  string
	Color string
}

func conditionVisuals(c watch.Condition) visuals {
	switch c {
	case watch.ConditionAbove:
		return visuals{Emoji: "📈", Text: "risen above", Color: "#16a34a"}
	case watch.ConditionBelow:
		return visuals{Emoji: "📉", Text: "dropped below", Color: "#dc2626"}
	case watch.ConditionEquals:
		return visuals{Emoji: "🎯", Text: "reached", Color: "#2563eb"}
	default:
		return visuals{Emoji: "🔔", Text: "met", Color: "#6b7280"}
	}
}

// Render substitutes ${token} placeholders in a template body with values from
// the notification and recipient. Unknown placeholders are left as-is.
func Render(body string, n notify.Notification, userName string) string {
	v := conditionVisuals(n.Condition)
	replacer := strings.NewReplacer(
		"${userName}", userName,
		"${cryptoName}", n.AssetName,
		"${cryptoId}", n.AssetID,
		"${cryptoImage}", n.AssetImage,
		"${thresholdValue}", n.Threshold.String(),
		"${currentPrice}", n.ObservedPrice.String(),
		"${conditionEmoji}", v.Emoji,
		"${conditionText}", v.Text,
		"${conditionColor}", v.Color,
	)
	return replacer.Replace(body)
}
