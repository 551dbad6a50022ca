package config

// CategoryWeights orders command categories in /help.
var CategoryWeights = map[string]int{
	"🕯️ Information": 0,
	"🛡️ Antinuke":    10,
	"⛓️ Moderation":  20,
	"🎉 Events":       30,
}
