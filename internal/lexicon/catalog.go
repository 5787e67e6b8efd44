package lexicon

import (
	"strings"

	"github.com/BTreeMap/GPTPipe/internal/genai"
)

// Topic is a quiz topic.
type Topic struct {
	Key         string
	Name        string
	Description string
}

// Topics in menu order.
var Topics = []Topic{
	{"science", "🔬 Science & Nature", "Physics, chemistry, biology, astronomy"},
	{"history", "📚 History", "World history, famous events and personalities"},
	{"geography", "🌍 Geography", "Countries, capitals, landmarks, nature"},
	{"technology", "💻 Technology", "IT, programming, gadgets, innovations"},
	{"arts", "🎨 Arts & Culture", "Literature, music, movies, painting"},
	{"sports", "⚽ Sports", "Various sports, athletes, championships"},
	{"general", "🧠 General Knowledge", "Mixed topics, trivia, common facts"},
}

// TopicByKey looks up a quiz topic.
func TopicByKey(key string) (Topic, bool) {
	for _, t := range Topics {
		if t.Key == key {
			return t, true
		}
	}
	return Topic{}, false
}

// Persona is a famous personality the user can chat with.
type Persona struct {
	Key    string
	Name   string
	Button string
	Prompt string
}

// Personas in menu order.
var Personas = []Persona{
	{
		Key: "einstein", Name: "🧠 Albert Einstein", Button: "🧠 Einstein",
		Prompt: "You are Albert Einstein. Respond as the famous physicist would, with curiosity about the universe, deep scientific insights, and philosophical reflections. Use his characteristic thoughtful and sometimes playful manner of speaking.",
	},
	{
		Key: "shakespeare", Name: "🎭 William Shakespeare", Button: "🎭 Shakespeare",
		Prompt: "You are William Shakespeare. Respond in the eloquent, poetic style of the great playwright. Use rich metaphors, occasional Early Modern English phrases, and dramatic flair while discussing any topic.",
	},
	{
		Key: "jobs", Name: "💡 Steve Jobs", Button: "💡 Steve Jobs",
		Prompt: "You are Steve Jobs. Respond with passion for innovation, simplicity, and perfect design. Be direct, visionary, and sometimes challenging. Focus on thinking different and pushing boundaries.",
	},
	{
		Key: "leonardo", Name: "🎨 Leonardo da Vinci", Button: "🎨 Leonardo da Vinci",
		Prompt: "You are Leonardo da Vinci. Respond as the Renaissance genius would, with curiosity about everything - art, science, engineering, nature. Show your inventive spirit and artistic sensibility.",
	},
	{
		Key: "socrates", Name: "🏛️ Socrates", Button: "🏛️ Socrates",
		Prompt: "You are Socrates. Respond by asking probing questions to help people think deeper about their beliefs and assumptions. Use the Socratic method to guide conversations toward wisdom and self-knowledge.",
	},
}

// PersonaByKey looks up a persona.
func PersonaByKey(key string) (Persona, bool) {
	for _, p := range Personas {
		if p.Key == key {
			return p, true
		}
	}
	return Persona{}, false
}

// Language is a translation target.
type Language struct {
	Code   string
	Name   string
	Button string
}

// Languages offered by the translator.
var Languages = []Language{
	{"de", "German", "🇩🇪 German"},
	{"ja", "Japanese", "🇯🇵 Japanese"},
	{"fr", "French", "🇫🇷 French"},
}

// LanguageByCode looks up a translator language.
func LanguageByCode(code string) (Language, bool) {
	for _, l := range Languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// VocabularyLanguage is the language of the words taught by the vocabulary trainer.
const VocabularyLanguage = "en"

// Command is an entry of the transport's command menu.
type Command struct {
	Name        string
	Description string
}

// Commands registered with the transport at startup.
var Commands = []Command{
	{"start", "🚀 Start the bot and show main menu"},
	{"help", "❓ Get help and instructions"},
	{"gpt", "🤖 Ask ChatGPT directly"},
	{"random", "🎲 Get a random fact"},
	{"talk", "💬 Talk to Famous Personalities"},
	{"quiz", "🎯 Take a Quiz"},
	{"translate", "🌍 Translate text"},
	{"image", "🖼 Describe an image"},
	{"vocabulary", "📚 Vocabulary trainer"},
	{"stats", "📊 Your statistics"},
}

// Apology returns the fixed user-visible text for a gateway failure.
func Apology(kind genai.ErrorKind) string {
	switch kind {
	case genai.RateLimited:
		return "⏳ The AI service is busy right now. Please wait a moment and try again."
	case genai.AuthFailed:
		return "🔒 The AI service is not available at the moment. Please try again later."
	case genai.TransientAPIError:
		return "⚠️ The AI service had a temporary problem. Please try again."
	default:
		return "❌ Sorry, I couldn't get a response. Please try again."
	}
}

// IsAffirmative reports whether a grading reply means "correct": "True", in any case,
// surrounded by whitespace and optionally followed by a period.
func IsAffirmative(reply string) bool {
	r := strings.ToLower(strings.TrimSpace(reply))
	r = strings.TrimSuffix(r, ".")
	return r == "true"
}

// ParseNewWord splits a "WORD | TRANSLATION | EXAMPLE" reply. ok is false unless there are
// exactly three non-empty parts.
func ParseNewWord(reply string) (word, translation, example string, ok bool) {
	parts := strings.Split(reply, "|")
	if len(parts) != 3 {
		return "", "", "", false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], true
}
