package lexicon

import (
	"fmt"
	"html"
	"strings"

	"github.com/BTreeMap/GPTPipe/internal/models"
)

// Welcome greets the user by name when one is known.
func Welcome(username string) string {
	hello := "👋 Hello!"
	if username != "" {
		hello = fmt.Sprintf("👋 Hello, %s!", html.EscapeString(username))
	}
	return hello + "\n\n" +
		"🤖 Welcome to the ChatGPT Bot.\n" +
		"💬 How can I help you today?\n" +
		"📚 Here you can ask questions and get answers from ChatGPT.\n" +
		"⬇️ Use the menu below to get started:"
}

const (
	MainMenuText = "👋 Welcome back to the ChatGPT Bot!\n\n" +
		"💬 How can I help you today?\n" +
		"📚 Here you can ask questions and get answers from ChatGPT.\n" +
		"⬇️ Use the menu below to get started:"

	HelpText = "<b>🤖 ChatGPT Bot Help</b>\n\n" +
		"🔹<b> Available commands:</b>\n" +
		"/start - Start the bot and show main menu\n" +
		"/help - Show this help message\n" +
		"/random - Get a random fact\n" +
		"/gpt - Ask ChatGPT directly\n" +
		"/talk - Talk to famous personalities\n" +
		"/quiz - Take a quiz\n" +
		"/translate - Translate text\n" +
		"/image - Describe an image\n" +
		"/vocabulary - Vocabulary trainer\n" +
		"/stats - Your statistics\n\n" +
		"💡 <b>How to use:</b>\n" +
		"Use the menu buttons for easy navigation or type commands directly."

	SessionExpiredText = "⚠️ Session expired. Please start again from the main menu."
	GenericErrorText   = "❌ An error occurred. Please try again."
	FallbackText       = "🤔 I'm not sure what you mean. Use /start to open the main menu."
	ThinkingText       = "🤔 Thinking..."
)

// Direct Q&A.
const (
	GPTIntroText = "🤖 <b>ChatGPT Interface</b>\n\n" +
		"Ask me anything! I'll send your question directly to ChatGPT.\n\n" +
		"💡 Examples:\n" +
		"• Explain quantum physics simply\n" +
		"• Write a poem about cats\n" +
		"• Help me with Python code\n\n" +
		"📝 Type your question below:"
	GPTAskAnotherText = "🤖 <b>Ask Another Question</b>\n\n" +
		"What would you like to know next?\n\n" +
		"📝 Type your question below:"
	GPTNeedTextText   = "❌ Please send a text question.\nTry again or use /start to return to main menu."
	GPTProcessingText = "⏳ Processing your question..."
	GPTCancelledText  = "❌ ChatGPT session cancelled.\n\n👋 Welcome back to the main menu!"
)

// GPTAnswer formats a model answer.
func GPTAnswer(answer string) string {
	return "🤖 <b>ChatGPT Response:</b>\n\n" + html.EscapeString(answer)
}

// Random fact.
const RandomFactWaitText = "⏳ Generating a random fact..."

// RandomFact formats a fact.
func RandomFact(fact string) string {
	return "📜 " + html.EscapeString(fact)
}

// Persona chat.
const (
	TalkMenuText = "💬 <b>Talk to Famous Personalities</b>\n\n" +
		"Choose who you'd like to have a conversation with:\n\n" +
		"🧠 <b>Einstein</b> - Discuss physics and universe\n" +
		"🎭 <b>Shakespeare</b> - Explore literature and life\n" +
		"💡 <b>Steve Jobs</b> - Talk innovation and design\n" +
		"🎨 <b>Leonardo</b> - Renaissance art and science\n" +
		"🏛️ <b>Socrates</b> - Philosophical discussions\n\n" +
		"Select a personality below:"
	ChangePersonaText  = "💬 <b>Choose New Personality</b>\n\nSelect who you'd like to talk with:"
	EndChatText        = "👋 <b>Conversation Ended</b>\n\nThank you for chatting! You can start a new conversation anytime.\n\nWelcome back to the main menu:"
	UnknownPersonaText = "❌ Unknown personality selected."
	PersonaNeedText    = "Please send a text message to continue the conversation."
)

// NowChatting announces the selected persona.
func NowChatting(personaName string) string {
	return fmt.Sprintf("✨ <b>Now chatting with %s</b>\n\n"+
		"Start your conversation! Ask anything you'd like to discuss.\n\n"+
		"💭 Type your message below:", personaName)
}

// PersonaReply formats a persona's answer.
func PersonaReply(personaName, reply string) string {
	return fmt.Sprintf("💬 <b>%s:</b>\n\n%s", personaName, html.EscapeString(reply))
}

// Quiz.
const (
	QuizIntroText        = "<b>Quiz time!</b>\n\nPlease, choose a topic for the quiz:"
	QuizAnotherTopicText = "Please choose another topic:"
	QuizInvalidTopicText = "⚠️ Invalid topic selected."
	QuizNeedTextText     = "Please provide a text answer."
	QuizCheckingText     = "⏳ Processing your answer..."
	QuizNextText         = "What would you like to do next?"
	QuizCancelledText    = "❌ Quiz cancelled.\n\n👋 Welcome back to the main menu!"
)

// QuizTopicChosen confirms the topic.
func QuizTopicChosen(topicName string) string {
	return fmt.Sprintf("You have chosen the topic: %s\n\nAre you ready to start the quiz?", topicName)
}

// QuizQuestion formats a generated question.
func QuizQuestion(question string) string {
	return html.EscapeString(question)
}

// QuizVerdict reports the grading of one answer and the session score.
func QuizVerdict(correct bool, score, total int) string {
	verdict := "❌ Incorrect!"
	if correct {
		verdict = "✅ Correct!"
	}
	return fmt.Sprintf("%s\nSession progress: %d/%d correct", verdict, score, total)
}

// Translation.
const (
	ChooseLanguageText = "Please choose the language you want to translate to:"
	WaitingForTextText = "Now, send me the text you want to translate."
	TranslateNeedText  = "Please send me some text to translate."
	UnknownLanguage    = "⚠️ Unknown language selected."
)

// Translating is shown while a translation runs.
func Translating(language string) string {
	return fmt.Sprintf("⏳ Translating to %s...", language)
}

// TranslationResult formats a translation.
func TranslationResult(original, translation, language string) string {
	return fmt.Sprintf("🌍 <b>Translation to %s</b>\n\n"+
		"<b>Original:</b>\n<code>%s</code>\n\n"+
		"<b>Translation:</b>\n<code>%s</code>",
		language, html.EscapeString(original), html.EscapeString(translation))
}

// Image captioning.
const (
	ImageIntroText       = "Send me an image and I'll generate a description for it!"
	ImageOnlyText        = "I'm sorry, I can only generate descriptions for images."
	ImageUnsupportedText = "Only images are supported. Please send an image. (jpg, png, etc.)"
	ImageProcessingText  = "⏳ Processing image..."
	ImageNoCaptionText   = "Unfortunately, I could not generate a caption for this image."
	ImageFailedText      = "An error occurred while processing the image."
	ImageCancelledText   = "❌ Image description cancelled.\n\n👋 Welcome back to the main menu!"
)

// Vocabulary.
const (
	VocabularySearchingText = "🤔 Searching for a new word..."
	VocabularyBadWordText   = "Failed to get a word, please try again."
	PracticeStartText       = "💪 <b>Practice session has started!</b>\n\nI will send you words, and you will provide their translation."
	PracticeNoWordsText     = "You haven't learned any words yet. Press 'New word' to start!"
	PracticeNeedText        = "Please type the translation."
	PracticeCheckingText    = "⏳ Checking..."
	PracticeCorrectText     = "✅ Correct!"
	PracticeIncorrectText   = "❌ Incorrect."
)

// VocabularyWelcome is the trainer menu.
func VocabularyWelcome(wordsCount int) string {
	return fmt.Sprintf("📚 <b>Vocabulary Trainer</b>\n\n"+
		"You have learned %d words.\n\n"+
		"Press 'New word' to learn another one, or 'Practice' to test your knowledge.", wordsCount)
}

// NewWord presents a freshly learned word.
func NewWord(word, translation, example string, added bool) string {
	text := fmt.Sprintf("✨ <b>New word:</b>\n\n🇬🇧 <b>%s</b> — 🇷🇺 %s\n\n<i>Example: %s</i>",
		html.EscapeString(capitalize(word)), html.EscapeString(capitalize(translation)), html.EscapeString(example))
	if !added {
		text += "\n\nℹ️ This word is already in your vocabulary."
	}
	return text
}

// PracticePrompt asks for the translation of one word.
func PracticePrompt(word string, current, total int) string {
	return fmt.Sprintf("<b>Word %d/%d:</b>\n\nWhat is the translation of <code>%s</code>?", current, total, html.EscapeString(word))
}

// PracticeResult reports a finished practice session.
func PracticeResult(correct, total int) string {
	return fmt.Sprintf("🎉 <b>Practice finished!</b>\n\n"+
		"Your result: %d out of %d (%d%%)\n\n"+
		"Great job! Would you like to practice again?", correct, total, int(models.ScorePercentage(correct, total)))
}

// Stats renders the user's counters and quiz statistics.
func Stats(u *models.User, qs models.QuizStats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Your statistics</b>\n\n")
	fmt.Fprintf(&b, "💬 Messages sent: %d\n", u.Stats.MessagesSent)
	fmt.Fprintf(&b, "🤖 Questions asked: %d\n", u.Stats.ModelQueries)
	fmt.Fprintf(&b, "🎲 Facts requested: %d\n", u.Stats.FactsRequested)
	fmt.Fprintf(&b, "🎭 Persona chats: %d\n", u.Stats.PersonaChats)
	fmt.Fprintf(&b, "🌍 Translations: %d\n", u.Stats.Translations)
	fmt.Fprintf(&b, "🖼 Images described: %d\n\n", u.Stats.ImagesCaptioned)
	b.WriteString("🎯 <b>Quizzes</b>\n")
	fmt.Fprintf(&b, "Completed: %d\n", qs.TotalQuizzes)
	fmt.Fprintf(&b, "Average score: %.1f%%\n", qs.AverageScore)
	fmt.Fprintf(&b, "Best score: %.1f%%\n", qs.BestScore)
	if len(qs.TopicsPlayed) > 0 {
		names := make([]string, 0, len(qs.TopicsPlayed))
		for _, key := range qs.TopicsPlayed {
			if t, ok := TopicByKey(key); ok {
				names = append(names, t.Name)
			} else {
				names = append(names, key)
			}
		}
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
}
