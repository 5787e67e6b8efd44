// Package keyboards builds the inline keyboards of every feature from callback tokens.
package keyboards

import (
	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
)

// Callback actions per namespace.
const (
	ActMainMenu = "main_menu"
	ActStats    = "stats"

	ActStart      = "start"
	ActCancel     = "cancel"
	ActAskAnother = "ask_another"
	ActShowMenu   = "show_menu"
	ActGetFact    = "get_fact"

	ActShowSelection = "show_selection"
	ActSelect        = "select"
	ActChange        = "change"
	ActEndChat       = "end_chat"

	ActSelectTopic   = "select_topic"
	ActChooseTopic   = "choose_another_topic"
	ActContinue      = "continue"
	ActSelectLang    = "select_lang"
	ActNewWord       = "get_new_word"
	ActStartPractice = "start_practice"
)

func button(text, ns, action string, params callback.Params) messaging.Button {
	return messaging.Button{Text: text, Data: callback.Default().MustEncode(ns, action, params)}
}

func mainMenuButton() messaging.Button {
	return button("🏠 Main menu", callback.NSStart, ActMainMenu, nil)
}

// MainMenu is the start menu.
func MainMenu() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("📜 Get random fact", callback.NSRandom, ActGetFact, nil)),
		messaging.Row(button("🤖 Ask ChatGPT", callback.NSGPT, ActStart, nil)),
		messaging.Row(
			button("💬 Talk to personalities", callback.NSPersonality, ActShowSelection, nil),
			button("🎯 Quiz", callback.NSQuiz, ActStart, nil),
		),
		messaging.Row(
			button("🌍 Translate", callback.NSTranslate, ActStart, nil),
			button("🖼 Describe image", callback.NSImage, ActStart, nil),
		),
		messaging.Row(
			button("📚 Vocabulary", callback.NSVocabulary, ActStart, nil),
			button("📊 Statistics", callback.NSStart, ActStats, nil),
		),
		messaging.Row(button("❓ Help", callback.NSHelp, ActShowMenu, nil)),
	}
}

// BackToMenu holds only the main menu button.
func BackToMenu() messaging.Keyboard {
	return messaging.Keyboard{messaging.Row(mainMenuButton())}
}

// GPTInterface is shown while waiting for a question.
func GPTInterface() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("❌ Cancel", callback.NSGPT, ActCancel, nil)),
		messaging.Row(mainMenuButton()),
	}
}

// GPTActions is shown under an answer.
func GPTActions() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("❓ Ask another question", callback.NSGPT, ActAskAnother, nil)),
		messaging.Row(mainMenuButton()),
	}
}

// Image is shown while waiting for an image.
func Image() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("❌ Cancel", callback.NSImage, ActCancel, nil)),
	}
}

// RandomFact is shown under a fact.
func RandomFact() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("🎲 Another fact", callback.NSRandom, ActGetFact, nil)),
		messaging.Row(mainMenuButton()),
	}
}

// PersonaSelection lists the personas.
func PersonaSelection() messaging.Keyboard {
	kb := make(messaging.Keyboard, 0, len(lexicon.Personas)+1)
	for _, p := range lexicon.Personas {
		kb = append(kb, messaging.Row(button(p.Button, callback.NSPersonality, ActSelect, callback.Params{callback.ParamKey: p.Key})))
	}
	return append(kb, messaging.Row(mainMenuButton()))
}

// PersonaActions is shown during a persona chat.
func PersonaActions() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("🔄 Change personality", callback.NSPersonality, ActChange, nil)),
		messaging.Row(button("❌ End conversation", callback.NSPersonality, ActEndChat, nil)),
		messaging.Row(mainMenuButton()),
	}
}

// QuizTopics lists the quiz topics.
func QuizTopics() messaging.Keyboard {
	kb := make(messaging.Keyboard, 0, len(lexicon.Topics)+1)
	for _, t := range lexicon.Topics {
		kb = append(kb, messaging.Row(button(t.Name, callback.NSQuiz, ActSelectTopic, callback.Params{callback.ParamTopicKey: t.Key})))
	}
	return append(kb, messaging.Row(button("❌ Cancel", callback.NSQuiz, ActCancel, nil)))
}

// QuizConfirm asks to start the quiz.
func QuizConfirm() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("🔄 Choose another topic", callback.NSQuiz, ActChooseTopic, nil)),
		messaging.Row(button("✅ Start quiz", callback.NSQuiz, ActContinue, nil)),
		messaging.Row(button("❌ Cancel", callback.NSQuiz, ActCancel, nil)),
	}
}

// QuizAnswer is shown under a question.
func QuizAnswer() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("🔄 Choose another topic", callback.NSQuiz, ActChooseTopic, nil)),
		messaging.Row(button("❌ Cancel", callback.NSQuiz, ActCancel, nil)),
	}
}

// QuizPostAnswer is shown after grading.
func QuizPostAnswer() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(
			button("➡️ Continue", callback.NSQuiz, ActContinue, nil),
			button("🔄 Choose another topic", callback.NSQuiz, ActChooseTopic, nil),
		),
		messaging.Row(button("🏠 To main menu", callback.NSQuiz, ActCancel, nil)),
	}
}

// Languages lists the translation targets.
func Languages() messaging.Keyboard {
	row := make([]messaging.Button, 0, len(lexicon.Languages))
	for _, l := range lexicon.Languages {
		row = append(row, button(l.Button, callback.NSTranslate, ActSelectLang, callback.Params{
			callback.ParamLanguageCode: l.Code,
			callback.ParamLanguageName: l.Name,
		}))
	}
	return messaging.Keyboard{row, messaging.Row(mainMenuButton())}
}

// VocabularyActions is the trainer menu.
func VocabularyActions() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(
			button("🆕 New word", callback.NSVocabulary, ActNewWord, nil),
			button("🎯 Practice", callback.NSVocabulary, ActStartPractice, nil),
		),
		messaging.Row(button("🏁 Finish", callback.NSStart, ActMainMenu, nil)),
	}
}

// Practice is shown during a practice session.
func Practice() messaging.Keyboard {
	return messaging.Keyboard{
		messaging.Row(button("🏁 End Practice", callback.NSVocabulary, ActStart, nil)),
	}
}

// All returns every keyboard by name.
func All() map[string]messaging.Keyboard {
	return map[string]messaging.Keyboard{
		"main_menu":          MainMenu(),
		"back_to_menu":       BackToMenu(),
		"gpt_interface":      GPTInterface(),
		"gpt_actions":        GPTActions(),
		"image":              Image(),
		"random_fact":        RandomFact(),
		"persona_selection":  PersonaSelection(),
		"persona_actions":    PersonaActions(),
		"quiz_topics":        QuizTopics(),
		"quiz_confirm":       QuizConfirm(),
		"quiz_answer":        QuizAnswer(),
		"quiz_post_answer":   QuizPostAnswer(),
		"languages":          Languages(),
		"vocabulary_actions": VocabularyActions(),
		"practice":           Practice(),
	}
}
