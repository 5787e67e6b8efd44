// Package lexicon holds the bot's prompts, quiz topics, personas, languages and user-visible copy.
package lexicon

import "fmt"

// Fixed model instructions.
const (
	GPTSystemPrompt        = "You are a helpful AI assistant. Provide clear, accurate, and helpful responses."
	RandomFactPrompt       = "Tell me a random, interesting, short fact that hasn't been said before."
	ImageDescriptionPrompt = "Create a short and creative description for this image."

	QuizAnswerCheckPrompt = "You are a strict quiz assistant. " +
		"You have already asked the user a quiz question. " +
		"The user has just submitted an answer. " +
		"ONLY respond with True if the answer is correct, or False if it is incorrect. " +
		"Do NOT provide any explanations, reasoning, or extra text. " +
		"Your entire response must be ONLY 'True' or 'False'."

	NewWordPrompt = "Provide one new, moderately common English word for a language learner. " +
		"Your response MUST be in the following format, with each part separated by a '|' character:\n" +
		"WORD | TRANSLATION (in Russian) | USAGE EXAMPLE (a simple sentence in English)"
)

// QuizQuestionPrompt is the instruction for generating a question on topicName.
func QuizQuestionPrompt(topicName string) string {
	return "You are a helpful assistant. " +
		"You have to play a quiz with the user. " +
		fmt.Sprintf("Your task is to give the user a quiz question on the topic: %s. ", topicName) +
		"Try not to ask the same question for the same topic. " +
		"Do not ask if you should ask another question. " +
		"The question should be clear and concise."
}

// TranslationPrompt asks for text translated into targetLanguage.
func TranslationPrompt(text, targetLanguage string) string {
	return fmt.Sprintf("Translate the following text to %s:\n\n%s", targetLanguage, text)
}

// WordValidationPrompt asks whether translation is a correct rendering of word.
func WordValidationPrompt(word, translation string) string {
	return fmt.Sprintf("The user is being tested on the English word '%s'. "+
		"They provided the following Russian translation: '%s'. "+
		"Is this translation a correct or very close synonym? "+
		"Respond ONLY with 'True' or 'False'. Do not add any other text or punctuation.", word, translation)
}
