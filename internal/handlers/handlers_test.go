package handlers_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/GPTPipe/internal/callback"
	"github.com/BTreeMap/GPTPipe/internal/flow"
	"github.com/BTreeMap/GPTPipe/internal/genai"
	"github.com/BTreeMap/GPTPipe/internal/handlers"
	"github.com/BTreeMap/GPTPipe/internal/keyboards"
	"github.com/BTreeMap/GPTPipe/internal/lexicon"
	"github.com/BTreeMap/GPTPipe/internal/messaging"
	"github.com/BTreeMap/GPTPipe/internal/middleware"
	"github.com/BTreeMap/GPTPipe/internal/models"
	"github.com/BTreeMap/GPTPipe/internal/router"
	"github.com/BTreeMap/GPTPipe/internal/store"
	"github.com/BTreeMap/GPTPipe/internal/testutil"
)

type harness struct {
	t   *testing.T
	st  *store.InMemoryStore
	fsm *flow.InMemoryStateManager
	svc *testutil.FakeService
	gw  *testutil.FakeGateway
	p   *router.Pipeline
}

func newHarness(t *testing.T, replies ...string) *harness {
	t.Helper()
	st := store.NewInMemoryStore()
	fsm := flow.NewInMemoryStateManager(time.Hour)
	svc := testutil.NewFakeService()
	gw := testutil.NewFakeGateway(replies...)

	reg := router.NewRegistry()
	middleware.Register(reg, st, fsm)
	handlers.Register(reg, handlers.Deps{Gateway: gw, Shuffle: func([]flow.PracticeWord) {}})
	if failures := reg.Failures(); len(failures) > 0 {
		t.Fatalf("registration failures: %v", failures)
	}
	return &harness{t: t, st: st, fsm: fsm, svc: svc, gw: gw, p: reg.Build(svc, handlers.PipelineOptions()...)}
}

func (h *harness) send(ev messaging.Event) {
	h.p.Handle(context.Background(), ev)
}

// press finds the most recently shown button whose label contains label and presses it.
func (h *harness) press(label string) {
	h.t.Helper()
	deliveries := h.svc.Deliveries()
	for i := len(deliveries) - 1; i >= 0; i-- {
		for _, b := range deliveries[i].Keyboard.Buttons() {
			if strings.Contains(b.Text, label) {
				h.send(testutil.Callback(b.Data))
				return
			}
		}
	}
	h.t.Fatalf("no button labelled %q was shown", label)
}

func (h *harness) state() flow.State {
	h.t.Helper()
	s, err := h.fsm.State(context.Background(), testutil.Alice.ID)
	if err != nil {
		h.t.Fatalf("State: %v", err)
	}
	return s
}

func (h *harness) data() flow.Data {
	h.t.Helper()
	d, err := h.fsm.Data(context.Background(), testutil.Alice.ID)
	if err != nil {
		h.t.Fatalf("Data: %v", err)
	}
	return d
}

func (h *harness) session() (store.Session, *models.User) {
	h.t.Helper()
	ctx := context.Background()
	sess, err := h.st.Open(ctx)
	if err != nil {
		h.t.Fatalf("Open: %v", err)
	}
	h.t.Cleanup(func() { _ = sess.Close() })
	u, err := sess.GetUser(ctx, testutil.Alice.ID)
	if err != nil {
		h.t.Fatalf("GetUser: %v", err)
	}
	return sess, u
}

func (h *harness) user() *models.User {
	h.t.Helper()
	_, u := h.session()
	return u
}

func (h *harness) history(conversationType string) []models.ConversationMessage {
	h.t.Helper()
	sess, u := h.session()
	msgs, err := sess.RecentMessages(context.Background(), u, conversationType, 100)
	if err != nil {
		h.t.Fatalf("RecentMessages: %v", err)
	}
	return msgs
}

func (h *harness) lastText() string {
	h.t.Helper()
	last, ok := h.svc.Last()
	if !ok {
		h.t.Fatal("nothing was delivered")
	}
	return last.Text
}

func (h *harness) expectState(want flow.State) {
	h.t.Helper()
	if got := h.state(); got != want {
		h.t.Errorf("state = %q, want %q", got, want)
	}
}

func TestStartGreetsAndShowsMenu(t *testing.T) {
	h := newHarness(t)
	h.send(testutil.Command("/start"))

	last, _ := h.svc.Last()
	if !strings.Contains(last.Text, "alice") {
		t.Errorf("welcome should greet the user, got %q", last.Text)
	}
	if len(last.Keyboard.Buttons()) == 0 {
		t.Error("welcome should carry the main menu")
	}
	h.expectState(flow.StateNone)

	h.press("Help")
	if got := h.lastText(); got != lexicon.HelpText {
		t.Errorf("help text = %q", got)
	}
}

func TestQuizScenario(t *testing.T) {
	h := newHarness(t, "What is the capital of France?", "True")

	h.send(testutil.Command("/quiz"))
	h.expectState(flow.StateQuizChoosingTopic)

	h.press("Science")
	h.expectState(flow.StateQuizConfirmingStart)
	if d := h.data(); d.String(flow.KeyTopic) != "science" || d.IntOr(flow.KeyCorrectAnswers, -1) != 0 || d.IntOr(flow.KeyTotalQuestions, -1) != 0 {
		t.Fatalf("unexpected quiz scratch %v", d)
	}

	h.press("Start quiz")
	h.expectState(flow.StateQuizAwaitingAnswer)
	history := h.history(flow.ConversationQuiz)
	if len(history) != 1 || history[0].Role != models.RoleAssistant || history[0].Content != "What is the capital of France?" {
		t.Fatalf("question should be stored as the only assistant turn, got %+v", history)
	}

	h.send(testutil.Text("Paris"))
	h.expectState(flow.StateQuizConfirmingStart)
	if d := h.data(); d.IntOr(flow.KeyCorrectAnswers, -1) != 1 || d.IntOr(flow.KeyTotalQuestions, -1) != 1 {
		t.Errorf("score should be 1/1, got %v", d)
	}

	calls := h.gw.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(calls))
	}
	grade := calls[1].Messages
	if len(grade) != 3 || grade[1].Role != models.RoleAssistant || grade[2].Content != "Paris" {
		t.Errorf("grading request should carry question then answer, got %+v", grade)
	}
	if got := len(h.history(flow.ConversationQuiz)); got != 3 {
		t.Errorf("expected question, answer and verdict in history, got %d", got)
	}
	if got := h.lastText(); got != lexicon.QuizNextText {
		t.Errorf("last message = %q", got)
	}

	h.press("To main menu")
	h.expectState(flow.StateNone)
	results := h.st.QuizResults()
	if len(results) != 1 || results[0].Topic != "science" || results[0].CorrectAnswers != 1 || results[0].TotalQuestions != 1 {
		t.Errorf("unexpected saved results %+v", results)
	}
	if got := h.user().Stats.QuizzesDone; got != 1 {
		t.Errorf("quizzes_completed = %d, want 1", got)
	}
	if got := len(h.history(flow.ConversationQuiz)); got != 0 {
		t.Errorf("quiz history should be cleared, got %d messages", got)
	}
}

func TestQuizIncorrectAnswerAndNoEmptySave(t *testing.T) {
	h := newHarness(t, "Name the largest planet.", "False")
	h.send(testutil.Command("/quiz"))
	h.press("History")
	h.press("Choose another topic")
	h.expectState(flow.StateQuizChoosingTopic)
	if len(h.st.QuizResults()) != 0 {
		t.Error("a session with no answers should not be saved")
	}

	h.press("Geography")
	h.press("Start quiz")
	h.send(testutil.Text("Saturn"))
	if d := h.data(); d.IntOr(flow.KeyCorrectAnswers, -1) != 0 || d.IntOr(flow.KeyTotalQuestions, -1) != 1 {
		t.Errorf("score should be 0/1, got %v", d)
	}
}

func TestLeavingQuizSavesScore(t *testing.T) {
	for _, leave := range []string{"/start", "/translate"} {
		t.Run(leave, func(t *testing.T) {
			h := newHarness(t, "What is H2O?", "True")
			h.send(testutil.Command("/quiz"))
			h.press("Science")
			h.press("Start quiz")
			h.send(testutil.Text("Water"))

			h.send(testutil.Command(leave))
			results := h.st.QuizResults()
			if len(results) != 1 || results[0].Topic != "science" || results[0].CorrectAnswers != 1 || results[0].TotalQuestions != 1 {
				t.Errorf("running quiz should be saved on %s, got %+v", leave, results)
			}
			if got := h.user().Stats.QuizzesDone; got != 1 {
				t.Errorf("quizzes_completed = %d, want 1", got)
			}
			if got := len(h.history(flow.ConversationQuiz)); got != 0 {
				t.Errorf("quiz history should be cleared, got %d messages", got)
			}
			if h.state().Feature() == "quiz" {
				t.Errorf("state should have left the quiz, got %q", h.state())
			}
		})
	}
}

func TestQuizAnswerWithoutTopicExpiresSession(t *testing.T) {
	h := newHarness(t)
	if err := h.fsm.SetState(context.Background(), testutil.Alice.ID, flow.StateQuizAwaitingAnswer); err != nil {
		t.Fatal(err)
	}
	h.send(testutil.Text("Paris"))

	h.expectState(flow.StateNone)
	if got := h.lastText(); got != lexicon.SessionExpiredText {
		t.Errorf("expected session expired notice, got %q", got)
	}
	if len(h.gw.Calls()) != 0 {
		t.Error("gateway should not be called without a topic")
	}
}

func TestTranslateScenario(t *testing.T) {
	h := newHarness(t, "Bonjour")

	h.send(testutil.Command("/translate"))
	h.expectState(flow.StateTranslateChoosingLanguage)
	h.press("French")
	h.expectState(flow.StateTranslateAwaitingText)

	h.send(testutil.Text("Hello"))

	records := h.st.Translations()
	if len(records) != 1 {
		t.Fatalf("expected 1 translation, got %d", len(records))
	}
	if records[0].TargetLanguage != "French" || records[0].OriginalText != "Hello" || records[0].TranslatedText != "Bonjour" {
		t.Errorf("unexpected record %+v", records[0])
	}
	if got := h.user().Stats.Translations; got != 1 {
		t.Errorf("translations_made = %d, want 1", got)
	}
	if got := h.lastText(); !strings.Contains(got, "Bonjour") || !strings.Contains(got, "French") {
		t.Errorf("unexpected result %q", got)
	}
	h.expectState(flow.StateTranslateChoosingLanguage)
}

func TestTranslateFailureKeepsLanguage(t *testing.T) {
	h := newHarness(t)
	h.gw.Fail(genai.TransientAPIError)
	h.send(testutil.Command("/translate"))
	h.press("German")
	h.send(testutil.Text("Good morning"))

	h.expectState(flow.StateTranslateAwaitingText)
	if got := h.lastText(); got != lexicon.Apology(genai.TransientAPIError) {
		t.Errorf("unexpected apology %q", got)
	}
	if len(h.st.Translations()) != 0 || h.user().Stats.Translations != 0 {
		t.Error("failed translation should not be recorded")
	}

	h.send(testutil.Photo("p1"))
	if got := h.lastText(); got != lexicon.TranslateNeedText {
		t.Errorf("non-text input should re-prompt, got %q", got)
	}
}

func TestGPTRateLimitedKeepsStateAndHistory(t *testing.T) {
	h := newHarness(t)
	h.gw.Fail(genai.RateLimited)

	h.send(testutil.Command("/gpt"))
	h.expectState(flow.StateGPTAwaitingQuestion)
	h.send(testutil.Text("What is Go?"))

	last, _ := h.svc.Last()
	if last.Text != lexicon.Apology(genai.RateLimited) {
		t.Errorf("expected rate-limit apology, got %q", last.Text)
	}
	if !last.Edit {
		t.Error("apology should replace the progress message")
	}
	if got := h.history(flow.ConversationGPT); len(got) != 0 {
		t.Errorf("failed turn polluted history: %+v", got)
	}
	h.expectState(flow.StateGPTAwaitingQuestion)

	h.gw.Reply("A programming language.")
	h.send(testutil.Text("What is Go?"))
	history := h.history(flow.ConversationGPT)
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("retry should store one question and one answer, got %+v", history)
	}
	u := h.user()
	if u.Stats.ModelQueries != 1 || u.Stats.MessagesSent != 1 {
		t.Errorf("unexpected counters %+v", u.Stats)
	}
}

func TestGPTThreadsHistoryWindow(t *testing.T) {
	h := newHarness(t, "first answer", "second answer")
	h.send(testutil.Command("/gpt"))
	h.send(testutil.Text("first question"))
	h.press("Ask another")
	h.send(testutil.Text("second question"))

	calls := h.gw.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	second := calls[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected system, 2 history and the new question, got %+v", second)
	}
	if second[0].Role != models.RoleSystem || second[1].Content != "first question" || second[3].Content != "second question" {
		t.Errorf("unexpected request %+v", second)
	}

	h.send(testutil.Photo("p1"))
	if got := h.lastText(); got != lexicon.GPTNeedTextText {
		t.Errorf("photo in Q&A should re-prompt, got %q", got)
	}
	h.press("Cancel")
	h.expectState(flow.StateNone)
}

func TestPersonaChat(t *testing.T) {
	h := newHarness(t, "Know thyself.")
	h.send(testutil.Command("/talk"))
	h.expectState(flow.StatePersonaChoosing)
	h.press("Socrates")
	h.expectState(flow.StatePersonaChatting)
	if got := h.user().Stats.PersonaChats; got != 1 {
		t.Errorf("persona_chats = %d, want 1", got)
	}

	h.send(testutil.Text("What is wisdom?"))
	history := h.history(flow.PersonaConversation("socrates"))
	if len(history) != 2 || history[0].Content != "What is wisdom?" || history[1].Content != "Know thyself." {
		t.Errorf("unexpected persona history %+v", history)
	}
	if history[0].Persona != "socrates" {
		t.Errorf("messages should carry the persona, got %q", history[0].Persona)
	}
	if got := h.lastText(); !strings.Contains(got, "Socrates") || !strings.Contains(got, "Know thyself.") {
		t.Errorf("unexpected reply %q", got)
	}
	if got := h.user().Stats.MessagesSent; got != 1 {
		t.Errorf("messages_sent = %d, want 1", got)
	}

	h.press("End conversation")
	h.expectState(flow.StateNone)
}

func TestPersonaUnknownKey(t *testing.T) {
	h := newHarness(t)
	token := callback.Default().MustEncode(callback.NSPersonality, keyboards.ActSelect, callback.Params{callback.ParamKey: "plato"})
	h.send(testutil.Callback(token))
	if got := h.lastText(); got != lexicon.UnknownPersonaText {
		t.Errorf("unexpected reply %q", got)
	}
	if h.user().Stats.PersonaChats != 0 {
		t.Error("unknown persona should not be counted")
	}
}

func TestImageCaption(t *testing.T) {
	h := newHarness(t, "A cat <on> a mat")
	h.svc.SetImage("p1", []byte{0xff, 0xd8})

	h.send(testutil.Command("/image"))
	h.send(testutil.Text("hello"))
	if got := h.lastText(); got != lexicon.ImageOnlyText {
		t.Errorf("text while awaiting image should re-prompt, got %q", got)
	}

	doc := testutil.Photo("d1")
	doc.Image.IsDocument = true
	doc.Image.MIMEType = "application/pdf"
	h.send(doc)
	if got := h.lastText(); got != lexicon.ImageUnsupportedText {
		t.Errorf("unsupported document should be refused, got %q", got)
	}
	h.expectState(flow.StateImageAwaitingImage)

	h.send(testutil.Photo("p1"))
	if got := h.lastText(); got != "A cat &lt;on&gt; a mat" {
		t.Errorf("unexpected caption %q", got)
	}
	calls := h.gw.Calls()
	if len(calls) != 1 || calls[0].Method != "CaptionImage" || len(calls[0].Image) != 2 {
		t.Errorf("unexpected gateway calls %+v", calls)
	}
	if got := h.user().Stats.ImagesCaptioned; got != 1 {
		t.Errorf("images_captioned = %d, want 1", got)
	}
	h.expectState(flow.StateNone)
}

func TestImageDownloadFailureEndsFeature(t *testing.T) {
	h := newHarness(t)
	h.send(testutil.Command("/image"))
	h.send(testutil.Photo("missing"))

	if got := h.lastText(); got != lexicon.ImageFailedText {
		t.Errorf("unexpected reply %q", got)
	}
	if len(h.gw.Calls()) != 0 {
		t.Error("gateway should not be called without image bytes")
	}
	h.expectState(flow.StateNone)
}

func TestVocabularyLearnAndPractice(t *testing.T) {
	h := newHarness(t,
		"apple | яблоко | I eat an apple every day.",
		"apple | яблоко | An apple a day.",
		"True",
	)

	h.send(testutil.Command("/vocabulary"))
	h.expectState(flow.StateVocabularyLearningMenu)
	if got := h.lastText(); got != lexicon.VocabularyWelcome(0) {
		t.Errorf("unexpected menu %q", got)
	}

	h.press("New word")
	if got := h.lastText(); !strings.Contains(got, "Apple") || strings.Contains(got, "already") {
		t.Errorf("unexpected new word message %q", got)
	}
	h.press("New word")
	if got := h.lastText(); !strings.Contains(got, "already in your vocabulary") {
		t.Errorf("duplicate word should be flagged, got %q", got)
	}

	h.press("Practice")
	h.expectState(flow.StateVocabularyAwaitingTranslation)
	if got := h.lastText(); got != lexicon.PracticePrompt("apple", 1, 1) {
		t.Errorf("unexpected prompt %q", got)
	}

	h.send(testutil.Text("яблоко"))
	h.expectState(flow.StateVocabularyLearningMenu)
	if got := h.lastText(); got != lexicon.VocabularyWelcome(1) {
		t.Errorf("practice should end on the menu, got %q", got)
	}
	var sawResult bool
	for _, d := range h.svc.Deliveries() {
		if d.Text == lexicon.PracticeResult(1, 1) {
			sawResult = true
		}
	}
	if !sawResult {
		t.Error("practice result was not reported")
	}

	sess, u := h.session()
	words, err := sess.Vocabulary(context.Background(), u, lexicon.VocabularyLanguage)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 1 || words[0].TimesPracticed != 1 || words[0].TimesCorrect != 1 {
		t.Errorf("unexpected word stats %+v", words)
	}
}

func TestVocabularyPracticeWithoutWords(t *testing.T) {
	h := newHarness(t)
	h.send(testutil.Command("/vocabulary"))
	h.press("Practice")
	if got := h.lastText(); got != lexicon.PracticeNoWordsText {
		t.Errorf("unexpected reply %q", got)
	}
	h.expectState(flow.StateVocabularyLearningMenu)
}

func TestVocabularyMalformedWord(t *testing.T) {
	h := newHarness(t, "just a word")
	h.send(testutil.Command("/vocabulary"))
	h.press("New word")
	if got := h.lastText(); got != lexicon.VocabularyBadWordText {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestRandomFactAndStats(t *testing.T) {
	h := newHarness(t, "Octopuses have three hearts.")
	h.gw.Fail(genai.AuthFailed)

	h.send(testutil.Command("/random"))
	if got := h.lastText(); got != lexicon.RandomFact("Octopuses have three hearts.") {
		t.Errorf("unexpected fact %q", got)
	}
	h.press("Another fact")
	if got := h.lastText(); got != lexicon.Apology(genai.AuthFailed) {
		t.Errorf("unexpected apology %q", got)
	}
	if got := h.user().Stats.FactsRequested; got != 2 {
		t.Errorf("facts_requested = %d, want 2", got)
	}

	h.send(testutil.Command("/stats"))
	if got := h.lastText(); !strings.Contains(got, "Facts requested: 2") {
		t.Errorf("stats should list the counters, got %q", got)
	}
}

func TestFallback(t *testing.T) {
	h := newHarness(t)

	h.send(testutil.Text("hello there"))
	if got := h.lastText(); got != lexicon.FallbackText {
		t.Errorf("unexpected fallback %q", got)
	}
	h.send(testutil.Command("/unknown"))
	if got := h.lastText(); got != lexicon.FallbackText {
		t.Errorf("unknown command should fall back, got %q", got)
	}

	h.svc.Reset()
	h.send(testutil.Callback("vocabulary:does_not_exist"))
	if len(h.svc.Deliveries()) != 0 {
		t.Errorf("stale button should not produce messages, got %+v", h.svc.Deliveries())
	}
	if answered := h.svc.Answered(); len(answered) != 1 {
		t.Errorf("stale button should still be acknowledged, got %v", answered)
	}
}
