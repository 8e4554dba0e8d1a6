package keywords

// phraseSet holds the canned spoken phrases for one language.
type phraseSet struct {
	TaskDone    string
	TaskPartial string
	TaskFailed  string
	ChatOnly    string
}

// phrases is keyed by user_language. Unknown languages fall back to
// English.
var phrases = map[string]phraseSet{
	"uk": {
		TaskDone:    "Завдання виконано.",
		TaskPartial: "Завдання виконано частково.",
		TaskFailed:  "Не вдалося виконати завдання.",
		ChatOnly:    "Готово.",
	},
	"en": {
		TaskDone:    "Task completed.",
		TaskPartial: "Task partially completed.",
		TaskFailed:  "The task could not be completed.",
		ChatOnly:    "Done.",
	},
}

func phrasesFor(lang string) phraseSet {
	if set, ok := phrases[lang]; ok {
		return set
	}
	return phrases["en"]
}

// TTSTaskDone returns the spoken completion phrase for lang.
func TTSTaskDone(lang string) string { return phrasesFor(lang).TaskDone }

// TTSTaskPartial returns the spoken partial-completion phrase for lang.
func TTSTaskPartial(lang string) string { return phrasesFor(lang).TaskPartial }

// TTSTaskFailed returns the spoken failure phrase for lang.
func TTSTaskFailed(lang string) string { return phrasesFor(lang).TaskFailed }
