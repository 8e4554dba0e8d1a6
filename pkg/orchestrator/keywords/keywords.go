// Package keywords carries the multilingual vocabulary behind every
// heuristic fallback: mode probes, failure classification, success and
// negation markers, and dispatch cues. Tables are data, matching is a
// normalized substring scan, so adding a language never touches logic.
package keywords

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, trims, and strips combining marks so that table
// entries and user text compare on the same footing. Both sides of every
// match go through this.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func normalizeAll(entries []string) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = Normalize(e)
	}
	return out
}

func containsAny(text string, table []string) bool {
	normalized := Normalize(text)
	for _, kw := range table {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// devMarkers flip the mode probe to dev.
var devMarkers = normalizeAll([]string{
	"виправ себе",
	"полагодь себе",
	"проаналізуй себе",
	"самоаналіз",
	"самодіагностика",
	"режим розробника",
	"fix yourself",
	"repair yourself",
	"analyze yourself",
	"self-analysis",
	"self analysis",
	"self-repair",
	"self repair",
	"debug yourself",
	"dev mode",
})

// interventionVerbs require the dev password and start the intervention
// pipeline rather than a read-only analysis.
var interventionVerbs = normalizeAll([]string{
	"виправ себе",
	"полагодь себе",
	"виправи себе",
	"почни втручання",
	"втрутись",
	"fix yourself",
	"repair yourself",
	"heal yourself",
	"start intervention",
	"intervene",
})

// actionVerbs mark an imperative request; the mode probe maps them to task.
var actionVerbs = normalizeAll([]string{
	"створи", "зроби", "відкрий", "запусти", "встанови", "налаштуй",
	"видали", "перемісти", "скопіюй", "завантаж", "збережи", "напиши",
	"введи", "натисни", "закрий", "перейменуй", "знайди", "обчисли",
	"порахуй", "перевір", "виконай", "додай",
	"create", "make", "open", "launch", "run", "install", "configure",
	"delete", "remove", "move", "copy", "download", "save", "write",
	"type", "click", "close", "rename", "find", "compute", "calculate",
	"execute", "start", "stop", "build", "add",
})

// successMarkers are accepted only without a negation marker nearby.
var successMarkers = normalizeAll([]string{
	"matches", "done", "completed", "success", "successfully", "correct",
	"verified", "created", "exists", "confirmed",
	"збігається", "виконано", "завершено", "успішно", "створено",
	"існує", "підтверджено", "коректно",
})

// negationMarkers veto a success claim.
var negationMarkers = normalizeAll([]string{
	"does not", "doesn't", "do not", "not completed", "not found",
	"not match", "no match", "mismatch", "incorrect", "wrong", "failed",
	"missing", "unable",
	"не збігається", "не виконано", "не завершено", "не знайдено",
	"не вдалося", "не вдалось", "невірно", "неправильно", "відсутн",
	"не існує", "не створено",
})

// transientFailures justify a plain retry of the same item.
var transientFailures = normalizeAll([]string{
	"timeout", "timed out", "deadline exceeded", "network", "connection",
	"loading", "still loading", "temporarily", "rate limit",
	"таймаут", "тайм-аут", "мереж", "з'єднання", "завантаження",
	"завантажується", "тимчасово",
})

// structuralFailures mean retrying the same call is pointless.
var structuralFailures = normalizeAll([]string{
	"not found", "no such", "does not exist", "invalid", "missing",
	"permission denied", "access denied", "unsupported",
	"не знайдено", "не існує", "некоректн", "недійсн", "відсутн",
	"немає доступу", "не підтримується",
})

// searchVerbs force step-by-step execution of web plans.
var searchVerbs = normalizeAll([]string{
	"search", "scrape", "crawl", "google", "lookup online",
	"пошук", "знайди в інтернеті", "загугли", "спарси",
})

// webCues mark calls touching a browser or remote page.
var webCues = normalizeAll([]string{
	"browser", "web", "page", "url", "http", "site", "playwright",
	"puppeteer", "chrome", "tab",
	"браузер", "сторінк", "сайт", "вкладк",
})

// navigateCues mark page loads, the slowest web step.
var navigateCues = normalizeAll([]string{
	"navigate", "goto", "go to", "open_url", "load page", "reload",
	"перейди", "відкрий сайт", "відкрий сторінку",
})

// appCues mark GUI application work.
// No bare "app" entry: as a substring it would claim verbs like
// "append" and "approve".
var appCues = normalizeAll([]string{
	"application", "launch_app", "open_app", "activate", "window", "gui",
	"finder", "calculator",
	"додаток", "додатк", "програм", "вікно", "калькулятор",
})

// fileCues mark filesystem objects.
var fileCues = normalizeAll([]string{
	"file", "folder", "directory", "path", "filesystem",
	"файл", "папк", "каталог", "директор", "тек",
})

// systemCues mark shell and OS level work.
var systemCues = normalizeAll([]string{
	"shell", "terminal", "command", "bash", "process", "service",
	"system", "cpu", "memory",
	"термінал", "команд", "процес", "систем", "пам'ят",
})

// IsDevRequest reports whether text carries a dev-mode marker.
func IsDevRequest(text string) bool { return containsAny(text, devMarkers) }

// IsInterventionRequest reports whether text asks the assistant to repair
// itself rather than only analyze.
func IsInterventionRequest(text string) bool { return containsAny(text, interventionVerbs) }

// IsActionRequest reports whether text reads as an imperative command.
func IsActionRequest(text string) bool { return containsAny(text, actionVerbs) }

// HasSuccessMarker reports whether text claims success.
func HasSuccessMarker(text string) bool { return containsAny(text, successMarkers) }

// HasNegationMarker reports whether text negates or contradicts a claim.
func HasNegationMarker(text string) bool { return containsAny(text, negationMarkers) }

// IsTransientFailure reports whether a failure reason looks retryable.
func IsTransientFailure(text string) bool { return containsAny(text, transientFailures) }

// IsStructuralFailure reports whether a failure reason means the approach
// itself must change.
func IsStructuralFailure(text string) bool { return containsAny(text, structuralFailures) }

// IsSearchAction reports whether text involves web search or scraping.
func IsSearchAction(text string) bool { return containsAny(text, searchVerbs) }

// IsWebAction reports whether text involves a browser or remote page.
func IsWebAction(text string) bool { return containsAny(text, webCues) }

// IsNavigateAction reports whether text involves loading a page.
func IsNavigateAction(text string) bool { return containsAny(text, navigateCues) }

// IsAppAction reports whether text involves a GUI application.
func IsAppAction(text string) bool { return containsAny(text, appCues) }

// IsFileAction reports whether text involves files or folders.
func IsFileAction(text string) bool { return containsAny(text, fileCues) }

// IsSystemAction reports whether text involves shell or OS state.
func IsSystemAction(text string) bool { return containsAny(text, systemCues) }

// computeVerbs stay long enough that "count" never claims "account".
var computeVerbs = normalizeAll([]string{
	"compute", "calculate",
	"обчисл", "порахуй", "підрахуй", "полічи",
})

var arithmeticPattern = regexp.MustCompile(`\d\s*[-+*/×÷]\s*\d`)

// IsArithmeticAction reports whether text asks for a numeric result:
// either a compute verb or a literal digit-operator-digit expression.
func IsArithmeticAction(text string) bool {
	return arithmeticPattern.MatchString(text) || containsAny(text, computeVerbs)
}
