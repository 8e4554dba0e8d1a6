package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFoldsCaseAndMarks(t *testing.T) {
	assert.Equal(t, "cafe", Normalize("Café"))
	assert.Equal(t, Normalize("знайди"), Normalize("ЗНАЙДИ"))
	assert.Equal(t, "hello", Normalize("  Hello  "))
}

func TestModeProbes(t *testing.T) {
	assert.True(t, IsDevRequest("Виправ себе, щось зламалось"))
	assert.True(t, IsDevRequest("please fix yourself"))
	assert.False(t, IsDevRequest("створи папку"))

	assert.True(t, IsActionRequest("Створи папку /tmp/demo"))
	assert.True(t, IsActionRequest("Create a folder on the desktop"))
	assert.False(t, IsActionRequest("Привіт"))
	assert.False(t, IsActionRequest("how are you today"))

	assert.True(t, IsInterventionRequest("виправ себе"))
	assert.True(t, IsInterventionRequest("start intervention now"))
	assert.False(t, IsInterventionRequest("проаналізуй себе"))
}

func TestSuccessAndNegationMarkers(t *testing.T) {
	assert.True(t, HasSuccessMarker("The folder was created successfully"))
	assert.True(t, HasSuccessMarker("Результат збігається з очікуваним"))
	assert.False(t, HasSuccessMarker("the screen is blank"))

	assert.True(t, HasNegationMarker("Calculator displays 27, expected 27, does not match"))
	assert.True(t, HasNegationMarker("файл не знайдено"))
	assert.False(t, HasNegationMarker("everything matches"))
}

func TestFailureClassification(t *testing.T) {
	assert.True(t, IsTransientFailure("request timed out"))
	assert.True(t, IsTransientFailure("сторінка ще завантажується"))
	assert.False(t, IsTransientFailure("file not found"))

	assert.True(t, IsStructuralFailure("file not found"))
	assert.True(t, IsStructuralFailure("параметр некоректний"))
	assert.False(t, IsStructuralFailure("connection reset"))
}

func TestDispatchCues(t *testing.T) {
	assert.True(t, IsWebAction("open the browser tab"))
	assert.True(t, IsSearchAction("scrape the results page"))
	assert.True(t, IsSearchAction("знайди в інтернеті прогноз"))
	assert.True(t, IsNavigateAction("navigate to example.com"))
	assert.True(t, IsAppAction("launch the Calculator application"))
	assert.True(t, IsAppAction("applescript__launch_app"))
	assert.False(t, IsAppAction("filesystem__append_file"))
	assert.True(t, IsFileAction("створи папку /tmp/demo"))
	assert.True(t, IsSystemAction("restart the orchestrator process"))
	assert.False(t, IsWebAction("create folder /tmp/demo"))
}

func TestArithmeticDetection(t *testing.T) {
	assert.True(t, IsArithmeticAction("compute 13 + 14 in the calculator"))
	assert.True(t, IsArithmeticAction("13+14"))
	assert.True(t, IsArithmeticAction("порахуй суму за місяць"))
	assert.False(t, IsArithmeticAction("open the account settings"))
	assert.False(t, IsArithmeticAction("create folder /tmp/demo"))
}

func TestVerificationActionTransforms(t *testing.T) {
	assert.Equal(t, "verify existence of folder /tmp/demo", VerificationAction("create folder /tmp/demo"))
	assert.Equal(t, "verify existence of папку /tmp/demo", VerificationAction("Створи папку /tmp/demo"))
	assert.Equal(t, "verify the result", VerificationAction("compute 13 + 14"))
	assert.Equal(t, "verify calculator is open", VerificationAction("open Calculator"))
	assert.Equal(t, "verify notes.txt no longer exists", VerificationAction("delete notes.txt"))
	assert.Equal(t, "verify the entered value", VerificationAction("type the password"))
	assert.Equal(t, "verify the result", VerificationAction("rearrange the desk"))
	assert.Equal(t, "verify the result", VerificationAction(""))
}

func TestVerificationActionIdempotent(t *testing.T) {
	once := VerificationAction("create folder /tmp/demo")
	assert.Equal(t, once, VerificationAction(once))

	assert.Equal(t, "перевір чи існує папка", VerificationAction("перевір чи існує папка"))
}
