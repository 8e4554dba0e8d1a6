package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal("")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordSessionUpserts(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	created, err := j.RecordSession(ctx, "s1", "Створи папку", "task")
	require.NoError(t, err)
	assert.Equal(t, "s1", created.ID)
	assert.Equal(t, SessionStatusActive, created.Status)
	assert.Nil(t, created.CompletedAt)

	updated, err := j.RecordSession(ctx, "s1", "Створи папку", "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", updated.Mode)

	_, total, err := j.ListSessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCompleteSession(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.RecordSession(ctx, "s1", "", "chat")
	require.NoError(t, err)

	require.NoError(t, j.CompleteSession(ctx, "s1", SessionStatusCompleted))

	got, err := j.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	assert.Error(t, j.CompleteSession(ctx, "missing", SessionStatusFailed))
}

func TestGetSessionNotFound(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.GetSession(context.Background(), "nope")
	assert.ErrorContains(t, err, "session not found")
}

func TestEventJournalIncrementalRead(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	_, err := j.RecordSession(ctx, "s1", "", "task")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		evt := events.NewAgentEvent(&events.ToolCallStartEvent{Server: "filesystem", Tool: "create_directory", PlanIndex: i})
		require.NoError(t, j.RecordEvent(ctx, "s1", evt))
	}

	all, err := j.EventsBySession(ctx, "s1", 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, string(events.ToolCallStart), all[0].EventType)
	assert.Contains(t, string(all[0].EventData), "create_directory")

	// Incremental read picks up only what is new.
	rest, err := j.EventsBySession(ctx, "s1", all[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, all[2].ID, rest[0].ID)
}

func TestListSessionsPaging(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := j.RecordSession(ctx, id, "", "chat")
		require.NoError(t, err)
	}

	page, total, err := j.ListSessions(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)
}
