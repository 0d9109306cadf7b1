package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate_room/internal/apperror"
	"debate_room/internal/feedback"
	"debate_room/internal/models"
	"debate_room/internal/repository"
	"debate_room/internal/storage"
)

// fixedTopics 永遠回傳同一個主題，並記錄收到的分類
type fixedTopics struct {
	mu         sync.Mutex
	categories []string
}

func (f *fixedTopics) SelectTopic(_ context.Context, category string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = append(f.categories, category)
	return "Is social media good for democracy?"
}

func newTestManager(t *testing.T, store repository.RoomStore, opts feedback.Options) *SessionManager {
	t.Helper()
	m := NewSessionManager(ManagerDeps{
		Store:       store,
		Publisher:   NewHub(0, discardLogger),
		Topics:      &fixedTopics{},
		Facilitator: feedback.NewPulseFacilitator(),
		Options:     opts,
		Logger:      discardLogger,
	})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("P%d", i+1)
	}
	return out
}

func TestCreateRoomParticipantBounds(t *testing.T) {
	m := newTestManager(t, newTestRoomStore(t), manualOptions())
	ctx := context.Background()

	tests := []struct {
		name    string
		count   int
		wantErr bool
	}{
		{"zero participants", 0, true},
		{"one participant", 1, false},
		{"six participants", 6, false},
		{"seven participants", 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "debate", Participants: names(tt.count)})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperror.TypeValidation, apperror.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateLive, session.State())
		})
	}
}

func TestCreateRoomValidation(t *testing.T) {
	m := newTestManager(t, newTestRoomStore(t), manualOptions())
	ctx := context.Background()

	_, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "panel", Participants: []string{"Alice"}})
	assert.Equal(t, apperror.TypeValidation, apperror.TypeOf(err))

	_, err = m.CreateRoom(ctx, CreateRoomInput{RoomType: "discussion", Participants: []string{"Alice", "  "}})
	assert.Equal(t, apperror.TypeValidation, apperror.TypeOf(err))

	assert.Zero(t, m.Resident())
}

func TestCreateRoomAssignsTopicAndCaches(t *testing.T) {
	topics := &fixedTopics{}
	m := NewSessionManager(ManagerDeps{
		Store:       newTestRoomStore(t),
		Publisher:   NewHub(0, discardLogger),
		Topics:      topics,
		Facilitator: feedback.NewPulseFacilitator(),
		Options:     manualOptions(),
		Logger:      discardLogger,
	})
	ctx := context.Background()

	session, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "discussion", Participants: []string{" Alice ", "Bob"}, Category: "technology"})
	require.NoError(t, err)
	assert.Equal(t, "Is social media good for democracy?", session.Topic())
	assert.Equal(t, []string{"technology"}, topics.categories)
	assert.Equal(t, 1, m.Resident())

	got, err := m.GetOrRehydrate(ctx, session.RoomID())
	require.NoError(t, err)
	assert.Same(t, session, got)

	_, err = got.Ingest(ctx, "Alice", "trimmed names still match")
	assert.NoError(t, err)
}

func TestCreateRoomRetriesDuplicateID(t *testing.T) {
	ids := []string{"dup00001", "dup00001", "fresh001"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id
	}

	store := repository.NewRoomStore(storage.NewTestDB(t), discardLogger, repository.WithIDGenerator(next))
	m := newTestManager(t, store, manualOptions())
	ctx := context.Background()

	first, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "debate", Participants: []string{"Alice"}})
	require.NoError(t, err)
	assert.Equal(t, "dup00001", first.RoomID())

	second, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "debate", Participants: []string{"Bob"}})
	require.NoError(t, err)
	assert.Equal(t, "fresh001", second.RoomID())
}

func TestGetOrRehydrateUnknownRoom(t *testing.T) {
	m := newTestManager(t, newTestRoomStore(t), manualOptions())

	_, err := m.GetOrRehydrate(context.Background(), "missing1")
	assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
}

func TestRehydrateRestoresTurnFromLog(t *testing.T) {
	store := newTestRoomStore(t)
	ctx := context.Background()

	original := newTestManager(t, store, feedback.Options{RoundThreshold: 4, RoundTrigger: feedback.TriggerThreshold})
	session, err := original.CreateRoom(ctx, CreateRoomInput{RoomType: "debate", Participants: []string{"Alice", "Bob", "Carol"}})
	require.NoError(t, err)
	for _, speaker := range []string{"Alice", "Bob", "Carol", "Alice"} {
		_, err := session.Ingest(ctx, speaker, "argument")
		require.NoError(t, err)
	}
	session.Wait()

	// 模擬重新啟動：新的 manager 沒有任何常駐 Session
	restarted := newTestManager(t, store, feedback.Options{RoundThreshold: 4, RoundTrigger: feedback.TriggerThreshold})
	rehydrated, err := restarted.GetOrRehydrate(ctx, session.RoomID())
	require.NoError(t, err)
	assert.NotSame(t, session, rehydrated)

	view := rehydrated.Snapshot()
	assert.Equal(t, "live", view.State)
	assert.Equal(t, "Bob", view.CurrentSpeaker)
	assert.Equal(t, 1, view.Round)
	assert.Equal(t, 4, view.Statements)
	assert.Equal(t, "Is social media good for democracy?", rehydrated.Topic())

	// 4 則發言後已有一次回饋，再 4 則才會觸發下一次
	for _, speaker := range []string{"Bob", "Carol", "Alice"} {
		_, err := rehydrated.Ingest(ctx, speaker, "more")
		require.NoError(t, err)
	}
	rehydrated.Wait()
	agents, err := store.CountMessages(ctx, session.RoomID(), models.MessageKindAgent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agents)
}

func TestReplayTailCountsSinceLastFacilitator(t *testing.T) {
	tail := []models.Message{
		{Seq: 1, Speaker: "Alice", Kind: models.MessageKindUser, Content: "a"},
		{Seq: 2, Speaker: feedback.FacilitatorName, Kind: models.MessageKindAgent, Content: "f"},
		{Seq: 3, Speaker: "Bob", Kind: models.MessageKindUser, Content: "b"},
		{Seq: 4, Speaker: feedback.LanguageCoachName, Kind: models.MessageKindAgent, Content: "Bob: ok"},
		{Seq: 5, Speaker: "Alice", Kind: models.MessageKindUser, Content: "c"},
	}

	since, recent := replayTail(tail)
	assert.Equal(t, 2, since)
	assert.Equal(t, []feedback.Statement{
		{Speaker: "Alice", Content: "a"},
		{Speaker: "Bob", Content: "b"},
		{Speaker: "Alice", Content: "c"},
	}, recent)
}

func TestRehydrateInactiveRoomIsClosed(t *testing.T) {
	store := newTestRoomStore(t)
	ctx := context.Background()
	m := newTestManager(t, store, manualOptions())

	session, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "discussion", Participants: []string{"Alice", "Bob"}})
	require.NoError(t, err)
	_, err = session.Ingest(ctx, "Alice", "closing thoughts")
	require.NoError(t, err)

	require.NoError(t, m.CloseRoom(ctx, session.RoomID()))
	assert.Zero(t, m.Resident())

	closed, err := m.GetOrRehydrate(ctx, session.RoomID())
	require.NoError(t, err)
	assert.Equal(t, StateClosed, closed.State())
	assert.Zero(t, m.Resident(), "closed rooms are not kept resident")

	_, err = closed.Ingest(ctx, "Bob", "too late")
	assert.ErrorIs(t, err, apperror.ErrNotLive)

	result, err := closed.Finalize(ctx)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "- Alice: 1 statement(s)")

	require.NoError(t, m.CloseRoom(ctx, session.RoomID()), "closing twice is a no-op")
}

func TestGetOrRehydrateConcurrentCallersShareSession(t *testing.T) {
	store := newTestRoomStore(t)
	ctx := context.Background()

	room, err := store.CreateRoom(ctx, models.RoomKindDebate, []string{"Alice", "Bob"}, "Should homework be banned?")
	require.NoError(t, err)

	m := newTestManager(t, store, manualOptions())

	const callers = 8
	results := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.GetOrRehydrate(ctx, room.RoomID)
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	wg.Wait()

	for _, s := range results[1:] {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, 1, m.Resident())
}

func TestShutdownWaitsForFeedbackOfClosedRoom(t *testing.T) {
	store := newTestRoomStore(t)
	provider := &scriptedProvider{text: "Keep building on each other's points.", release: make(chan struct{})}
	m := NewSessionManager(ManagerDeps{
		Store:       store,
		Publisher:   NewHub(0, discardLogger),
		Topics:      &fixedTopics{},
		Facilitator: provider,
		Options:     manualOptions(),
		Logger:      discardLogger,
	})
	ctx := context.Background()

	session, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "debate", Participants: []string{"Alice", "Bob"}})
	require.NoError(t, err)
	_, err = session.Ingest(ctx, "Alice", "opening statement")
	require.NoError(t, err)
	result, err := session.RequestFeedback(ctx)
	require.NoError(t, err)
	require.True(t, result.Scheduled)

	require.NoError(t, m.CloseRoom(ctx, session.RoomID()))
	assert.Zero(t, m.Resident())

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(short), context.DeadlineExceeded)

	close(provider.release)
	require.NoError(t, m.Shutdown(ctx))

	agents, err := store.CountMessages(ctx, session.RoomID(), models.MessageKindAgent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), agents, "feedback scheduled before close is persisted")
}

func TestIngestIntoRoomClosedElsewhereEvicts(t *testing.T) {
	store := newTestRoomStore(t)
	m := newTestManager(t, store, manualOptions())
	ctx := context.Background()

	session, err := m.CreateRoom(ctx, CreateRoomInput{RoomType: "discussion", Participants: []string{"Alice", "Bob"}})
	require.NoError(t, err)
	require.Equal(t, 1, m.Resident())

	// 另一個程序直接停用了房間
	require.NoError(t, store.Deactivate(ctx, session.RoomID()))

	_, err = session.Ingest(ctx, "Alice", "anyone here?")
	assert.ErrorIs(t, err, apperror.ErrNotLive)
	assert.Equal(t, StateClosed, session.State())
	assert.Zero(t, m.Resident())

	fresh, err := m.GetOrRehydrate(ctx, session.RoomID())
	require.NoError(t, err)
	assert.NotSame(t, session, fresh)
	assert.Equal(t, StateClosed, fresh.State())
}
