package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate_room/internal/api/handlers"
	"debate_room/internal/feedback"
	"debate_room/internal/repository"
	"debate_room/internal/service"
	"debate_room/internal/storage"
)

const testTopic = "Should cities ban cars downtown?"

type testServer struct {
	*httptest.Server
	services *service.Services
	ready    *atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db := storage.NewTestDB(t)
	repos := repository.NewRepositories(db, logger)
	services := service.NewServices(repos, service.Options{
		Topics:      feedback.NewTopicCatalog([]feedback.Topic{{Title: testTopic, Category: "society"}}),
		Facilitator: feedback.NewPulseFacilitator(),
		Feedback:    feedback.Options{RoundTrigger: feedback.TriggerManual},
		Logger:      logger,
	})

	ready := &atomic.Bool{}
	ready.Store(true)

	r := gin.New()
	SetupRoutes(r, Deps{
		Services:    services,
		Rooms:       repos.Rooms,
		Health:      handlers.NewHealthHandler(db, ready),
		CORSOrigins: []string{"*"},
		Logger:      logger,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, services: services, ready: ready}
}

func (s *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) createRoom(t *testing.T, participants ...string) string {
	t.Helper()
	resp := s.postJSON(t, "/api/rooms", map[string]any{
		"room_type":         "discussion",
		"participant_names": participants,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created service.CreatedRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created.RoomID
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) service.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev service.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestCreateRoomEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.postJSON(t, "/api/rooms", map[string]any{
		"room_type":         "debate",
		"participant_names": []string{"Alice", "Bob"},
		"category":          "society",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created service.CreatedRoom
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Len(t, created.RoomID, 8)
	assert.Equal(t, testTopic, created.Topic)
	assert.Equal(t, []string{"Alice", "Bob"}, created.Participants)
	assert.NotEmpty(t, created.Message)
}

func TestCreateRoomEndpointValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing room type", map[string]any{"participant_names": []string{"Alice"}}},
		{"unknown room type", map[string]any{"room_type": "panel", "participant_names": []string{"Alice"}}},
		{"no participants", map[string]any{"room_type": "debate", "participant_names": []string{}}},
		{"seven participants", map[string]any{"room_type": "debate", "participant_names": []string{"A", "B", "C", "D", "E", "F", "G"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.postJSON(t, "/api/rooms", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestListAndGetRoom(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	resp := srv.get(t, "/api/rooms")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Rooms []struct {
			RoomID string `json:"room_id"`
		} `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, roomID, list.Rooms[0].RoomID)

	resp = srv.get(t, "/api/rooms/"+roomID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail service.RoomDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, roomID, detail.Room.RoomID)
	assert.Empty(t, detail.Messages)
	assert.Equal(t, "live", detail.Session.State)
	assert.Equal(t, "Alice", detail.Session.CurrentSpeaker)
}

func TestGetRoomErrors(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, srv.get(t, "/api/rooms/nope0000").StatusCode)

	roomID := srv.createRoom(t, "Alice")
	assert.Equal(t, http.StatusBadRequest, srv.get(t, "/api/rooms/"+roomID+"?limit=abc").StatusCode)
}

func TestFeedbackFinalizeAndClose(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	resp := srv.postJSON(t, "/api/rooms/"+roomID+"/feedback", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result service.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, feedback.EmptyHistoryText, result.Text)

	resp = srv.postJSON(t, "/api/rooms/"+roomID+"/close", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.postJSON(t, "/api/rooms/"+roomID+"/feedback", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = srv.postJSON(t, "/api/rooms/"+roomID+"/finalize", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.get(t, "/api/rooms")
	var list struct {
		Rooms []any `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list.Rooms)
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, srv.get(t, "/api/health").StatusCode)
	assert.Equal(t, http.StatusOK, srv.get(t, "/api/ready").StatusCode)

	srv.ready.Store(false)
	assert.Equal(t, http.StatusServiceUnavailable, srv.get(t, "/api/ready").StatusCode)
	assert.Equal(t, http.StatusOK, srv.get(t, "/metrics").StatusCode)
	assert.Equal(t, http.StatusNotFound, srv.get(t, "/api/unknown").StatusCode)
}

func TestWebSocketMessageRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	alice := srv.dial(t, "/api/rooms/"+roomID+"/ws")
	connected := readEvent(t, alice)
	assert.Equal(t, service.EventConnected, connected.Type)
	assert.Equal(t, testTopic, connected.Topic)
	assert.Equal(t, "Alice", connected.NextSpeaker)

	bob := srv.dial(t, "/ws/"+roomID)
	assert.Equal(t, service.EventConnected, readEvent(t, bob).Type)
	require.Eventually(t, func() bool { return srv.services.Hub.Count(roomID) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "message", "speaker": "Alice", "content": "hello"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, conn)
		assert.Equal(t, service.EventMessage, ev.Type)
		assert.Equal(t, int64(1), ev.Seq)
		assert.Equal(t, "Alice", ev.Speaker)
		assert.Equal(t, "hello", ev.Content)
		assert.Equal(t, "Bob", ev.NextSpeaker)
	}
}

func TestWebSocketErrorsGoToSenderOnly(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	alice := srv.dial(t, "/api/rooms/"+roomID+"/ws")
	readEvent(t, alice)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "message", "speaker": "Mallory", "content": "hi"}))
	ev := readEvent(t, alice)
	assert.Equal(t, service.EventError, ev.Type)
	assert.NotEmpty(t, ev.Message)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, service.EventError, readEvent(t, alice).Type)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "request_feedback"}))
	ev = readEvent(t, alice)
	assert.Equal(t, service.EventMessage, ev.Type)
	assert.Equal(t, feedback.EmptyHistoryText, ev.Content)
}

func TestWebSocketReplaySince(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	writer := srv.dial(t, "/api/rooms/"+roomID+"/ws")
	readEvent(t, writer)
	for _, m := range []struct{ speaker, content string }{{"Alice", "one"}, {"Bob", "two"}, {"Alice", "three"}} {
		require.NoError(t, writer.WriteJSON(map[string]string{"type": "message", "speaker": m.speaker, "content": m.content}))
		readEvent(t, writer)
	}

	late := srv.dial(t, "/api/rooms/"+roomID+"/ws?since=1")
	assert.Equal(t, service.EventConnected, readEvent(t, late).Type)
	assert.Equal(t, int64(2), readEvent(t, late).Seq)
	assert.Equal(t, int64(3), readEvent(t, late).Seq)
}

func TestWebSocketReplayBeyondSendBuffer(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	// 超過發送佇列容量，也跨過一頁補送的上限
	const total = 600
	session, err := srv.services.Sessions.GetOrRehydrate(context.Background(), roomID)
	require.NoError(t, err)
	for i := range total {
		speaker := []string{"Alice", "Bob"}[i%2]
		_, err := session.Ingest(context.Background(), speaker, "point")
		require.NoError(t, err)
	}

	conn := srv.dial(t, "/api/rooms/"+roomID+"/ws?since=0")
	assert.Equal(t, service.EventConnected, readEvent(t, conn).Type)
	for want := int64(1); want <= total; want++ {
		ev := readEvent(t, conn)
		require.Equal(t, service.EventMessage, ev.Type)
		require.Equal(t, want, ev.Seq)
	}

	// 補送完畢後連線仍可即時收發
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "message", "speaker": "Alice", "content": "still here"}))
	ev := readEvent(t, conn)
	assert.Equal(t, int64(total+1), ev.Seq)
	assert.Equal(t, "still here", ev.Content)
}

func TestWebSocketConnectedIsFirstEvent(t *testing.T) {
	srv := newTestServer(t)
	roomID := srv.createRoom(t, "Alice", "Bob")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			srv.services.Hub.Broadcast(roomID, service.Event{Type: service.EventMessage, RoomID: roomID, Content: "busy room"})
			time.Sleep(time.Millisecond)
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	for range 5 {
		conn := srv.dial(t, "/api/rooms/"+roomID+"/ws")
		assert.Equal(t, service.EventConnected, readEvent(t, conn).Type)
		_ = conn.Close()
	}
}

func TestWebSocketUnknownRoomRejected(t *testing.T) {
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/missing0/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
