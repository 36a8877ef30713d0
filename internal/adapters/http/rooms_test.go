package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/store"
)

const testSecret = "test-secret"

func newTestRouter(st store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rooms := &RoomHandlers{Store: st}

	api := r.Group("/api")
	api.POST("/auth/login", Login(testSecret))
	api.POST("/rooms", JWTAuth(testSecret), rooms.CreateRoom)
	api.GET("/rooms", rooms.ListRooms)
	api.GET("/rooms/:roomId", rooms.GetRoom)
	api.DELETE("/rooms/:roomId", JWTAuth(testSecret), rooms.DeleteRoom)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: username, Password: "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, username, resp.UserID)
	return resp.Token
}

func TestLoginRejectsBadBody(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())
	w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())

	w := doJSON(t, r, http.MethodPost, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/rooms", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestRouter(st)
	token := login(t, r, "alice")

	// Create.
	w := doJSON(t, r, http.MethodPost, "/api/rooms", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.RoomID)
	assert.Equal(t, "/room/"+created.RoomID, created.JoinLink)

	// List shows it open with no participants.
	w = doJSON(t, r, http.MethodGet, "/api/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []store.RoomInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, created.RoomID, string(rooms[0].RoomID))
	assert.Zero(t, rooms[0].ParticipantCount)
	assert.Equal(t, "alice", rooms[0].CreatedBy)

	// Get one.
	w = doJSON(t, r, http.MethodGet, "/api/rooms/"+created.RoomID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, created.RoomID, snap["roomId"])
	assert.Equal(t, "open", snap["status"])

	// Delete closes it.
	w = doJSON(t, r, http.MethodDelete, "/api/rooms/"+created.RoomID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rooms = rooms[:0]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	assert.Empty(t, rooms)
}

func TestGetRoomNotFound(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())
	w := doJSON(t, r, http.MethodGet, "/api/rooms/no-such-room", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRoomCreatorOnly(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestRouter(st)
	alice := login(t, r, "alice")
	bob := login(t, r, "bob")

	w := doJSON(t, r, http.MethodPost, "/api/rooms", alice, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateRoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, http.MethodDelete, "/api/rooms/"+created.RoomID, bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/rooms/"+created.RoomID, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteRoomNotFound(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())
	token := login(t, r, "alice")
	w := doJSON(t, r, http.MethodDelete, "/api/rooms/no-such-room", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
