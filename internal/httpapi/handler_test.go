package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hkms/internal/access"
	"hkms/internal/hub"
	"hkms/internal/lifecycle"
	"hkms/internal/models"
	"hkms/internal/store/memory"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type testServer struct {
	handler http.Handler
	store   *memory.Store
	hub     *hub.Hub
	tokens  map[string]string
	users   map[string]models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.New()
	h := hub.New(16, nil)
	engine := lifecycle.NewEngine(st, h, nil)
	gate := access.NewGate(st)

	ts := &testServer{store: st, hub: h, tokens: map[string]string{}, users: map[string]models.User{}}
	for _, role := range []string{access.RoleManager, access.RoleSupervisor, access.RoleHousekeeper} {
		user, err := st.AddUser(models.User{Name: role, Email: role + "@hotel.test", Role: role}, "secret-"+role)
		if err != nil {
			t.Fatalf("add user: %v", err)
		}
		ts.users[role] = user
		ts.tokens[role] = st.IssueSession(user.UserID, time.Hour).SessionID
	}

	api := NewHandler(engine, st, Options{SessionTTL: time.Hour})
	realtime := NewRealtime(h, gate, false, nil)
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 10000, IPBurst: 10000, UserPerMinute: 10000, UserBurst: 10000})

	mux := http.NewServeMux()
	mux.Handle("/", api.Routes())
	mux.HandleFunc("/ws", realtime.ServeWS)
	ts.handler = limiter.Middleware(AuthMiddleware(gate, limiter.UserMiddleware(mux)))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+ts.tokens[role])
	}
	resp := httptest.NewRecorder()
	ts.handler.ServeHTTP(resp, req)
	return resp
}

func (ts *testServer) createRoom(t *testing.T, number string) models.Room {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/rooms", access.RoleManager, map[string]interface{}{"room_number": number, "floor": 1, "type": "deluxe"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create room: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var room models.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	return room
}

func (ts *testServer) assignTo(t *testing.T, roomID, role string) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/rooms/"+roomID+"/assign", access.RoleManager, map[string]interface{}{"assigned_to": ts.users[role].UserID})
	if resp.Code != http.StatusOK {
		t.Fatalf("assign room: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return body.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestMissingSessionIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/rooms", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %s", code)
	}
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "supervisor@hotel.test", "password": "secret-supervisor"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.SessionID == "" || login.User.Role != access.RoleSupervisor {
		t.Fatalf("unexpected login response: %+v", login)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("X-Session-ID", login.SessionID)
	me := httptest.NewRecorder()
	ts.handler.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", me.Code)
	}
	var id access.Identity
	if err := json.NewDecoder(me.Body).Decode(&id); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if id.UserID != ts.users[access.RoleSupervisor].UserID {
		t.Fatalf("unexpected identity: %+v", id)
	}

	bad := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "supervisor@hotel.test", "password": "nope"})
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", bad.Code)
	}
}

func TestRoleComesFromUserRecord(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")

	ts.store.SetUserRole(ts.users[access.RoleManager].UserID, access.RoleHousekeeper)
	resp := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/status", access.RoleManager, map[string]string{"status": "clean"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 after demotion, got %d", resp.Code)
	}
}

func TestCreateRoomRequiresManager(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/rooms", access.RoleSupervisor, map[string]interface{}{"room_number": "101", "floor": 1})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}

	ts.createRoom(t, "101")
	dup := ts.do(t, http.MethodPost, "/api/rooms", access.RoleManager, map[string]interface{}{"room_number": "101", "floor": 1})
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", dup.Code)
	}
}

func TestTransitionErrors(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")

	cases := []struct {
		name   string
		role   string
		roomID string
		status string
		code   int
		errKey string
	}{
		{"housekeeper", access.RoleHousekeeper, room.RoomID, "clean", http.StatusForbidden, "forbidden"},
		{"unknown status", access.RoleManager, room.RoomID, "sparkling", http.StatusUnprocessableEntity, "invalid_status"},
		{"unknown room", access.RoleManager, uuid.NewString(), "clean", http.StatusNotFound, "not_found"},
		{"malformed room id", access.RoleManager, "missing", "clean", http.StatusBadRequest, "invalid_request"},
		{"approve dirty room", access.RoleSupervisor, room.RoomID, "approved", http.StatusConflict, "invalid_transition"},
	}
	for _, tt := range cases {
		resp := ts.do(t, http.MethodPost, "/api/rooms/"+tt.roomID+"/status", tt.role, map[string]string{"status": tt.status})
		if resp.Code != tt.code {
			t.Fatalf("%s: expected status %d, got %d", tt.name, tt.code, resp.Code)
		}
		if code := errorCode(t, resp); code != tt.errKey {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.errKey, code)
		}
	}
}

func TestSessionFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")
	ts.assignTo(t, room.RoomID, access.RoleHousekeeper)
	subscriber := ts.hub.Register()

	resp := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/sessions", access.RoleHousekeeper, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var session sessionView
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Status != models.SessionActive {
		t.Fatalf("unexpected session: %+v", session)
	}

	again := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/sessions", access.RoleHousekeeper, nil)
	if again.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", again.Code)
	}

	for _, action := range []string{"pause", "resume", "complete"} {
		resp := ts.do(t, http.MethodPost, "/api/sessions/"+session.SessionID+"/actions/"+action, access.RoleHousekeeper, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d: %s", action, resp.Code, resp.Body.String())
		}
	}
	done := ts.do(t, http.MethodPost, "/api/sessions/"+session.SessionID+"/actions/complete", access.RoleHousekeeper, nil)
	if done.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", done.Code)
	}

	got := ts.do(t, http.MethodGet, "/api/sessions/"+session.SessionID, access.RoleHousekeeper, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", got.Code)
	}
	var completed sessionView
	if err := json.NewDecoder(got.Body).Decode(&completed); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if completed.Status != models.SessionCompleted || completed.TotalSeconds == nil {
		t.Fatalf("unexpected session: %+v", completed)
	}

	// start: timer + room, then pause, resume, complete.
	want := []string{hub.EventTimerUpdate, hub.EventRoomStatusUpdate, hub.EventTimerUpdate, hub.EventTimerUpdate, hub.EventTimerUpdate}
	if len(subscriber.Messages()) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(subscriber.Messages()))
	}
	for _, typ := range want {
		env, err := hub.Decode(<-subscriber.Messages())
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != typ {
			t.Fatalf("expected %s, got %s", typ, env.Type)
		}
	}
}

func TestHousekeeperSeesAssignedRoomsOnly(t *testing.T) {
	ts := newTestServer(t)
	assigned := ts.createRoom(t, "101")
	other := ts.createRoom(t, "102")

	resp := ts.do(t, http.MethodPost, "/api/rooms/"+assigned.RoomID+"/assign", access.RoleSupervisor, map[string]interface{}{"assigned_to": ts.users[access.RoleHousekeeper].UserID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	list := ts.do(t, http.MethodGet, "/api/rooms", access.RoleHousekeeper, nil)
	var rooms []models.Room
	if err := json.NewDecoder(list.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].RoomID != assigned.RoomID {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}

	hidden := ts.do(t, http.MethodGet, "/api/rooms/"+other.RoomID, access.RoleHousekeeper, nil)
	if hidden.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", hidden.Code)
	}
}

func TestSessionHiddenFromUnassignedHousekeeper(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")
	ts.assignTo(t, room.RoomID, access.RoleHousekeeper)

	other, err := ts.store.AddUser(models.User{Name: "other", Email: "other@hotel.test", Role: access.RoleHousekeeper}, "secret-other")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	ts.tokens["other"] = ts.store.IssueSession(other.UserID, time.Hour).SessionID

	resp := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/sessions", access.RoleHousekeeper, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var session sessionView
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	get := ts.do(t, http.MethodGet, "/api/sessions/"+session.SessionID, "other", nil)
	if get.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", get.Code)
	}
	pause := ts.do(t, http.MethodPost, "/api/sessions/"+session.SessionID+"/actions/pause", "other", nil)
	if pause.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", pause.Code)
	}

	malformed := ts.do(t, http.MethodGet, "/api/sessions/not-a-uuid", access.RoleHousekeeper, nil)
	if malformed.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", malformed.Code)
	}
}

func TestProblemReportAndChecklist(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")
	ts.assignTo(t, room.RoomID, access.RoleHousekeeper)

	missing := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/problem-reports", access.RoleHousekeeper, map[string]string{"type": "plumbing"})
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", missing.Code)
	}
	created := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/problem-reports", access.RoleHousekeeper, map[string]string{"type": "plumbing", "description": "leaking tap"})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", created.Code, created.Body.String())
	}

	reports := ts.do(t, http.MethodGet, "/api/rooms/"+room.RoomID+"/problem-reports", access.RoleManager, nil)
	var list []models.ProblemReport
	if err := json.NewDecoder(reports.Body).Decode(&list); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 report, got %d", len(list))
	}

	payload := map[string]interface{}{"items": map[string]bool{"bed": true}, "finalize": true, "supervisor_signature": "S. Visor"}
	forbidden := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/checklists", access.RoleHousekeeper, payload)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", forbidden.Code)
	}
	final := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/checklists", access.RoleSupervisor, payload)
	if final.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", final.Code, final.Body.String())
	}

	get := ts.do(t, http.MethodGet, "/api/rooms/"+room.RoomID, access.RoleManager, nil)
	var updated models.Room
	if err := json.NewDecoder(get.Body).Decode(&updated); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if updated.Status != models.StatusClean || updated.LastCleanedAt == nil {
		t.Fatalf("unexpected room: %+v", updated)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")
	resp := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/status", access.RoleManager, map[string]string{"state": "clean"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	ts := newTestServer(t)
	room := ts.createRoom(t, "101")
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for ts.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp := ts.do(t, http.MethodPost, "/api/rooms/"+room.RoomID+"/status", access.RoleManager, map[string]string{"status": "cleaning"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := hub.Decode(msg)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != hub.EventRoomStatusUpdate {
		t.Fatalf("expected room_status_update, got %s", env.Type)
	}
}

func TestWebSocketClosesWithGoingAwayOnShutdown(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for ts.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ts.hub.CloseAll()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
