package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbeck/parley/internal/auth"
	"github.com/pbeck/parley/internal/chat"
	"github.com/pbeck/parley/internal/identity"
	"github.com/pbeck/parley/internal/middleware"
	"github.com/pbeck/parley/internal/store/sqlstore"
	"github.com/pbeck/parley/internal/ws"
)

// testApp wires the real store, hub, and service behind the real router and
// auth middleware, so requests here exercise the same path production does.
type testApp struct {
	router *mux.Router
	store  *sqlstore.SQLStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := ws.NewHub(st, nil)
	t.Cleanup(hub.Shutdown)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	service := &chat.Service{
		Store:     st,
		Directory: identity.NewDirectory(st),
		Rooms:     hub,
	}

	authHandler := &AuthHandler{Store: st, Tokens: tokens}
	chatHandler := &ChatHandler{Service: service}
	authed := middleware.Auth(tokens)

	r := mux.NewRouter()
	r.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")

	api := r.PathPrefix("/").Subrouter()
	api.Use(authed)
	api.HandleFunc("/users/search", authHandler.SearchUsers).Methods("GET")
	api.HandleFunc("/chats", chatHandler.GetChats).Methods("GET")
	api.HandleFunc("/chats/dm", chatHandler.CreateDM).Methods("POST")
	api.HandleFunc("/chats/group", chatHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/chats/{id}/members", chatHandler.GetMembers).Methods("GET")
	api.HandleFunc("/chats/{id}/members", chatHandler.AddMember).Methods("POST")
	api.HandleFunc("/chats/{id}/members/{userId}", chatHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/chats/{id}/leave", chatHandler.Leave).Methods("GET")
	api.HandleFunc("/chats/{id}/messages", chatHandler.GetMessages).Methods("GET")
	api.HandleFunc("/chats/{id}/messages", chatHandler.PostMessage).Methods("POST")

	return &testApp{router: r, store: st}
}

func (app *testApp) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	app.router.ServeHTTP(rr, req)
	return rr
}

// signup registers a user and returns the session cookie from login.
func (app *testApp) signup(t *testing.T, username string) *http.Cookie {
	t.Helper()
	creds := map[string]string{"username": username, "password": "hunter2"}
	if rr := app.do(t, "POST", "/signup", creds, nil); rr.Code != http.StatusCreated {
		t.Fatalf("Signup for %s returned %d: %s", username, rr.Code, rr.Body.String())
	}
	rr := app.do(t, "POST", "/login", creds, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Login for %s returned %d: %s", username, rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	t.Fatalf("Expected a %s cookie on login", middleware.SessionCookie)
	return nil
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestSignupDuplicateUsername(t *testing.T) {
	app := newTestApp(t)
	app.signup(t, "alice")

	creds := map[string]string{"username": "alice", "password": "other"}
	if rr := app.do(t, "POST", "/signup", creds, nil); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a duplicate username, got %d", rr.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	app := newTestApp(t)
	app.signup(t, "alice")

	creds := map[string]string{"username": "alice", "password": "wrong"}
	if rr := app.do(t, "POST", "/login", creds, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a bad password, got %d", rr.Code)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	app := newTestApp(t)
	if rr := app.do(t, "GET", "/chats", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a session, got %d", rr.Code)
	}
}

func TestCreateDMFlow(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice")
	app.signup(t, "bob")

	rr := app.do(t, "POST", "/chats/dm", map[string]string{"username": "bob"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("CreateDM returned %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	chatView := body["chat"].(map[string]interface{})
	if chatView["name"] != "bob" {
		t.Errorf("Expected the DM named after bob, got %v", chatView["name"])
	}

	// Same chat on repeat.
	rr = app.do(t, "POST", "/chats/dm", map[string]string{"username": "bob"}, alice)
	again := decode(t, rr)["chat"].(map[string]interface{})
	if again["id"] != chatView["id"] {
		t.Error("Expected the existing DM back on a repeated request")
	}
}

func TestCreateDMErrors(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice")

	if rr := app.do(t, "POST", "/chats/dm", map[string]string{"username": "alice"}, alice); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a self DM, got %d", rr.Code)
	}
	if rr := app.do(t, "POST", "/chats/dm", map[string]string{"username": "ghost"}, alice); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown user, got %d", rr.Code)
	}
	if rr := app.do(t, "POST", "/chats/dm", map[string]string{}, alice); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a missing username, got %d", rr.Code)
	}
}

func TestMessageFlow(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice")
	app.signup(t, "bob")

	rr := app.do(t, "POST", "/chats/dm", map[string]string{"username": "bob"}, alice)
	chatID := decode(t, rr)["chat"].(map[string]interface{})["id"].(string)

	rr = app.do(t, "POST", "/chats/"+chatID+"/messages", map[string]string{"content": "hello"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("PostMessage returned %d: %s", rr.Code, rr.Body.String())
	}
	view := decode(t, rr)["message_view"].(map[string]interface{})
	if view["sender_name"] != "alice" {
		t.Errorf("Expected sender alice, got %v", view["sender_name"])
	}

	rr = app.do(t, "GET", "/chats/"+chatID+"/messages", nil, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("GetMessages returned %d: %s", rr.Code, rr.Body.String())
	}
	messages := decode(t, rr)["messages"].([]interface{})
	if len(messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(messages))
	}

	// An empty message is rejected.
	rr = app.do(t, "POST", "/chats/"+chatID+"/messages", map[string]string{}, alice)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty message, got %d", rr.Code)
	}
}

func TestGroupFlow(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice")
	bob := app.signup(t, "bob")
	app.signup(t, "carol")

	rr := app.do(t, "POST", "/chats/group", map[string]interface{}{
		"group_name": "Lunch",
		"invitees":   []map[string]interface{}{{"username": "bob"}, {"username": "ghost"}},
	}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("CreateGroup returned %d: %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	failed := body["failed_invitees"].([]interface{})
	if len(failed) != 1 || failed[0] != "ghost" {
		t.Errorf("Expected ghost in failed_invitees, got %v", failed)
	}
	chatID := body["chat"].(map[string]interface{})["id"].(string)

	// A non-admin cannot add members.
	rr = app.do(t, "POST", "/chats/"+chatID+"/members", map[string]interface{}{"username": "carol"}, bob)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a non-admin add, got %d", rr.Code)
	}

	rr = app.do(t, "POST", "/chats/"+chatID+"/members", map[string]interface{}{"username": "carol"}, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("AddMember returned %d: %s", rr.Code, rr.Body.String())
	}
	members := decode(t, rr)["members"].([]interface{})
	if len(members) != 3 {
		t.Errorf("Expected 3 members, got %d", len(members))
	}

	if rr := app.do(t, "GET", "/chats/"+chatID+"/leave", nil, bob); rr.Code != http.StatusOK {
		t.Errorf("Expected leaving to succeed, got %d: %s", rr.Code, rr.Body.String())
	}
	// Bob is out; the member listing is closed to former members.
	if rr := app.do(t, "GET", "/chats/"+chatID+"/members", nil, bob); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 after leaving, got %d", rr.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "alice")
	app.signup(t, "alfred")
	app.signup(t, "bob")

	rr := app.do(t, "GET", "/users/search?q=al", nil, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("SearchUsers returned %d: %s", rr.Code, rr.Body.String())
	}
	users := decode(t, rr)["users"].([]interface{})
	if len(users) != 2 {
		t.Errorf("Expected alice and alfred, got %d users", len(users))
	}
}
