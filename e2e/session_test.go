package e2e

import (
	"net/http"
	"testing"
)

const ctCriteria = `{"criteria":{"states":["CT"],"targetCategories":["police"],"competitors":["Axon"],"productDescription":"Body-worn cameras"}}`

func createSession(t *testing.T, ta *testApp, userID string) string {
	t.Helper()
	resp := ta.send(t, userID, http.MethodPost, "/api/sessions", ctCriteria)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("create session: status %d: %s", resp.StatusCode, readBody(t, resp))
	}
	body := parseJSON(t, resp)
	id, _ := body["sessionId"].(string)
	if id == "" {
		t.Fatalf("expected sessionId, got %v", body)
	}
	return id
}

func TestCreateSession_RequiresIdentity(t *testing.T) {
	ta := setupApp(t, appOptions{})

	resp := ta.send(t, "", http.MethodPost, "/api/sessions", ctCriteria)
	assertStatus(t, resp, http.StatusUnauthorized)
	if code := errorCode(t, resp); code != "AUTH_REQUIRED" {
		t.Errorf("expected AUTH_REQUIRED, got %s", code)
	}
}

func TestCreateSession_InvalidToken(t *testing.T) {
	ta := setupApp(t, appOptions{allowAnonymous: true})

	resp, err := doRequest(ta.app, http.MethodPost, "/api/sessions", ctCriteria, map[string]string{
		"Authorization": "Bearer not-a-real-token",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateSession_Dedup(t *testing.T) {
	ta := setupApp(t, appOptions{})

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions", ctCriteria)
	assertStatus(t, resp, http.StatusCreated)
	first := parseJSON(t, resp)
	if first["isExisting"] != false {
		t.Errorf("expected a new session, got %v", first)
	}

	reordered := `{"criteria":{"states":[" ct "],"targetCategories":["Police"],"competitors":["axon"],"productDescription":"Body-worn  cameras"}}`
	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions", reordered)
	assertStatus(t, resp, http.StatusOK)
	second := parseJSON(t, resp)
	if second["sessionId"] != first["sessionId"] || second["isExisting"] != true {
		t.Errorf("expected the existing session %v, got %v", first["sessionId"], second)
	}

	resp = ta.send(t, "user-2", http.MethodPost, "/api/sessions", ctCriteria)
	assertStatus(t, resp, http.StatusCreated)
	third := parseJSON(t, resp)
	if third["sessionId"] == first["sessionId"] {
		t.Error("another caller must not receive the same session")
	}
}

func TestCreateSession_Validation(t *testing.T) {
	ta := setupApp(t, appOptions{})

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions", `{"criteria":{"states":[]}}`)
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}

	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions", `{not json`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestSessionAccess(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "owner")

	resp := ta.send(t, "owner", http.MethodGet, "/api/sessions/"+id, "")
	assertStatus(t, resp, http.StatusOK)

	resp = ta.send(t, "intruder", http.MethodGet, "/api/sessions/"+id, "")
	assertStatus(t, resp, http.StatusForbidden)

	resp = ta.send(t, "", http.MethodGet, "/api/sessions/"+id+"/poll", "")
	assertStatus(t, resp, http.StatusForbidden)

	resp = ta.send(t, "owner", http.MethodGet, "/api/sessions/does-not-exist", "")
	assertStatus(t, resp, http.StatusNotFound)
	if code := errorCode(t, resp); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestAnonymousSessionReadableByID(t *testing.T) {
	ta := setupApp(t, appOptions{allowAnonymous: true})
	id := createSession(t, ta, "")

	resp := ta.send(t, "someone", http.MethodGet, "/api/sessions/"+id, "")
	assertStatus(t, resp, http.StatusOK)

	snap := ta.poll(t, "", id)
	session, _ := snap["session"].(map[string]interface{})
	if session["status"] != "created" {
		t.Errorf("expected created session, got %v", session["status"])
	}
	if snap["progress"] != float64(0) {
		t.Errorf("expected 0 progress, got %v", snap["progress"])
	}
}
