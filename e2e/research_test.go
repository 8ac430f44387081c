package e2e

import (
	"net/http"
	"net/url"
	"testing"
)

func jobsOf(snap map[string]interface{}) []map[string]interface{} {
	raw, _ := snap["jobs"].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, j := range raw {
		if m, ok := j.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func prospectsOf(snap map[string]interface{}) []map[string]interface{} {
	raw, _ := snap["prospects"].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, p := range raw {
		if m, ok := p.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestDiscoveryFlow(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "user-1")

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects", `{"limit":3}`)
	assertStatus(t, resp, http.StatusOK)
	found := parseJSON(t, resp)
	if len(prospectsOf(found)) != 3 || len(jobsOf(found)) != 3 {
		t.Fatalf("expected 3 prospects and 3 jobs, got %v", found)
	}
	if found["cached"] != false {
		t.Errorf("expected a fresh discovery, got cached=%v", found["cached"])
	}

	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects", `{"limit":3}`)
	assertStatus(t, resp, http.StatusOK)
	again := parseJSON(t, resp)
	if again["cached"] != true || len(jobsOf(again)) != 0 {
		t.Errorf("expected a cached replay with no new jobs, got %v", again)
	}

	// Each poll starts exactly one dossier.
	lastProgress := float64(-1)
	var snap map[string]interface{}
	for i := 0; i < 3; i++ {
		snap = ta.poll(t, "user-1", id)
		progress, _ := snap["progress"].(float64)
		if progress < lastProgress {
			t.Errorf("progress went backwards: %v -> %v", lastProgress, progress)
		}
		lastProgress = progress
	}
	snap = ta.poll(t, "user-1", id)

	if snap["progress"] != float64(100) {
		t.Errorf("expected 100 progress, got %v", snap["progress"])
	}
	session, _ := snap["session"].(map[string]interface{})
	if session["status"] != "ready" {
		t.Errorf("expected ready session, got %v", session["status"])
	}
	for _, p := range prospectsOf(snap) {
		if p["status"] != "ready" {
			t.Errorf("prospect %v: expected ready, got %v", p["prospectKey"], p["status"])
		}
		if _, ok := p["score"].(float64); !ok {
			t.Errorf("prospect %v: expected a score", p["prospectKey"])
		}
	}
	for _, j := range jobsOf(snap) {
		if j["status"] != "complete" {
			t.Errorf("job %v: expected complete, got %v", j["id"], j["status"])
		}
	}
}

func TestDiscovery_Validation(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "user-1")

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects", `{"limit":500}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestRefreshProspect(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "user-1")
	ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects", `{"limit":1}`)
	ta.poll(t, "user-1", id)

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects/bridgeport-police-ct/refresh", "")
	assertStatus(t, resp, http.StatusAccepted)
	body := parseJSON(t, resp)
	if body["job"] == nil {
		t.Fatalf("expected a new job, got %v", body)
	}

	snap := ta.poll(t, "user-1", id)
	if len(jobsOf(snap)) != 2 {
		t.Errorf("expected 2 jobs after refresh, got %d", len(jobsOf(snap)))
	}
	snap = ta.poll(t, "user-1", id)
	if snap["progress"] != float64(100) {
		t.Errorf("expected 100 progress after the refresh finished, got %v", snap["progress"])
	}

	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects/nope/refresh", "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestRefreshProspectWithEncodedKey(t *testing.T) {
	ta := setupApp(t, appOptions{})
	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions",
		`{"criteria":{"states":["CT"],"targetCategories":["sécurité"],"productDescription":"Body-worn cameras"}}`)
	assertStatus(t, resp, http.StatusCreated)
	id, _ := parseJSON(t, resp)["sessionId"].(string)

	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects", `{"limit":1}`)
	assertStatus(t, resp, http.StatusOK)
	found := prospectsOf(parseJSON(t, resp))
	if len(found) != 1 || found[0]["prospectKey"] != "bridgeport-sécurité-ct" {
		t.Fatalf("expected bridgeport-sécurité-ct, got %v", found)
	}
	ta.poll(t, "user-1", id)

	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects/"+url.PathEscape("bridgeport-sécurité-ct")+"/refresh", "")
	assertStatus(t, resp, http.StatusAccepted)
	body := parseJSON(t, resp)
	prospect, _ := body["prospect"].(map[string]interface{})
	if prospect["prospectKey"] != "bridgeport-sécurité-ct" {
		t.Errorf("expected the refreshed prospect, got %v", body)
	}
}

func TestAdvantagesInlineAndDeferred(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "user-1")

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/advantages", `{"deferred":true}`)
	assertStatus(t, resp, http.StatusAccepted)
	pending := parseJSON(t, resp)
	if pending["status"] != "pending" {
		t.Errorf("expected pending brief, got %v", pending["status"])
	}

	snap := ta.poll(t, "user-1", id)
	if snap["advantageBriefStatus"] != "ready" {
		t.Fatalf("expected brief ready after poll, got %v", snap["advantageBriefStatus"])
	}
	brief, _ := snap["advantageBrief"].(map[string]interface{})
	if brief["positioningSummary"] == "" || brief["positioningSummary"] == nil {
		t.Error("expected a positioning summary")
	}

	resp = ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/advantages", "")
	assertStatus(t, resp, http.StatusOK)
	ready := parseJSON(t, resp)
	if ready["status"] != "ready" {
		t.Errorf("expected the ready brief back, got %v", ready["status"])
	}
}

func TestAccountPlan(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "user-1")
	ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects", `{"limit":1}`)

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/prospects/bridgeport-police-ct/plan", `{"repNotes":"Met the chief"}`)
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	plan, _ := body["plan"].(map[string]interface{})
	if plan["summary"] == nil || plan["summary"] == "" {
		t.Errorf("expected a plan summary, got %v", body)
	}

	resp = ta.send(t, "user-2", http.MethodPost, "/api/sessions/"+id+"/prospects/bridgeport-police-ct/plan", "")
	assertStatus(t, resp, http.StatusForbidden)
}

func TestExportWithoutStorage(t *testing.T) {
	ta := setupApp(t, appOptions{})
	id := createSession(t, ta, "user-1")

	resp := ta.send(t, "user-1", http.MethodPost, "/api/sessions/"+id+"/export", "")
	assertStatus(t, resp, http.StatusServiceUnavailable)
	if code := errorCode(t, resp); code != "STORAGE_UNAVAILABLE" {
		t.Errorf("expected STORAGE_UNAVAILABLE, got %s", code)
	}
}
