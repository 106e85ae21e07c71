package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chorus/pkg/protocol"
	"chorus/pkg/web"
)

// fakeSource serves canned snapshots.
type fakeSource struct {
	bots map[string]protocol.BotData
}

func (s *fakeSource) BotNames() []string {
	out := make([]string, 0, len(s.bots))
	for name := range s.bots {
		out = append(out, name)
	}
	return out
}

func (s *fakeSource) BotData(name string) (protocol.BotData, bool) {
	d, ok := s.bots[name]
	return d, ok
}

func (s *fakeSource) BotDatas() []protocol.BotData {
	out := make([]protocol.BotData, 0, len(s.bots))
	for _, d := range s.bots {
		out = append(out, d)
	}
	return out
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNamesEndpoint(t *testing.T) {
	t.Parallel()

	src := &fakeSource{bots: map[string]protocol.BotData{
		"Gerhild": {Name: "Gerhild", Channel: "Jam", State: protocol.StatePlaying},
	}}
	h := web.New("127.0.0.1:0", src).Handler()

	rec := get(t, h, "/api/names")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 1 || names[0] != "Gerhild" {
		t.Fatalf("names = %v", names)
	}
}

func TestNamesEndpointEmptyFarm(t *testing.T) {
	t.Parallel()

	h := web.New("127.0.0.1:0", &fakeSource{bots: map[string]protocol.BotData{}}).Handler()

	rec := get(t, h, "/api/names")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// An empty farm serializes as [], never null.
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("body = %q, want []", got)
	}
}

func TestBotsEndpoint(t *testing.T) {
	t.Parallel()

	src := &fakeSource{bots: map[string]protocol.BotData{
		"Gerhild":  {Name: "Gerhild", Channel: "Jam", State: protocol.StatePlaying, CurrentTrack: "walkuere"},
		"Ortlinde": {Name: "Ortlinde", Channel: "Lounge", State: protocol.StateStopped},
	}}
	h := web.New("127.0.0.1:0", src).Handler()

	rec := get(t, h, "/api/bots")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var datas []protocol.BotData
	if err := json.Unmarshal(rec.Body.Bytes(), &datas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(datas) != 2 {
		t.Fatalf("bots = %+v", datas)
	}
}

func TestBotEndpoint(t *testing.T) {
	t.Parallel()

	src := &fakeSource{bots: map[string]protocol.BotData{
		"Gerhild": {Name: "Gerhild", Channel: "Jam", State: protocol.StatePaused, Volume: 0.8},
	}}
	h := web.New("127.0.0.1:0", src).Handler()

	rec := get(t, h, "/api/bots/Gerhild")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var data protocol.BotData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Name != "Gerhild" || data.State != protocol.StatePaused || data.Volume != 0.8 {
		t.Fatalf("bot = %+v", data)
	}

	if rec := get(t, h, "/api/bots/Nobody"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bot status = %d, want 404", rec.Code)
	}
}
