package llm

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

func TestRegenerateHintsJSONFallsBackToEmptyOnError(t *testing.T) {
	o := &Orchestrator{Client: NewClient("127.0.0.1", 1, ""), Model: "4o-mini", Categories: "sol"}

	body, err := RegenerateHintsJSON(context.Background(), o, "")
	if err != nil {
		t.Fatalf("RegenerateHintsJSON returned error: %v", err)
	}

	var decoded struct {
		Hints []string `json:"hints"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("expected valid JSON body, got error: %v", err)
	}
	if len(decoded.Hints) != 4 {
		t.Fatalf("expected 4 hints, got %d", len(decoded.Hints))
	}
}

func TestRegenerateHintsResponseHasCorrectContentLength(t *testing.T) {
	body := []byte(`{"hints":["a","b","c","d"]}`)
	resp := RegenerateHintsResponse(body)

	want := "Content-Length: " + strconv.Itoa(len(body))
	if !strings.Contains(string(resp), want) {
		t.Fatalf("expected response to declare content length %d, got:\n%s", len(body), resp)
	}
	if !strings.HasSuffix(string(resp), string(body)) {
		t.Fatalf("expected response body to be appended verbatim")
	}
	if !strings.Contains(string(resp), "Access-Control-Allow-Origin: *") {
		t.Fatalf("expected CORS header in response")
	}
}
