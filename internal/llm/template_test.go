package llm

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderOverlayIncludesHintsAndPort(t *testing.T) {
	h := Hints{Category1: "one", Category2: "two", Category3: "three", Category4: "four"}
	out := RenderOverlay(h, 8443)

	for _, want := range []string{"Hint 1: one", "Hint 2: two", "Hint 3: three", "Hint 4: four"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Fatalf("expected overlay to contain %q", want)
		}
	}
	if !strings.Contains(string(out), "fetch('http://127.0.0.1:8443'") {
		t.Fatalf("expected regenerate button to fetch the listening proxy port")
	}
	if !strings.Contains(string(out), `class="M+I_Proxy"`) {
		t.Fatalf("expected overlay to carry the injection marker class")
	}
}
