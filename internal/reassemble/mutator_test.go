package reassemble

import "testing"

func TestInjectBeforeBodyClose(t *testing.T) {
	body := []byte("<!DOCTYPE html><html><body>hi</body></html>")
	overlay := []byte("<div class=\"M+I_Proxy\">hint</div>")

	result, injected := InjectBeforeBodyClose(body, overlay)
	if !injected {
		t.Fatalf("expected injection to occur")
	}
	if !contains(result, overlay) {
		t.Fatalf("expected overlay present in result")
	}
	if !contains(result, []byte("</body>")) {
		t.Fatalf("expected closing body tag preserved")
	}
}

func TestInjectBeforeBodyCloseIdempotent(t *testing.T) {
	body := []byte("<!DOCTYPE html><html><body>hi<div class=\"M+I_Proxy\">old</div></body></html>")
	overlay := []byte("<div class=\"M+I_Proxy\">new</div>")

	result, injected := InjectBeforeBodyClose(body, overlay)
	if injected {
		t.Fatalf("expected no re-injection into already-injected body")
	}
	if string(result) != string(body) {
		t.Fatalf("expected body unchanged on idempotent path")
	}
}

func TestInjectBeforeBodyCloseRequiresDoctype(t *testing.T) {
	body := []byte("<html><body>hi</body></html>")
	_, injected := InjectBeforeBodyClose(body, []byte("overlay"))
	if injected {
		t.Fatalf("expected no injection without DOCTYPE")
	}
}

func TestRewriteContentLength(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\nConnection: close\r\n")
	rewritten := RewriteContentLength(header, 99)
	if ContentLength(rewritten) != 99 {
		t.Fatalf("expected rewritten length 99, got %d", ContentLength(rewritten))
	}
}

func TestExtractGuess(t *testing.T) {
	body := []byte(`{"answer: r: fail, guessed: d: null}`)
	guess, ok := ExtractGuess(body)
	if !ok {
		t.Fatalf("expected guess to be found")
	}
	if guess == "" {
		t.Fatalf("expected non-empty guess")
	}
}

func TestExtractGuessAbsent(t *testing.T) {
	if _, ok := ExtractGuess([]byte("no markers here")); ok {
		t.Fatalf("expected no guess found")
	}
}

func contains(haystack, needle []byte) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) != -1
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
