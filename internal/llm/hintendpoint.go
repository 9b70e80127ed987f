package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// RegenerateHintsJSON runs the orchestrator again and wraps its four hints
// in the JSON body the overlay's fetch() call expects, matching
// sendNewlyGeneratedHints's {"hints": [...]} shape.
func RegenerateHintsJSON(ctx context.Context, o *Orchestrator, guess string) ([]byte, error) {
	hints, err := o.GenerateHints(ctx, guess)
	if err != nil {
		hints = Hints{}
	}
	return json.Marshal(struct {
		Hints []string `json:"hints"`
	}{Hints: []string{hints.Category1, hints.Category2, hints.Category3, hints.Category4}})
}

// RegenerateHintsResponse builds the full HTTP/1.1 response
// sendNewlyGeneratedHints writes back to the client: the hints JSON body,
// CORS headers, and a correct Content-Length.
func RegenerateHintsResponse(body []byte) []byte {
	head := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"Content-Type: application/json\r\n"+
			"Access-Control-Allow-Origin: *\r\n"+
			"Access-Control-Allow-Methods: POST, OPTIONS\r\n"+
			"Access-Control-Allow-Headers: Content-Type, X-Action\r\n"+
			"Content-Length: %d\r\n\r\n", len(body))
	return append([]byte(head), body...)
}
