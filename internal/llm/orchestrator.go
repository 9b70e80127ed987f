package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/hintproxy/hintproxy/internal/logging"
	"github.com/hintproxy/hintproxy/pkg/errors"
)

var log = logging.For("llm")

// Prompt is the fixed system prompt the reference proxy sends with every
// hint request (original_source/LLM.c's makeLLMCall / sendNewlyGeneratedHints).
const Prompt = "Please give one descriptive but obscure hint for each one of the following 4 categories. " +
	"Don't directly mention the category and use this format for your respose: " +
	"Category 1: [hint]; Category 2: [hint]; Category 3: [hint]; Category 4: [hint]. " +
	"Please keep each hint around 300-500 characters."

const (
	categoryMarker1 = "Category 1:"
	categoryMarker2 = "Category 2:"
	categoryMarker3 = "Category 3:"
	categoryMarker4 = "Category 4:"
	gradeTerminator = "\", \"grade\""
	markerLen       = len(categoryMarker1) + 1 // marker text plus the single space before the hint
)

// Hints is the parsed four-category result of one LLM call.
type Hints struct {
	Category1 string
	Category2 string
	Category3 string
	Category4 string
}

// Orchestrator builds prompts, calls the LLM client, and parses its
// response into the four hints the overlay displays (spec §4.J).
type Orchestrator struct {
	Client     *Client
	Model      string
	ProxyPort  int
	Categories string
}

// NewOrchestrator builds an Orchestrator around an already-configured
// Client, loading the seed categories solution from path the way
// initializeCategories reads categories.txt at proxy startup.
func NewOrchestrator(client *Client, model string, proxyPort int, categoriesPath string) (*Orchestrator, error) {
	content, err := os.ReadFile(categoriesPath)
	if err != nil {
		return nil, errors.NewIOError("read-categories", err)
	}
	return &Orchestrator{
		Client:     client,
		Model:      model,
		ProxyPort:  proxyPort,
		Categories: string(content),
	}, nil
}

// BuildQuery folds the categories solution together with the player's most
// recent guess (if any was captured off the wire, spec §4.H's boundary
// note and SUPPLEMENTED FEATURES #2) into a single query string, matching
// the original's theProxy->connSolution / theProxy->connGuess pairing.
func (o *Orchestrator) BuildQuery(guess string) string {
	if guess == "" {
		return o.Categories
	}
	return fmt.Sprintf("%s\nPlayer's last guess: %s", o.Categories, guess)
}

// GenerateHints calls the LLM with the given query and parses its
// response. On a transport or parse failure it returns empty Hints together
// with the error, so a caller can fall back to empty hints per spec §7
// ("malformed LLM response" -> empty hints) and still log the error.
func (o *Orchestrator) GenerateHints(ctx context.Context, guess string) (Hints, error) {
	query := o.BuildQuery(guess)

	raw, metrics, err := o.Client.Post(ctx, o.Model, Prompt, query)
	if err != nil {
		return Hints{}, err
	}
	log.WithField("metrics", metrics.String()).Debug("llm call completed")

	hints, err := ParseHints(raw)
	if err != nil {
		return Hints{}, err
	}
	return hints, nil
}

// ParseHints locates the four "Category N:" markers and the closing
// `", "grade"` terminator in an LLM response and slices out each hint,
// mirroring extractResponse's offset arithmetic byte for byte: each hint
// starts 12 bytes past its own marker (the 11-byte marker text plus the
// space after it) and ends 4 bytes before the next marker, with the fourth
// hint instead ending exactly at the grade terminator.
func ParseHints(response []byte) (Hints, error) {
	idx1 := bytes.Index(response, []byte(categoryMarker1))
	idx2 := bytes.Index(response, []byte(categoryMarker2))
	idx3 := bytes.Index(response, []byte(categoryMarker3))
	idx4 := bytes.Index(response, []byte(categoryMarker4))
	idxEnd := bytes.Index(response, []byte(gradeTerminator))

	if idx1 == -1 || idx2 == -1 || idx3 == -1 || idx4 == -1 || idxEnd == -1 {
		return Hints{}, errors.NewProtocolError("llm response missing category markers", nil)
	}

	const offset = markerLen
	const trailer = 4 // bytes dropped before the next marker: the "; " separator plus the hint's last two bytes

	cat1, err := sliceHint(response, idx1+offset, idx2-trailer)
	if err != nil {
		return Hints{}, err
	}
	cat2, err := sliceHint(response, idx2+offset, idx3-trailer)
	if err != nil {
		return Hints{}, err
	}
	cat3, err := sliceHint(response, idx3+offset, idx4-trailer)
	if err != nil {
		return Hints{}, err
	}
	cat4, err := sliceHint(response, idx4+offset, idxEnd)
	if err != nil {
		return Hints{}, err
	}

	return Hints{Category1: cat1, Category2: cat2, Category3: cat3, Category4: cat4}, nil
}

func sliceHint(response []byte, start, end int) (string, error) {
	if start < 0 || end < start || end > len(response) {
		return "", errors.NewProtocolError("llm response category bounds out of range", nil)
	}
	return string(response[start:end]), nil
}
