package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// UnknownCategory is used for items the model could not place under a heading
const UnknownCategory = "Unknown"

var (
	// ErrNoArray means the response contained no [...] span at all
	ErrNoArray = errors.New("no JSON array in response")
	// ErrMalformed means the [...] span was not valid JSON
	ErrMalformed = errors.New("malformed JSON array")
	// ErrSchema means the JSON did not have the menu item shape
	ErrSchema = errors.New("response does not match menu item schema")
)

// codeFence matches the markdown fence markers models like to wrap JSON in
var codeFence = regexp.MustCompile("(?i)```json|```")

const menuItemSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "category": {"type": ["string", "null"]},
      "item": {"type": ["string", "null"]},
      "price": {"type": ["string", "null"]}
    }
  }
}`

var menuSchema = jsonschema.MustCompileString("menu-items.json", menuItemSchema)

// MenuItem is one dish extracted from a menu image
type MenuItem struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Price    string `json:"price"`
}

// Outcome is the result of sanitizing one model response.
// When Failure is set Items is always empty.
type Outcome struct {
	Items   []MenuItem
	Dropped int   // elements skipped because item or price was missing
	Failure error // why the whole response was rejected
}

// Failed reports whether the response was rejected
func (o Outcome) Failed() bool {
	return o.Failure != nil
}

type rawMenuItem struct {
	Category *string `json:"category"`
	Item     *string `json:"item"`
	Price    *string `json:"price"`
}

// Sanitize turns untrusted model output into menu items. It never fails
// loudly: anything it cannot read yields an empty Outcome with Failure set.
func Sanitize(raw string) Outcome {
	text := codeFence.ReplaceAllString(raw, "")

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end < start {
		return Outcome{Failure: ErrNoArray}
	}
	payload := []byte(text[start : end+1])

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Outcome{Failure: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := menuSchema.Validate(doc); err != nil {
		return Outcome{Failure: fmt.Errorf("%w: %v", ErrSchema, err)}
	}

	var entries []rawMenuItem
	if err := json.Unmarshal(payload, &entries); err != nil {
		return Outcome{Failure: fmt.Errorf("%w: %v", ErrSchema, err)}
	}

	out := Outcome{Items: make([]MenuItem, 0, len(entries))}
	for _, e := range entries {
		if e.Item == nil || e.Price == nil {
			out.Dropped++
			continue
		}
		category := UnknownCategory
		if e.Category != nil {
			category = *e.Category
		}
		out.Items = append(out.Items, MenuItem{Category: category, Item: *e.Item, Price: *e.Price})
	}
	return out
}
