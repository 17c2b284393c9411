// Package channel carries messages between the foreground agent and the
// background worker over loopback WebSockets. Delivery is best effort:
// anything the channel loses can be recovered from the durable store.
package channel

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

//go:embed message.schema.json
var messageSchema []byte

const schemaURL = "https://gophbeat.local/message.schema.json"

var ErrMalformed = errors.New("malformed channel message")

// Validator checks raw messages against the message schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(messageSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load message schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile message schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Parse validates data and decodes it.
func (v *Validator) Parse(data []byte) (models.Message, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return m, nil
}
