package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"
)

// KeyBuilder renders a workflow's idempotency_key_strategy into a concrete key.
//
// Template tokens are separated by ':' and may be userId, workflowId, hash(params),
// businessDay, inputs.<field>, or a literal that is copied as is.
type KeyBuilder struct {
	defaultTemplate string
	location        *time.Location
}

func NewKeyBuilder(defaultTemplate string, location *time.Location) *KeyBuilder {
	if defaultTemplate == "" {
		defaultTemplate = "userId:workflowId:hash(params):businessDay"
	}
	if location == nil {
		location = time.UTC
	}
	return &KeyBuilder{defaultTemplate: defaultTemplate, location: location}
}

// Derive is deterministic for equal user, workflow, inputs and business day.
func (b *KeyBuilder) Derive(def models.WorkflowDefinition, req models.ExecutionRequest, now time.Time) (string, error) {
	template := def.Metadata.IdempotencyKeyStrategy
	if template == "" {
		template = b.defaultTemplate
	}

	tokens := strings.Split(template, ":")
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch {
		case tok == "userId":
			parts = append(parts, req.UserID)
		case tok == "workflowId":
			parts = append(parts, def.ID)
		case tok == "hash(params)":
			h, err := HashParams(req.Inputs)
			if err != nil {
				return "", errors.NewInvalidInputError(fmt.Sprintf("inputs cannot be hashed: %v", err))
			}
			parts = append(parts, h)
		case tok == "businessDay":
			parts = append(parts, BusinessDay(now, b.location))
		case strings.HasPrefix(tok, "inputs."):
			parts = append(parts, inputValue(req.Inputs, strings.TrimPrefix(tok, "inputs.")))
		default:
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, ":"), nil
}

// HashParams hashes the canonical JSON encoding of inputs. Map keys are sorted by
// encoding/json, so key order in the request does not matter.
func HashParams(inputs map[string]interface{}) (string, error) {
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

// BusinessDay is the calendar date of now in loc.
func BusinessDay(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

func inputValue(inputs map[string]interface{}, field string) string {
	v, ok := inputs[field]
	if !ok || v == nil {
		return "_"
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
