// Package extractor fills a template's fields from a free-form message and the
// files attached to it.
package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/core/repair"
	"github.com/plays3000/ai-server/internal/models"
)

type Extractor struct {
	oracle core.Completer
	logger *zap.Logger
}

func New(oracle core.Completer, logger *zap.Logger) *Extractor {
	return &Extractor{oracle: oracle, logger: logger.Named("extractor")}
}

// Extract asks for a JSON object keyed by the mapping keys. Keys the model leaves
// out, or invents, are simply absent from the result.
func (e *Extractor) Extract(ctx context.Context, mappings []models.FieldMapping, message string, ref *Reference) (models.ExtractedData, error) {
	data := models.ExtractedData{}
	if len(mappings) == 0 {
		return data, nil
	}

	var attachments []core.Attachment
	if ref != nil {
		attachments = ref.Attachments
	}
	text, err := e.oracle.Complete(ctx, buildPrompt(mappings, message, ref), attachments...)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		known[m.Key] = true
	}
	for k, v := range repair.JSONObject(text) {
		if known[k] {
			data[k] = v
		}
	}

	e.logger.Debug("fields extracted", zap.Int("requested", len(mappings)), zap.Int("found", len(data)))
	return data, nil
}

func buildPrompt(mappings []models.FieldMapping, message string, ref *Reference) string {
	type field struct {
		Key         string `json:"key"`
		Description string `json:"description"`
	}
	fields := make([]field, 0, len(mappings))
	for _, m := range mappings {
		fields = append(fields, field{Key: m.Key, Description: m.Description})
	}
	schema, _ := json.Marshal(fields)

	var b strings.Builder
	b.WriteString("[Goal]: Extract values for the fields below and answer with a single JSON object ")
	b.WriteString("whose keys are the field keys. Leave out fields you cannot find. Output only JSON.\n")
	b.WriteString("[Message]: \"" + message + "\"\n")
	if ref != nil && ref.Text != "" {
		b.WriteString("[Data]: " + ref.Text + "\n")
	}
	if ref != nil && len(ref.Attachments) > 0 {
		b.WriteString("[Attachments]: the attached files are part of the data.\n")
	}
	b.WriteString("[Schema]: " + string(schema) + "\n")
	return b.String()
}
