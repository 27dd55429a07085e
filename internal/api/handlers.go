package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// FromProtoQuery extracts the investigation text from the request.
func FromProtoQuery(req *wrapperspb.StringValue) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	text := strings.TrimSpace(req.GetValue())
	if text == "" {
		return "", fmt.Errorf("query text is required")
	}
	return text, nil
}

// ToStruct converts an incident context into its JSON-shaped Struct representation.
func ToStruct(ic *models.IncidentContext) (*structpb.Struct, error) {
	if ic == nil {
		return nil, fmt.Errorf("incident context is nil")
	}
	data, err := json.Marshal(ic)
	if err != nil {
		return nil, fmt.Errorf("encode incident context: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode incident context: %w", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes a Struct produced by ToStruct.
func FromStruct(s *structpb.Struct) (*models.IncidentContext, error) {
	if s == nil {
		return nil, fmt.Errorf("struct is nil")
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	var ic models.IncidentContext
	if err := json.Unmarshal(data, &ic); err != nil {
		return nil, fmt.Errorf("decode incident context: %w", err)
	}
	return &ic, nil
}
