package models

// JSONSchema is the contract attached to a step or workflow boundary.
// It serializes to a JSON Schema document.
type JSONSchema struct {
	Type                 string               `json:"type"`
	Properties           map[string]*Property `json:"properties,omitempty"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty"`
	Title                string               `json:"title,omitempty"`
	Description          string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	MaxLength   *int                 `json:"maxLength,omitempty"`
	Minimum     *float64             `json:"minimum,omitempty"`
	Maximum     *float64             `json:"maximum,omitempty"`
	Pattern     string               `json:"pattern,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// ObjectSchema builds an object schema from its properties and required field names.
func ObjectSchema(properties map[string]*Property, required ...string) *JSONSchema {
	return &JSONSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func StringProperty(description string) *Property {
	return &Property{Type: "string", Description: description}
}

func NumberProperty(description string) *Property {
	return &Property{Type: "number", Description: description}
}

func IntegerProperty(description string) *Property {
	return &Property{Type: "integer", Description: description}
}

func ObjectProperty(description string, properties map[string]*Property, required ...string) *Property {
	return &Property{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}
