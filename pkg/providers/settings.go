package providers

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

// SectionSlug names the model endpoint section in parsed values and config
// files.
const SectionSlug = "oneapi"

// Settings configures an OpenAI-compatible endpoint such as OneAPI.
type Settings struct {
	Endpoint       string  `glazed:"oneapi-endpoint"`
	APIKey         string  `glazed:"oneapi-api-key"`
	ChatModel      string  `glazed:"oneapi-chat-model"`
	EmbeddingModel string  `glazed:"oneapi-embedding-model"`
	Temperature    float64 `glazed:"oneapi-temperature"`
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"OpenAI-compatible model endpoint",
		schema.WithFields(
			fields.New("oneapi-endpoint", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Base URL of the OpenAI-compatible API, e.g. http://oneapi:3000/v1")),
			fields.New("oneapi-api-key", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("API key for the model endpoint")),
			fields.New("oneapi-chat-model", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Preferred chat model; the first discovered one is used when empty")),
			fields.New("oneapi-embedding-model", fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Preferred embedding model")),
			fields.New("oneapi-temperature", fields.TypeFloat,
				fields.WithDefault(DefaultTemperature),
				fields.WithHelp("Sampling temperature for chat models")),
		),
	)
}
