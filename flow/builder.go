package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"ppt_generator/config"
	"ppt_generator/events"
	"ppt_generator/generator"
	"ppt_generator/sessions"
	"ppt_generator/storage"
	"ppt_generator/tools"
)

var (
	ErrEmptyTopic         = errors.New("topic is empty")
	ErrMissingCredentials = errors.New("llm or search api key missing")
)

const defaultLangfuseHost = "https://cloud.langfuse.com"

// UserMessage turns input errors into the message shown next to the form.
// Other errors come back with their own text.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyTopic):
		return "Please enter a topic"
	case errors.Is(err, ErrMissingCredentials):
		return "Please enter both your LLM and search API keys"
	default:
		return err.Error()
	}
}

// Builder assembles a Pipeline per run from the server configuration and the
// credentials of the requesting session. Components without per-user state
// (validator, writer, event publisher) are shared across runs.
type Builder struct {
	Config    config.Config
	Validator tools.BatchValidator
	Writer    *storage.Writer
	Events    events.Publisher
	Verbose   bool
	Logger    *log.Logger

	// NewLLM defaults to generator.NewLLM.
	NewLLM func(generator.LLMSettings) (generator.LLMClient, error)
	// NewSearcher defaults to the configured search provider.
	NewSearcher func(provider, apiKey string, results int) (tools.Searcher, error)
}

func (b *Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.Default()
	}
	return b.Logger
}

// keys resolves the keys for a run: session values win over configuration.
func (b *Builder) keys(creds sessions.Credentials) sessions.Credentials {
	base := sessions.Credentials{
		LLMAPIKey:         b.Config.LLM.APIKey,
		SearchAPIKey:      b.Config.Search.APIKey,
		LangfusePublicKey: b.Config.Tracing.LangfusePublicKey,
		LangfuseSecretKey: b.Config.Tracing.LangfuseSecretKey,
	}
	return base.Merge(creds)
}

func (b *Builder) needsLLMKey() bool {
	return !strings.EqualFold(b.Config.LLM.Provider, "mock")
}

func (b *Builder) needsSearchKey() bool {
	return !strings.EqualFold(b.Config.Search.Provider, "duckduckgo")
}

// Check validates the input of a run before anything expensive starts.
func (b *Builder) Check(topic string, creds sessions.Credentials) error {
	if strings.TrimSpace(topic) == "" {
		return ErrEmptyTopic
	}
	keys := b.keys(creds)
	if (b.needsLLMKey() && keys.LLMAPIKey == "") || (b.needsSearchKey() && keys.SearchAPIKey == "") {
		return ErrMissingCredentials
	}
	return nil
}

// Build wires both crews for one run. ctx bounds the tracer's background
// flushing and should live as long as the run.
func (b *Builder) Build(ctx context.Context, creds sessions.Credentials) (*Pipeline, error) {
	if b.Writer == nil || b.Validator == nil {
		return nil, errors.New("builder needs a writer and a validator")
	}
	keys := b.keys(creds)

	newLLM := b.NewLLM
	if newLLM == nil {
		newLLM = generator.NewLLM
	}
	llm, err := newLLM(generator.LLMSettings{
		Provider: b.Config.LLM.Provider,
		Model:    b.Config.LLM.Model,
		APIKey:   keys.LLMAPIKey,
		BaseURL:  b.Config.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	newSearcher := b.NewSearcher
	if newSearcher == nil {
		newSearcher = NewSearcher
	}
	searcher, err := newSearcher(b.Config.Search.Provider, keys.SearchAPIKey, b.Config.Search.Results)
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}

	search := tools.NewValidatedSearch(searcher, b.Validator, b.Config.Search.Replacement)
	research := generator.NewResearchCrew(llm, search, tools.NewPageReader(0), b.Writer)
	research.Verbose = b.Verbose
	write := generator.NewWriterCrew(llm)
	write.Verbose = b.Verbose

	return NewPipeline(research, write, b.Writer, Options{
		Tracer:  b.tracer(ctx, keys),
		Events:  b.Events,
		Verbose: b.Verbose,
		Logger:  b.Logger,
	})
}

func (b *Builder) tracer(ctx context.Context, keys sessions.Credentials) Tracer {
	cfg := LangfuseConfig{
		Host:      b.Config.Tracing.LangfuseHost,
		PublicKey: keys.LangfusePublicKey,
		SecretKey: keys.LangfuseSecretKey,
	}
	if cfg.Host == "" && cfg.PublicKey != "" && cfg.SecretKey != "" {
		cfg.Host = defaultLangfuseHost
	}
	if !cfg.Enabled() {
		return NopTracer{}
	}
	return NewLangfuseTracer(ctx, cfg, b.logger())
}

// NewSearcher returns the search backend for provider.
func NewSearcher(provider, apiKey string, results int) (tools.Searcher, error) {
	switch strings.ToLower(provider) {
	case "", "serper":
		if apiKey == "" {
			return nil, ErrMissingCredentials
		}
		return tools.NewSerper(apiKey, results), nil
	case "duckduckgo":
		return tools.NewDuckDuckGo(results), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", provider)
	}
}
