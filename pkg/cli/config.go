package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/bubbly/pkg/adapter"
	"github.com/m-mizutani/bubbly/pkg/pipeline"
	"github.com/m-mizutani/bubbly/pkg/repository"
)

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string

	// Pipeline
	profile string
	backend string

	// Adapters
	openaiAPIKey   string
	geminiProject  string
	geminiLocation string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// pipelineFlags returns flags for pipeline backend configuration with
// destination config
func pipelineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "Path to pipeline profile YAML",
			Sources:     cli.EnvVars("BUBBLY_PROFILE"),
			Destination: &cfg.profile,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Pipeline backend: local, gemini or openai",
			Sources:     cli.EnvVars("BUBBLY_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// pipelineConfig loads the profile (when given) and applies flag overrides.
func (cfg *config) pipelineConfig() (pipeline.Config, error) {
	pcfg := pipeline.DefaultConfig()
	if cfg.profile != "" {
		loaded, err := pipeline.LoadConfig(cfg.profile)
		if err != nil {
			return pcfg, err
		}
		pcfg = loaded
	}
	if cfg.backend != "" {
		pcfg.Backend = cfg.backend
	}
	return pcfg, nil
}

// newPipeline builds the processing pipeline for the configured backend.
func (cfg *config) newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	pcfg, err := cfg.pipelineConfig()
	if err != nil {
		return nil, err
	}

	switch pcfg.Backend {
	case "local", "":
		return pipeline.New(pcfg,
			pipeline.NewLocalEmbedder(pcfg.EmbeddingDim),
			pipeline.NewLocalLabeler(0),
			pipeline.WithVoter(pipeline.NewLocalVoter()),
		), nil

	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini client")
		}
		return pipeline.New(pcfg,
			pipeline.NewGeminiEmbedder(gemini, pcfg.EmbeddingModel, pcfg.EmbeddingDim),
			pipeline.NewGeminiLabeler(gemini, 0),
			pipeline.WithVoter(pipeline.NewGeminiVoter(gemini)),
		), nil

	case "openai":
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required")
		}
		client, err := adapter.NewOpenAI(cfg.openaiAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create openai client")
		}
		return pipeline.New(pcfg,
			pipeline.NewOpenAIEmbedder(client, pcfg.EmbeddingModel, pcfg.EmbeddingDim),
			pipeline.NewOpenAILabeler(client, pcfg.ChatModel, 0),
			pipeline.WithVoter(pipeline.NewOpenAIVoter(client, pcfg.ChatModel)),
		), nil

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", pcfg.Backend))
	}
}
