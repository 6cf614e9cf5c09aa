// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/config"
	"github.com/plays3000/ai-server/internal/core"
	db "github.com/plays3000/ai-server/internal/core/database"
	"github.com/plays3000/ai-server/internal/core/extractor"
	"github.com/plays3000/ai-server/internal/core/intent"
	"github.com/plays3000/ai-server/internal/core/learner"
	"github.com/plays3000/ai-server/internal/core/llm"
	"github.com/plays3000/ai-server/internal/core/materializer"
	objectclient "github.com/plays3000/ai-server/internal/core/object-client"
	"github.com/plays3000/ai-server/internal/core/oracle"
	"github.com/plays3000/ai-server/internal/core/pipeline"
	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Server       *Server

	closers []io.Closer
	logger  *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{logger: logger}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient)
	logger.Info("database initialized and ready")

	objClient, err := newObjectClient(appCtx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient
	logger.Info("object storage ready", zap.String("backend", cfg.StorageBackend))

	provider, err := a.newLLMProvider(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var embedder core.EmbeddingProvider
	if cfg.AIAPIKey != "" {
		geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, geminiEmbedder)
		embedder = geminiEmbedder
	} else {
		logger.Warn("GEMINI_API_KEY not set, template routing by name similarity is disabled")
	}

	orc := oracle.New(provider, oracle.Config{
		MaxAttempts:  cfg.OracleMaxAttempts,
		BaseDelay:    cfg.OracleBaseDelay,
		SystemPrompt: cfg.OracleSystemPrompt,
	}, logger)

	learnReader := sheet.NewReader(cfg.SheetMaxRows, cfg.SheetMaxCellLen)
	chatReader := sheet.NewReader(cfg.ChatSheetMaxRows, cfg.SheetMaxCellLen)

	tplLearner := learner.New(dbClient, objClient, orc, learnReader, embedder, learner.Options{
		Bucket:     cfg.BucketName,
		AllSamples: cfg.LearnAllSamples,
	}, logger)

	useReadability := false
	p := pipeline.New(pipeline.Deps{
		DB:           dbClient,
		Oracle:       orc,
		Classifier:   intent.New(orc, logger),
		Preparer:     extractor.NewPreparer(chatReader, useReadability, logger),
		Extractor:    extractor.New(orc, logger),
		Materializer: materializer.New(objClient, cfg.BucketName, logger),
		Resolver:     pipeline.NewResolver(dbClient, embedder, cfg.DefaultTemplateName, logger),
	}, pipeline.DefaultDownloadPath, logger)

	templateSvc := services.NewTemplateService(dbClient, tplLearner)
	chatSvc := services.NewChatService(dbClient, objClient, p, cfg.BucketName, cfg.HistoryLimit)

	a.Server = NewServer(cfg, templateSvc, chatSvc, logger)
	return a, nil
}

func newObjectClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.ObjectClient, error) {
	switch cfg.StorageBackend {
	case "s3":
		return objectclient.NewS3Client(ctx, cfg, logger)
	default:
		return objectclient.NewLocalClient(cfg.StorageDir)
	}
}

// newLLMProvider picks the completion backend named by LLM_PROVIDER.
func (a *App) newLLMProvider(ctx context.Context, cfg *config.Config) (core.LLMProvider, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, a.logger)
	case "anthropic":
		return llm.NewAnthropicLLM(cfg.AnthropicAPIKey, cfg.AnthropicModel, a.logger)
	case "gemini", "":
		gen, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel, a.logger)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
		}
		a.closers = append(a.closers, gen)
		return gen, nil
	}
	return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
}

func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close failed", zap.Error(err))
	}
}
