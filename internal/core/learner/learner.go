// Package learner infers a template's data-entry cells by comparing a blank
// spreadsheet with a filled sample, then stores the result as a new active version.
package learner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
	objectclient "github.com/plays3000/ai-server/internal/core/object-client"
	"github.com/plays3000/ai-server/internal/core/repair"
	"github.com/plays3000/ai-server/internal/core/sheet"
	"github.com/plays3000/ai-server/internal/core/uploads"
	"github.com/plays3000/ai-server/internal/models"
)

const stage = "learn"

type Options struct {
	Bucket string
	// AllSamples learns from every sample instead of only the first one.
	AllSamples bool
}

type Learner struct {
	db       core.DbClient
	storage  core.ObjectClient
	oracle   core.Completer
	reader   *sheet.Reader
	embedder core.EmbeddingProvider
	opts     Options
	logger   *zap.Logger
}

// New builds a Learner. embedder may be nil, in which case templates are stored
// without a name embedding.
func New(db core.DbClient, storage core.ObjectClient, oracle core.Completer, reader *sheet.Reader, embedder core.EmbeddingProvider, opts Options, logger *zap.Logger) *Learner {
	return &Learner{
		db:       db,
		storage:  storage,
		oracle:   oracle,
		reader:   reader,
		embedder: embedder,
		opts:     opts,
		logger:   logger.Named("learner"),
	}
}

type LearnInput struct {
	TenantID string
	Name     string
	Template uploads.File
	Samples  []uploads.File
}

type Result struct {
	Template     *models.Template
	MappedFields int
}

// Learn infers the field mappings and activates them as the next version of the
// template. The uploaded files are copied into storage; the caller still owns the
// temp files.
func (l *Learner) Learn(ctx context.Context, in LearnInput) (*Result, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Template.Path == "" {
		return nil, apperrors.Wrap(stage, in.TenantID, name, fmt.Errorf("%w: template name and file are required", apperrors.ErrInvalidInput))
	}
	logger := l.logger.With(zap.String("tenant_id", in.TenantID), zap.String("template", name))

	mappings, err := l.inferMappings(ctx, in, logger)
	if err != nil {
		return nil, apperrors.Wrap(stage, in.TenantID, name, err)
	}
	if len(in.Samples) > 0 && len(mappings) == 0 {
		logger.Warn("no field mappings inferred from samples", zap.Int("samples", len(in.Samples)))
	}

	embedding := l.embedName(ctx, name, logger)

	var uploaded []string
	tpl, err := l.db.CreateTemplateVersion(ctx, in.TenantID, name, func(ctx context.Context, version int) (*models.Template, error) {
		key := objectclient.TemplateKey(in.TenantID, name, version, in.Template.Ext())
		if err := l.put(ctx, key, in.Template); err != nil {
			return nil, err
		}
		uploaded = append(uploaded, key)

		sampleKeys := make([]string, 0, len(in.Samples))
		for i, s := range in.Samples {
			sk := objectclient.SampleKey(in.TenantID, name, version, i+1, s.Ext())
			if err := l.put(ctx, sk, s); err != nil {
				return nil, err
			}
			uploaded = append(uploaded, sk)
			sampleKeys = append(sampleKeys, sk)
		}

		return &models.Template{
			FilePath:  key,
			Schema:    models.TemplateSchema{Mappings: mappings, SampleFiles: sampleKeys},
			Embedding: embedding,
		}, nil
	})
	if err != nil {
		l.discard(ctx, uploaded, logger)
		return nil, apperrors.Wrap(stage, in.TenantID, name, err)
	}

	logger.Info("template learned",
		zap.Int("version", tpl.Version),
		zap.Int("mapped_fields", len(mappings)))
	return &Result{Template: tpl, MappedFields: len(mappings)}, nil
}

// inferMappings reads the blank template and the samples concurrently, then asks
// the oracle for the cells that only the sample fills in.
func (l *Learner) inferMappings(ctx context.Context, in LearnInput, logger *zap.Logger) ([]models.FieldMapping, error) {
	samples := in.Samples
	if !l.opts.AllSamples && len(samples) > 1 {
		samples = samples[:1]
	}

	var blank *sheet.Projection
	projections := make([]*sheet.Projection, len(samples))

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := l.reader.Read(in.Template.Path)
		if err != nil {
			return fmt.Errorf("read blank template: %w", err)
		}
		blank = p
		return nil
	})
	for i, s := range samples {
		g.Go(func() error {
			p, err := l.reader.Read(s.Path)
			if err != nil {
				return fmt.Errorf("read sample %d: %w", i+1, err)
			}
			projections[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mappings := []models.FieldMapping{}
	for i, p := range projections {
		text, err := l.oracle.Complete(ctx, buildLearnPrompt(blank, p))
		if err != nil {
			return nil, err
		}
		found := Normalize(repair.Mappings(text), blank.Merges)
		logger.Debug("sample analysed", zap.Int("sample", i+1), zap.Int("fields", len(found)))
		mappings = mergeMappings(mappings, found)
	}
	return mappings, nil
}

func (l *Learner) embedName(ctx context.Context, name string, logger *zap.Logger) []float32 {
	if l.embedder == nil {
		return nil
	}
	vecs, err := l.embedder.EmbedTexts(ctx, []string{name})
	if err != nil || len(vecs) == 0 {
		logger.Warn("template name embedding failed, storing without one", zap.Error(err))
		return nil
	}
	return vecs[0]
}

func (l *Learner) put(ctx context.Context, key string, f uploads.File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("open %s: %w", f.FileName, apperrors.ErrNotFound)
		}
		return fmt.Errorf("open %s: %w", f.FileName, err)
	}
	defer src.Close()

	if _, err := l.storage.UploadFile(ctx, l.opts.Bucket, key, src, f.MIMEType); err != nil {
		return fmt.Errorf("store %s: %w: %v", f.FileName, apperrors.ErrPersistFailure, err)
	}
	return nil
}

// discard removes objects written for a version that was never committed.
func (l *Learner) discard(ctx context.Context, keys []string, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, k := range keys {
		if err := l.storage.DeleteFile(ctx, l.opts.Bucket, k); err != nil {
			logger.Warn("could not remove object of failed learn", zap.String("key", k), zap.Error(err))
		}
	}
}
