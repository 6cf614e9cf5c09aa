// Package pipeline runs one chat request: classify it, then either answer it or
// fill the tenant's template, and record the exchange.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
	"github.com/plays3000/ai-server/internal/core/extractor"
	"github.com/plays3000/ai-server/internal/core/intent"
	"github.com/plays3000/ai-server/internal/core/materializer"
	"github.com/plays3000/ai-server/internal/core/uploads"
	"github.com/plays3000/ai-server/internal/models"
)

const DefaultDownloadPath = "/api/chat/download/generated/"

type classifier interface {
	Classify(ctx context.Context, message string) (intent.Intent, error)
}

type preparer interface {
	Prepare(ctx context.Context, files []uploads.File) (*extractor.Reference, error)
}

type fieldExtractor interface {
	Extract(ctx context.Context, mappings []models.FieldMapping, message string, ref *extractor.Reference) (models.ExtractedData, error)
}

type documentWriter interface {
	Materialize(ctx context.Context, tpl *models.Template, data models.ExtractedData, actorName string) (*materializer.Output, error)
}

type templateResolver interface {
	Resolve(ctx context.Context, tenantID, requested, message string) (*models.Template, error)
}

// Deps are the stages a Pipeline runs.
type Deps struct {
	DB           core.DbClient
	Oracle       core.Completer
	Classifier   classifier
	Preparer     preparer
	Extractor    fieldExtractor
	Materializer documentWriter
	Resolver     templateResolver
}

type Pipeline struct {
	deps         Deps
	downloadPath string
	logger       *zap.Logger
}

// New builds a Pipeline. downloadPath prefixes generated file names in results and
// defaults to DefaultDownloadPath.
func New(deps Deps, downloadPath string, logger *zap.Logger) *Pipeline {
	if downloadPath == "" {
		downloadPath = DefaultDownloadPath
	}
	return &Pipeline{deps: deps, downloadPath: downloadPath, logger: logger.Named("pipeline")}
}

type Request struct {
	TenantID  string
	ActorName string
	Message   string
	// TemplateName selects a template explicitly; empty lets the resolver choose.
	TemplateName string
	Uploads      *uploads.Scope
}

type Result struct {
	Reply       string
	DownloadURL *string
	Template    string
	FilledKeys  []string
	Trail       []State
}

// run carries the state of a single request.
type run struct {
	req    Request
	res    *Result
	logger *zap.Logger
}

func (r *run) enter(s State) {
	r.res.Trail = append(r.res.Trail, s)
	r.logger.Debug("pipeline state", zap.Stringer("state", s))
}

// Run processes req. The request's uploads are released on every return. When a
// later stage fails, the error comes back together with whatever was already
// computed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		req:    req,
		res:    &Result{Trail: []State{Idle}},
		logger: p.logger.With(zap.String("tenant_id", req.TenantID), zap.String("actor", req.ActorName)),
	}
	defer func() {
		if err := req.Uploads.Release(); err != nil {
			r.logger.Warn("could not remove request uploads", zap.Error(err))
		}
	}()

	message := strings.TrimSpace(req.Message)
	if message == "" && req.Uploads.Len() == 0 {
		return nil, apperrors.Wrap("request", req.TenantID, "", fmt.Errorf("%w: no content", apperrors.ErrInvalidInput))
	}

	r.enter(Classifying)
	it, err := p.deps.Classifier.Classify(ctx, message)
	if err != nil {
		return r.res, apperrors.Wrap("classify", req.TenantID, "", err)
	}
	r.logger.Info("request classified", zap.Stringer("intent", it), zap.Int("uploads", req.Uploads.Len()))

	ref, err := p.deps.Preparer.Prepare(ctx, req.Uploads.Files())
	if err != nil {
		return r.res, apperrors.Wrap("prepare", req.TenantID, "", err)
	}

	var tpl *models.Template
	if it == intent.Document {
		tpl, err = p.deps.Resolver.Resolve(ctx, req.TenantID, req.TemplateName, message)
		if err != nil {
			return r.res, apperrors.Wrap("resolve", req.TenantID, req.TemplateName, err)
		}
		if tpl == nil {
			r.logger.Info("no active template, answering instead")
		}
	}

	if tpl != nil {
		err = p.generate(ctx, r, tpl, message, ref)
	} else {
		err = p.answer(ctx, r, message, ref)
	}
	if err != nil {
		return r.res, err
	}

	r.enter(Recording)
	if err := ctx.Err(); err != nil {
		return r.res, apperrors.Wrap("record", req.TenantID, r.res.Template, err)
	}
	rec := &models.ChatRecord{
		TenantID:  req.TenantID,
		ActorName: req.ActorName,
		UserMsg:   req.Message,
		AIReply:   r.res.Reply,
	}
	if err := p.deps.DB.AppendChatRecord(ctx, rec); err != nil {
		return r.res, apperrors.Wrap("record", req.TenantID, r.res.Template, fmt.Errorf("append chat record: %w", err))
	}

	r.enter(Idle)
	return r.res, nil
}

func (p *Pipeline) answer(ctx context.Context, r *run, message string, ref *extractor.Reference) error {
	r.enter(Answering)
	if message == "" {
		message = "Summarize the attached files."
	}
	prompt := message
	if ref != nil && ref.Text != "" {
		prompt = fmt.Sprintf("%s\n\n[Reference data]:%s", message, ref.Text)
	}
	var attachments []core.Attachment
	if ref != nil {
		attachments = ref.Attachments
	}

	reply, err := p.deps.Oracle.Complete(ctx, prompt, attachments...)
	if err != nil {
		return apperrors.Wrap("answer", r.req.TenantID, "", err)
	}
	r.res.Reply = strings.TrimSpace(reply)
	return nil
}

func (p *Pipeline) generate(ctx context.Context, r *run, tpl *models.Template, message string, ref *extractor.Reference) error {
	r.res.Template = tpl.Name

	r.enter(Extracting)
	data, err := p.deps.Extractor.Extract(ctx, tpl.Schema.Mappings, message, ref)
	if err != nil {
		return apperrors.Wrap("extract", r.req.TenantID, tpl.Name, err)
	}

	r.enter(Materializing)
	out, err := p.deps.Materializer.Materialize(ctx, tpl, data, r.req.ActorName)
	if err != nil {
		return err
	}

	link := p.downloadPath + url.PathEscape(out.FileName)
	r.res.DownloadURL = &link
	r.res.FilledKeys = out.FilledKeys
	r.res.Reply = fmt.Sprintf("Generated %s from template %q (version %d): filled %d of %d fields.",
		out.FileName, tpl.Name, tpl.Version, len(out.FilledKeys), len(tpl.Schema.Mappings))
	return nil
}
