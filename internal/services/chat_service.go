package services

import (
	"context"
	"fmt"
	"io"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
	objectclient "github.com/plays3000/ai-server/internal/core/object-client"
	"github.com/plays3000/ai-server/internal/core/pipeline"
	"github.com/plays3000/ai-server/internal/models"
)

type requestRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type ChatService struct {
	db           core.DbClient
	storage      core.ObjectClient
	pipeline     requestRunner
	bucket       string
	historyLimit int
}

func NewChatService(db core.DbClient, storage core.ObjectClient, p requestRunner, bucket string, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{db: db, storage: storage, pipeline: p, bucket: bucket, historyLimit: historyLimit}
}

func (s *ChatService) Send(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return s.pipeline.Run(ctx, req)
}

// History returns the tenant's latest chat records, newest first. limit is capped at
// the configured history limit.
func (s *ChatService) History(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	recs, err := s.db.ListChatRecords(ctx, tenantID, limit)
	if err != nil {
		return nil, apperrors.Wrap("history", tenantID, "", err)
	}
	if recs == nil {
		recs = []models.ChatRecord{}
	}
	return recs, nil
}

// OpenGenerated streams a generated document of the tenant. Names that are not a
// single key segment are rejected.
func (s *ChatService) OpenGenerated(ctx context.Context, tenantID, fileName string) (io.ReadCloser, error) {
	if fileName == "" || objectclient.SafeName(fileName) != fileName {
		return nil, fmt.Errorf("%w: bad file name", apperrors.ErrInvalidInput)
	}
	rc, err := s.storage.GetObjectReader(ctx, s.bucket, objectclient.GeneratedKey(tenantID, fileName))
	if err != nil {
		return nil, apperrors.Wrap("download", tenantID, "", err)
	}
	return rc, nil
}
