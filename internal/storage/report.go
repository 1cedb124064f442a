package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

const reportContentType = "application/json"

// ObjectStore is the part of Bucket the archive needs.
type ObjectStore interface {
	Put(ctx context.Context, obj Object) error
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Link(ctx context.Context, key string) (string, error)
}

// Report is the archived summary of a completed request.
type Report struct {
	Request     *domain.SearchRequest        `json:"request"`
	Approved    []*domain.RepoAnalysisResult `json:"approved"`
	Rejected    []*domain.RepoAnalysisResult `json:"rejected"`
	Enrichments []*domain.Enrichment         `json:"enrichments"`
}

// ReportArchive writes reports as JSON objects keyed by request id.
type ReportArchive struct {
	store ObjectStore
}

func NewReportArchive(store ObjectStore) *ReportArchive {
	return &ReportArchive{store: store}
}

// ReportKey is the object key of a request's report.
func ReportKey(requestID string) string {
	return "reports/" + requestID + ".json"
}

func (a *ReportArchive) Archive(ctx context.Context, report *Report) error {
	if report == nil || report.Request == nil {
		return fmt.Errorf("report requires a request")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return a.store.Put(ctx, Object{
		Key:         ReportKey(report.Request.ID),
		ContentType: reportContentType,
		Filename:    "reposcout-" + report.Request.ID + ".json",
		Metadata: map[string]string{
			"request-id": report.Request.ID,
			"approved":   strconv.Itoa(len(report.Approved)),
			"rejected":   strconv.Itoa(len(report.Rejected)),
		},
		Body: body,
	})
}

// DownloadURL returns a presigned URL for an archived report.
func (a *ReportArchive) DownloadURL(ctx context.Context, requestID string) (string, error) {
	key := ReportKey(requestID)
	if _, err := a.store.Stat(ctx, key); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", domain.ErrReportNotFound
		}
		return "", err
	}
	return a.store.Link(ctx, key)
}
