package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/storage"
)

// ReportArchive stores completed request reports.
type ReportArchive interface {
	Archive(ctx context.Context, report *storage.Report) error
	DownloadURL(ctx context.Context, requestID string) (string, error)
}

// ReportService hands out links to archived reports. A nil archive means
// archiving is not configured.
type ReportService struct {
	requests SearchRequestRepositoryInterface
	archive  ReportArchive
}

func NewReportService(requests SearchRequestRepositoryInterface, archive ReportArchive) *ReportService {
	return &ReportService{requests: requests, archive: archive}
}

func (s *ReportService) DownloadURL(ctx context.Context, requestID string) (string, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return "", err
	}
	if s.archive == nil || req.Status != domain.RequestStatusCompleted {
		return "", domain.ErrReportNotFound
	}
	return s.archive.DownloadURL(ctx, requestID)
}

// buildReport partitions the synthesized results for archiving.
func buildReport(req *domain.SearchRequest, synthesized []*domain.RepoAnalysisResult, enrichments []*domain.Enrichment) (*storage.Report, error) {
	if req == nil {
		return nil, fmt.Errorf("report requires a request")
	}
	report := &storage.Report{
		Request:     req,
		Approved:    make([]*domain.RepoAnalysisResult, 0),
		Rejected:    make([]*domain.RepoAnalysisResult, 0),
		Enrichments: enrichments,
	}
	for _, r := range synthesized {
		if r.JudgeVerdict == domain.JudgeVerdictApproved {
			report.Approved = append(report.Approved, r)
		} else {
			report.Rejected = append(report.Rejected, r)
		}
	}
	return report, nil
}
