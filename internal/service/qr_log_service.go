package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/qrpay-labs/merchant-console/internal/model"
	"github.com/qrpay-labs/merchant-console/internal/storage"
)

// QRLogService records QR generation attempts and answers history queries.
type QRLogService struct {
	store storage.Store
}

// NewQRLogService builds the history service.
func NewQRLogService(store storage.Store) *QRLogService {
	return &QRLogService{store: store}
}

// Record appends one attempt.
func (s *QRLogService) Record(ctx context.Context, entry model.QRLog) error {
	return s.store.AppendQRLog(ctx, &entry)
}

// Query returns paginated logs, newest first.
func (s *QRLogService) Query(ctx context.Context, filter model.QRLogFilter) (*model.QRLogPage, error) {
	logs, err := s.filteredLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	total := len(logs)
	if filter.PageSize <= 0 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return &model.QRLogPage{
		Data:     logs[start:end],
		Total:    total,
		Pages:    (total + filter.PageSize - 1) / filter.PageSize,
		PageNum:  filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// CountByDate aggregates logs per day/month/year.
func (s *QRLogService) CountByDate(ctx context.Context, dateType string, begin, end *time.Time) ([]map[string]any, error) {
	logs, err := s.filteredLogs(ctx, model.QRLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}

	layout := "2006-01-02"
	switch strings.ToLower(dateType) {
	case "year":
		layout = "2006"
	case "month":
		layout = "2006-01"
	}

	counter := make(map[string]int)
	for _, log := range logs {
		counter[log.CreatedAt.Format(layout)]++
	}
	return mapToKV(counter, "date"), nil
}

// CountByStatus aggregates by attempt outcome.
func (s *QRLogService) CountByStatus(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	logs, err := s.filteredLogs(ctx, model.QRLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}
	counter := make(map[string]int)
	for _, log := range logs {
		status := log.Status
		if status == "" {
			status = "UNKNOWN"
		}
		counter[status]++
	}
	return mapToKV(counter, "status"), nil
}

// CountByDevice aggregates by device, labelled with the name recorded at generation time.
func (s *QRLogService) CountByDevice(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	logs, err := s.filteredLogs(ctx, model.QRLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}
	counter := make(map[string]int)
	for _, log := range logs {
		name := strings.TrimSpace(log.DeviceName)
		if name == "" {
			name = log.DeviceID.String()
		}
		counter[name]++
	}
	return mapToKV(counter, "device"), nil
}

func (s *QRLogService) filteredLogs(ctx context.Context, filter model.QRLogFilter) ([]*model.QRLog, error) {
	all, err := s.store.ListQRLogs(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]*model.QRLog, 0, len(all))
	for _, log := range all {
		if !filter.DeviceID.IsZero() && log.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(log.Status, filter.Status) {
			continue
		}
		if filter.BeginTime != nil && log.CreatedAt.Before(filter.BeginTime.UTC()) {
			continue
		}
		if filter.EndTime != nil && log.CreatedAt.After(filter.EndTime.UTC()) {
			continue
		}
		matches = append(matches, log)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

func mapToKV(counter map[string]int, key string) []map[string]any {
	result := make([]map[string]any, 0, len(counter))
	for k, v := range counter {
		result = append(result, map[string]any{
			key:     k,
			"count": v,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i][key].(string) < result[j][key].(string)
	})
	return result
}
