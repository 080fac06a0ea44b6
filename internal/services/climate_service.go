package services

import (
	"context"
	"errors"
	"fmt"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// TobsWindowDays is how far back /tobs reaches from the most recent measurement
const TobsWindowDays = 365

// ClimateService shapes repository rows into API responses
type ClimateService struct {
	repo    repository.ClimateRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClimateService creates a new climate service
func NewClimateService(repo repository.ClimateRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ClimateService {
	return &ClimateService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Precipitation maps date to precipitation for every measurement.
// Several stations reporting on one date collapse to a single key; the row read last wins.
// A nil value means the winning row had no precipitation reading.
func (s *ClimateService) Precipitation(ctx context.Context) (map[string]*float64, error) {
	readings, err := s.repo.AllPrecipitation(ctx)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*float64, len(readings))
	for _, r := range readings {
		byDate[r.Date] = r.Prcp
	}

	return byDate, nil
}

// Stations maps station code to name for stations with measurements
func (s *ClimateService) Stations(ctx context.Context) (map[string]string, error) {
	stations, err := s.repo.AllStations(ctx)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]string, len(stations))
	for _, st := range stations {
		byCode[st.Station] = st.Name
	}

	return byCode, nil
}

// TemperatureObservations maps date to tobs for the most active station over the
// TobsWindowDays days ending at the most recent measurement
func (s *ClimateService) TemperatureObservations(ctx context.Context) (map[string]float64, error) {
	latest, err := s.repo.MostRecentDate(ctx)
	if err != nil {
		return nil, err
	}

	latestDate, err := models.ParseDate("most_recent_date", latest)
	if err != nil {
		return nil, fmt.Errorf("stored date is malformed: %w", err)
	}
	since := models.FormatDate(latestDate.AddDate(0, 0, -TobsWindowDays))

	station, err := s.repo.MostActiveStation(ctx)
	if err != nil {
		return nil, err
	}

	observations, err := s.repo.TemperatureObservations(ctx, station, since)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "[SVC_TOBS] Most active station resolved", logging.Fields{
		"station_id":   station,
		"since":        since,
		"latest":       latest,
		"observations": len(observations),
	})

	byDate := make(map[string]float64, len(observations))
	for _, o := range observations {
		byDate[o.Date] = o.Tobs
	}

	return byDate, nil
}

// SummarizeFrom aggregates tobs from start onwards. end_date reports the most recent
// measurement date, or null when the dataset is empty.
// The result always holds exactly one summary; its temperatures are null when nothing matched.
func (s *ClimateService) SummarizeFrom(ctx context.Context, start string) ([]models.TemperatureSummaryResponse, error) {
	startDate, err := models.ParseDate("start", start)
	if err != nil {
		return nil, err
	}

	var endDate *string
	latest, err := s.repo.MostRecentDate(ctx)
	switch {
	case err == nil:
		endDate = &latest
	case errors.Is(err, repository.ErrEmptyDataset):
		// Nothing to report as end_date; the aggregate below is all-null anyway.
		s.metrics.RecordEmptySummary("empty_dataset")
	default:
		return nil, err
	}

	startStr := models.FormatDate(startDate)

	summary, err := s.repo.TemperatureSummary(ctx, startStr, nil)
	if err != nil {
		return nil, err
	}
	s.observeSummary(ctx, startStr, endDate, summary)

	return []models.TemperatureSummaryResponse{summaryResponse(startStr, endDate, summary)}, nil
}

// SummarizeBetween aggregates tobs over the inclusive range [start, end]
func (s *ClimateService) SummarizeBetween(ctx context.Context, start, end string) ([]models.TemperatureSummaryResponse, error) {
	startDate, err := models.ParseDate("start", start)
	if err != nil {
		return nil, err
	}
	endDate, err := models.ParseDate("end", end)
	if err != nil {
		return nil, err
	}

	startStr := models.FormatDate(startDate)
	endStr := models.FormatDate(endDate)

	summary, err := s.repo.TemperatureSummary(ctx, startStr, &endStr)
	if err != nil {
		return nil, err
	}
	s.observeSummary(ctx, startStr, &endStr, summary)

	return []models.TemperatureSummaryResponse{summaryResponse(startStr, &endStr, summary)}, nil
}

// observeSummary counts ranges that matched no measurements.
// A nil end means the dataset is empty, which SummarizeFrom already counted.
func (s *ClimateService) observeSummary(ctx context.Context, start string, end *string, summary models.TemperatureSummary) {
	fields := logging.Fields{
		"start": start,
		"empty": summary.Empty(),
	}
	if end != nil {
		fields["end"] = *end
	}
	s.logger.Debug(ctx, "[SVC_SUMMARY] Temperature summary computed", fields)

	if summary.Empty() && end != nil {
		s.metrics.RecordEmptySummary("no_match")
	}
}

func summaryResponse(start string, end *string, summary models.TemperatureSummary) models.TemperatureSummaryResponse {
	return models.TemperatureSummaryResponse{
		StartDate: start,
		EndDate:   end,
		TempMax:   summary.Max,
		TempMin:   summary.Min,
		TempAvg:   summary.Avg,
	}
}

// HealthCheck reports whether the store answers
func (s *ClimateService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
