package domain

import (
	"errors"
	"fmt"
)

// SkipReason explains why a station phase produced no records.
type SkipReason string

const (
	SkipNoHistoricalData SkipReason = "no_historical_data"
	SkipNoRecentData     SkipReason = "no_recent_data"
	SkipDownloadFailed   SkipReason = "download_failed"
	SkipParseFailed      SkipReason = "parse_failed"
)

// PhaseSkip records a station phase that was skipped without aborting the run.
type PhaseSkip struct {
	StationID int        `json:"station"`
	Phase     Phase      `json:"phase"`
	Reason    SkipReason `json:"reason"`
	Err       error      `json:"-"`
}

func (s PhaseSkip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("station %05d %s: %s: %v", s.StationID, s.Phase, s.Reason, s.Err)
	}
	return fmt.Sprintf("station %05d %s: %s", s.StationID, s.Phase, s.Reason)
}

// RunReport summarizes the per-station work of one regional run.
type RunReport struct {
	Stations int         `json:"stations"`
	Fetched  int         `json:"fetched"`
	Records  int         `json:"records"`
	Skips    []PhaseSkip `json:"skips,omitempty"`
}

// ClassifySkip turns a failed station phase into a PhaseSkip. A missing
// catalog entry means no historical data, and any retrieval failure of the
// recent phase means no recent data.
func ClassifySkip(station int, phase Phase, err error) PhaseSkip {
	skip := PhaseSkip{StationID: station, Phase: phase, Err: err}
	switch {
	case errors.Is(err, ErrNoArchive) && phase == PhaseHistorical:
		skip.Reason = SkipNoHistoricalData
	case errors.Is(err, ErrNoArchive), phase == PhaseRecent && errors.Is(err, ErrRetrieval):
		skip.Reason = SkipNoRecentData
	case errors.Is(err, ErrParse):
		skip.Reason = SkipParseFailed
	default:
		skip.Reason = SkipDownloadFailed
	}
	return skip
}
