package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	roundsEndpoint = "/rounds"
	statusEndpoint = "/status"
	stopEndpoint   = "/stop"
)

type Round struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Kind       string    `json:"kind"`
	Epochs     int       `json:"epochs,omitempty"`
	NumSamples int       `json:"num_samples"`
	Loss       float64   `json:"loss"`
	MAE        float64   `json:"mae,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type RoundPage struct {
	Offset uint64  `json:"offset"`
	Limit  uint64  `json:"limit"`
	Total  uint64  `json:"total"`
	Rounds []Round `json:"rounds"`
}

type Progress struct {
	Epoch  int     `json:"epoch"`
	Epochs int     `json:"epochs"`
	Loss   float64 `json:"loss"`
}

type RoundStats struct {
	LastProgress    Progress `json:"last_progress"`
	LastRound       Round    `json:"last_round"`
	CompletedRounds int      `json:"completed_rounds"`
	FailedRounds    int      `json:"failed_rounds"`
}

type Report struct {
	ID              string    `json:"id"`
	Server          string    `json:"server"`
	Slice           string    `json:"slice"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	EndReason       string    `json:"end_reason"`
	Sessions        int       `json:"sessions"`
	CompletedRounds int       `json:"completed_rounds"`
	FailedRounds    int       `json:"failed_rounds"`
	LastLoss        float64   `json:"last_loss"`
}

type Status struct {
	ClientID  string     `json:"client_id"`
	Running   bool       `json:"running"`
	Engine    string     `json:"engine_state"`
	Server    string     `json:"server,omitempty"`
	Slice     string     `json:"slice,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Rounds    RoundStats `json:"rounds"`
	Last      *Report    `json:"last_report,omitempty"`
}

func (sdk *fledgeSDK) Status() (Status, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.clientURL+statusEndpoint, nil, http.StatusOK)
	if err != nil {
		return Status{}, err
	}

	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return Status{}, err
	}

	return st, nil
}

func (sdk *fledgeSDK) ListRounds(offset, limit uint64) (RoundPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	reqURL := sdk.clientURL + roundsEndpoint
	if len(queries) > 0 {
		reqURL += "?" + strings.Join(queries, "&")
	}

	body, err := sdk.processRequest(http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return RoundPage{}, err
	}

	var page RoundPage
	if err := json.Unmarshal(body, &page); err != nil {
		return RoundPage{}, err
	}

	return page, nil
}

func (sdk *fledgeSDK) GetRound(id string) (Round, error) {
	reqURL := sdk.clientURL + roundsEndpoint + "/" + url.PathEscape(id)

	body, err := sdk.processRequest(http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return Round{}, err
	}

	var r Round
	if err := json.Unmarshal(body, &r); err != nil {
		return Round{}, err
	}

	return r, nil
}

func (sdk *fledgeSDK) Stop() error {
	_, err := sdk.processRequest(http.MethodPost, sdk.clientURL+stopEndpoint, nil, http.StatusAccepted)

	return err
}
