package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const CTJSON string = "application/json"

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// Status returns the client's runtime status.
	//
	// example:
	//  st, _ := sdk.Status()
	//  fmt.Println(st.Running, st.Rounds.CompletedRounds)
	Status() (Status, error)

	// ListRounds lists finished rounds, oldest first.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page)
	ListRounds(offset uint64, limit uint64) (RoundPage, error)

	// GetRound gets a finished round by id.
	//
	// example:
	//  round, _ := sdk.GetRound("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(round.Loss)
	GetRound(id string) (Round, error)

	// Stop stops the running client. The in-flight round is abandoned.
	//
	// example:
	//  err := sdk.Stop()
	//  fmt.Println(err)
	Stop() error
}

type fledgeSDK struct {
	clientURL string
	client    *http.Client
}

type Config struct {
	ClientURL       string
	TLSVerification bool
	Timeout         time.Duration
}

func NewSDK(cfg Config) SDK {
	return &fledgeSDK{
		clientURL: cfg.ClientURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *fledgeSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if json.Unmarshal(body, &e) == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
