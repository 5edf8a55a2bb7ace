package opportunity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"PensionSentinel/internal/model"
)

const maxBodyBytes = 4 << 20

// HTTPSource implements Source against the contracts REST API.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Log     logrus.FieldLogger
}

// NewHTTPSource creates a source with optional proxy support.
func NewHTTPSource(baseURL, apiKey, proxyURL string, timeout time.Duration, log logrus.FieldLogger) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		Log: log,
	}
}

func (s *HTTPSource) Name() string { return "contracts-api" }

// Candidates queries GET BaseURL?risk=..&asset=.. and returns the valid
// candidates. Any failure is logged and yields an empty list.
func (s *HTTPSource) Candidates(ctx context.Context, risk model.RiskLevel, asset string) []Candidate {
	log := s.Log.WithFields(logrus.Fields{"risk": risk, "asset": asset})
	body, err := s.fetch(ctx, risk, asset)
	if err != nil {
		log.WithError(err).Warn("contracts API unavailable, no candidates")
		return nil
	}
	if !gjson.ValidBytes(body) {
		log.Warn("contracts API returned invalid JSON, no candidates")
		return nil
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		log.Warn("contracts API returned a non-array body, no candidates")
		return nil
	}

	var out []Candidate
	for _, item := range root.Array() {
		c, ok := parseCandidate(item)
		if !ok {
			log.WithField("item", item.Raw).Debug("dropping candidate without a valid address")
			continue
		}
		out = append(out, c)
	}
	log.WithField("count", len(out)).Info("fetched candidate contracts")
	return out
}

func (s *HTTPSource) fetch(ctx context.Context, risk model.RiskLevel, asset string) ([]byte, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("risk", string(risk))
	q.Set("asset", asset)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("query contracts: status %d, body: %.200s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parseCandidate accepts a bare address string or an object carrying
// address or contractAddress.
func parseCandidate(item gjson.Result) (Candidate, bool) {
	var addr string
	var details json.RawMessage
	switch {
	case item.Type == gjson.String:
		addr = item.String()
	case item.IsObject():
		addr = item.Get("address").String()
		if addr == "" {
			addr = item.Get("contractAddress").String()
		}
		details = json.RawMessage(item.Raw)
	default:
		return Candidate{}, false
	}
	if !common.IsHexAddress(addr) {
		return Candidate{}, false
	}
	return Candidate{Address: common.HexToAddress(addr).Hex(), Details: details}, true
}
