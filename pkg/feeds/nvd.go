package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"cyber-digest/pkg/content"
	"cyber-digest/pkg/digest"
	"cyber-digest/pkg/domain"
)

const (
	// NVDEndpoint is the CVE API 2.0 base
	NVDEndpoint = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	nvdDetail   = "https://nvd.nist.gov/vuln/detail/"
	nvdTime     = "2006-01-02T15:04:05.000"
)

// NVD lists CVEs published within the run window
type NVD struct {
	client   Getter
	apiKey   string
	endpoint string
}

// NewNVD creates the vulnerability feed; an empty key disables it
func NewNVD(client Getter, apiKey string) *NVD {
	return &NVD{client: client, apiKey: apiKey, endpoint: NVDEndpoint}
}

// WithEndpoint points the feed at another base URL
func (n *NVD) WithEndpoint(endpoint string) *NVD {
	n.endpoint = endpoint
	return n
}

func (n *NVD) Name() string { return "Vulnerability Database" }

type nvdResponse struct {
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

func (n *NVD) Fetch(ctx context.Context, window domain.DateWindow) ([]digest.Entry, error) {
	if n.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("pubStartDate", window.Start.UTC().Format(nvdTime))
	q.Set("pubEndDate", window.End.UTC().Format(nvdTime))
	q.Set("resultsPerPage", strconv.Itoa(MaxEntries))

	resp, err := n.client.FetchWithHeaders(ctx, n.endpoint+"?"+q.Encode(), http.Header{"apiKey": {n.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("fetch nvd: %w", err)
	}

	var body nvdResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode nvd response: %w", err)
	}

	entries := make([]digest.Entry, 0, len(body.Vulnerabilities))
	for _, v := range body.Vulnerabilities {
		if v.CVE.ID == "" {
			continue
		}
		var desc string
		for _, d := range v.CVE.Descriptions {
			if d.Lang == "en" {
				desc = d.Value
				break
			}
		}
		entries = append(entries, digest.Entry{
			Title:   v.CVE.ID,
			URL:     nvdDetail + v.CVE.ID,
			Summary: content.Truncate(desc, 200),
		})
	}
	return entries, nil
}
