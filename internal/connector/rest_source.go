package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const restRequestTimeout = 60 * time.Second

// restSource pages through a declared list of REST resources. Each
// resource becomes one destination table.
type restSource struct {
	baseURL   string
	headers   map[string]string
	auth      *RESTAuth
	paginator *Paginator
	resources []string
	batchSize int
	client    *http.Client
}

func newRESTSource(config Config, pc *PipelineConfig, batchSize int) (*restSource, error) {
	baseURL := config.stringVal("base_url")
	if baseURL == "" {
		baseURL = pc.BaseURL
	}
	if baseURL == "" {
		return nil, NewConfigError("rest_api source requires 'base_url'")
	}
	if len(pc.Resources) == 0 {
		return nil, NewConfigError("rest_api source requires a 'resources' list")
	}

	headers := make(map[string]string)
	for k, v := range config {
		if k == "headers" {
			if hm, ok := v.(map[string]interface{}); ok {
				for hk, hv := range hm {
					headers[hk] = fmt.Sprint(hv)
				}
			}
		}
	}
	for k, v := range pc.Headers {
		headers[k] = v
	}

	auth := pc.Auth
	if auth == nil {
		if token := config.stringVal("api_token"); token != "" {
			auth = &RESTAuth{Type: "bearer", Token: token}
		}
	}

	return &restSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		headers:   headers,
		auth:      auth,
		paginator: pc.Paginator,
		resources: pc.Resources,
		batchSize: batchSize,
		client:    &http.Client{Timeout: restRequestTimeout},
	}, nil
}

func (r *restSource) Read(ctx context.Context, sink Sink) error {
	for _, resource := range r.resources {
		if err := r.readResource(ctx, resource, sink); err != nil {
			return errors.Wrapf(err, "failed reading resource %s", resource)
		}
	}
	return nil
}

func (r *restSource) Close() error { return nil }

func (r *restSource) readResource(ctx context.Context, resource string, sink Sink) error {
	table := tableNameFromFile(resource)
	next := r.baseURL + "/" + strings.TrimLeft(resource, "/")
	page := 1

	for next != "" {
		rows, nextURL, err := r.fetchPage(ctx, next, page)
		if err != nil {
			return err
		}
		for start := 0; start < len(rows); start += r.batchSize {
			end := start + r.batchSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := sink(ctx, Batch{Table: table, Rows: rows[start:end]}); err != nil {
				return err
			}
		}

		next = ""
		if r.paginator == nil {
			break
		}
		switch r.paginator.Type {
		case "page_number":
			if len(rows) == 0 {
				break
			}
			page++
			if r.paginator.MaxPages > 0 && page > r.paginator.MaxPages {
				break
			}
			next = r.baseURL + "/" + strings.TrimLeft(resource, "/")
		case "json_link":
			next = nextURL
		}
	}
	return nil
}

func (r *restSource) fetchPage(ctx context.Context, rawURL string, page int) ([]Row, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", NewConfigError("invalid resource URL %q: %v", rawURL, err)
	}
	if r.paginator != nil && r.paginator.Type == "page_number" {
		param := r.paginator.PageParam
		if param == "" {
			param = "page"
		}
		q := u.Query()
		q.Set(param, fmt.Sprint(page))
		if r.paginator.PageSizeParam != "" {
			q.Set(r.paginator.PageSizeParam, fmt.Sprint(r.batchSize))
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to build request")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.auth != nil {
		switch r.auth.Type {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+r.auth.Token)
		case "api_key":
			header := r.auth.Header
			if header == "" {
				header = "X-API-Key"
			}
			req.Header.Set(header, r.auth.Token)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", errors.Errorf("request to %s returned %d: %s", u.String(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read response body")
	}
	return decodeRESTPayload(payload, r.nextPath())
}

func (r *restSource) nextPath() string {
	if r.paginator != nil && r.paginator.Type == "json_link" {
		if r.paginator.NextPath != "" {
			return r.paginator.NextPath
		}
		return "next"
	}
	return ""
}

// decodeRESTPayload accepts either a bare JSON array or an envelope object
// holding the rows under data/results/items, with an optional next-page
// link extracted by nextPath.
func decodeRESTPayload(payload []byte, nextPath string) ([]Row, string, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var rows []Row
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, "", errors.Wrap(err, "failed to decode response array")
		}
		return rows, "", nil
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, "", errors.Wrap(err, "failed to decode response object")
	}

	var items []interface{}
	for _, key := range []string{"data", "results", "items"} {
		if v, ok := envelope[key].([]interface{}); ok {
			items = v
			break
		}
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			rows = append(rows, Row(obj))
		}
	}

	var next string
	if nextPath != "" {
		if v, ok := envelope[nextPath].(string); ok {
			next = v
		}
	}
	return rows, next, nil
}
