package dvf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"dvf-tools/config"
	"dvf-tools/models"
	"dvf-tools/utils"
)

// maxBodyBytes guards against runaway responses.
const maxBodyBytes = 64 << 20

var (
	// ErrStatus is returned when the API answers with an error status.
	ErrStatus = errors.New("unexpected status")
	// ErrMalformed is returned when a page body cannot be decoded into records.
	ErrMalformed = errors.New("malformed page")
)

// Client fetches pages of records from the listing API.
type Client struct {
	baseURL    *url.URL
	pageParam  string
	sizeParam  string
	recordsKey []string
	http       *retryablehttp.Client
}

// NewClient builds a Client over a retrying HTTP transport.
func NewClient(cfg config.ScraperConfig, logger *utils.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("dvf: parse base url: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	rc.Logger = logger.Leveled("http")

	var key []string
	if cfg.RecordsKey != "" {
		key = strings.Split(cfg.RecordsKey, ".")
	}

	return &Client{
		baseURL:    u,
		pageParam:  cfg.PageParam,
		sizeParam:  cfg.SizeParam,
		recordsKey: key,
		http:       rc,
	}, nil
}

// PageURL returns the request URL for page with size records per page.
func (c *Client) PageURL(page, size int) string {
	u := *c.baseURL
	q := u.Query()
	q.Set(c.pageParam, strconv.Itoa(page))
	q.Set(c.sizeParam, strconv.Itoa(size))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage requests one page and decodes its records.
func (c *Client) FetchPage(ctx context.Context, page, size int) ([]models.Record, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(page, size), nil)
	if err != nil {
		return nil, fmt.Errorf("dvf: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dvf: get page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dvf: page %d: %w %d: %s", page, ErrStatus, resp.StatusCode,
			strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("dvf: read page %d: %w", page, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("dvf: page %d: %w: payload too large", page, ErrMalformed)
	}

	records, err := DecodePage(body, c.recordsKey)
	if err != nil {
		return nil, fmt.Errorf("dvf: page %d: %w", page, err)
	}
	return records, nil
}

// DecodePage extracts the record list found under key (a path of object
// keys; empty means the body itself is the list). A null list is empty.
func DecodePage(body []byte, key []string) ([]models.Record, error) {
	raw := json.RawMessage(body)
	for _, k := range key {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: expected object around %q: %v", ErrMalformed, k, err)
		}
		next, ok := obj[k]
		if !ok {
			return nil, fmt.Errorf("%w: key %q not found", ErrMalformed, k)
		}
		raw = next
	}

	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: expected a list of records: %v", ErrMalformed, err)
	}

	records := make([]models.Record, 0, len(items))
	for i, item := range items {
		r, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformed, i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// decodeRecord reads one JSON object keeping its key order.
func decodeRecord(raw json.RawMessage) (models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return models.Record{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return models.Record{}, errors.New("not an object")
	}

	r := models.NewRecord()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return models.Record{}, err
		}
		field, ok := tok.(string)
		if !ok {
			return models.Record{}, fmt.Errorf("unexpected key token %v", tok)
		}

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return models.Record{}, fmt.Errorf("field %q: %w", field, err)
		}
		s, err := scalarText(val)
		if err != nil {
			return models.Record{}, fmt.Errorf("field %q: %w", field, err)
		}
		r.Set(field, s)
	}
	return r, nil
}

// scalarText renders a JSON value as a CSV cell.
func scalarText(val json.RawMessage) (string, error) {
	v := bytes.TrimSpace(val)
	if len(v) == 0 {
		return "", nil
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		// numbers and booleans keep their literal text
		return string(v), nil
	}
}
