package reconciler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Jeffail/gabs"
	"golang.org/x/net/http2"
)

// apiTimeout bounds each individual Cloudflare API call. The selector applies its own retry on
// top of whole reconciliations; a single call here never retries itself.
const apiTimeout = 10 * time.Second

// HTTPDoer is the interface the Cloudflare client talks through, letting tests substitute a fake
// transport instead of dialing the real API.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// newHTTPDoer configures http2 on the outbound transport, since the Cloudflare API serves h2.
func newHTTPDoer() HTTPDoer {
	tr := &http.Transport{}
	if err := http2.ConfigureTransport(tr); err != nil {
		// ConfigureTransport only fails for a Transport already in an invalid state, which a
		// freshly constructed one never is.
		panic(fmt.Sprintf("%s: configure http2 transport: %v", me, err))
	}
	return &http.Client{Timeout: apiTimeout, Transport: tr}
}

// apiError wraps a non-2xx Cloudflare response body for diagnostics.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: api error: status %d: %s", me, e.StatusCode, e.Body)
}

// call issues one Cloudflare API request and parses the JSON body into a gabs.Container. body may
// be nil for requests with no payload.
func (c *Client) call(method, path string, body interface{}) (*gabs.Container, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", me, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", me, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", me, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", me, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", me, err)
	}
	if ok, _ := parsed.Path("success").Data().(bool); !ok {
		return nil, fmt.Errorf("%s: api reported failure: %s", me, parsed.Path("errors").String())
	}

	return parsed, nil
}

// recordIDs returns the ids of every DNS record in the zone named name.
func (c *Client) recordIDs(name string) ([]string, error) {
	parsed, err := c.call(http.MethodGet, fmt.Sprintf("/zones/%s/dns_records?name=%s", c.zoneID, name), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: list records for %s: %w", me, name, err)
	}

	children, err := parsed.Path("result").Children()
	if err != nil {
		return nil, fmt.Errorf("%s: malformed list response for %s: %w", me, name, err)
	}

	ids := make([]string, 0, len(children))
	for _, child := range children {
		id, ok := child.Path("id").Data().(string)
		if !ok {
			return nil, fmt.Errorf("%s: record missing id in list response for %s", me, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// createRecord creates a single DNS record of recordType with the given content and returns its
// new id.
func (c *Client) createRecord(name, recordType, content string, ttl uint16) (string, error) {
	body := map[string]interface{}{
		"type":    recordType,
		"name":    name,
		"content": content,
		"ttl":     ttl,
		"comment": recordComment(),
	}
	parsed, err := c.call(http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", c.zoneID), body)
	if err != nil {
		return "", fmt.Errorf("%s: create %s record %s=%s: %w", me, recordType, name, content, err)
	}
	id, ok := parsed.Path("result.id").Data().(string)
	if !ok {
		return "", fmt.Errorf("%s: create response missing id for %s", me, name)
	}
	return id, nil
}

// updateCNAME rewrites an existing CNAME record in place.
func (c *Client) updateCNAME(name, recordID, content string, ttl uint16) error {
	body := map[string]interface{}{
		"type":    "CNAME",
		"name":    name,
		"content": content,
		"ttl":     ttl,
		"comment": recordComment(),
	}
	_, err := c.call(http.MethodPatch, fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneID, recordID), body)
	if err != nil {
		return fmt.Errorf("%s: update cname %s (%s): %w", me, name, recordID, err)
	}
	return nil
}

// deleteRecord removes a single DNS record by id.
func (c *Client) deleteRecord(recordID string) error {
	parsed, err := c.call(http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneID, recordID), nil)
	if err != nil {
		return fmt.Errorf("%s: delete record %s: %w", me, recordID, err)
	}
	if id, ok := parsed.Path("result.id").Data().(string); !ok || id != recordID {
		return fmt.Errorf("%s: delete record %s: provider acknowledged a different id", me, recordID)
	}
	return nil
}
