package httpclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
)

// Client wraps http.Client with helpers for JSON requests.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL, bearer string) *Client {
	return &Client{BaseURL: baseURL, Bearer: bearer, HTTP: &http.Client{}}
}

// WithBearer returns a copy of the client that authenticates as another caller.
func (c *Client) WithBearer(bearer string) *Client {
	cp := *c
	cp.Bearer = bearer
	return &cp
}

// GetJSON issues a GET request and decodes the JSON response.
func (c *Client) GetJSON(path string, out any) (*http.Response, error) {
	return c.Do(http.MethodGet, path, nil, out, nil)
}

// PostJSON issues a POST request with a JSON body and decodes the response.
func (c *Client) PostJSON(path string, body, out any) (*http.Response, error) {
	return c.Do(http.MethodPost, path, body, out, nil)
}

// PatchJSON issues a PATCH request with a JSON body and decodes the response.
func (c *Client) PatchJSON(path string, body, out any) (*http.Response, error) {
	return c.Do(http.MethodPatch, path, body, out, nil)
}

// Delete issues a DELETE request for the entity with the given id.
func (c *Client) Delete(path, id string) (*http.Response, error) {
	return c.Do(http.MethodDelete, path+"?"+url.Values{"id": {id}}.Encode(), nil, nil, nil)
}

// Do sends a request with optional JSON body and extra headers. The response
// is decoded into out only for 2xx statuses.
func (c *Client) Do(method, path string, body, out any, headers map[string]string) (*http.Response, error) {
	buf := new(bytes.Buffer)
	if body != nil {
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, c.BaseURL+path, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}
