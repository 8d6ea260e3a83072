package hub

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"kubegems.io/nemopub/pkg/version"
)

var UserAgent = "nemopub/" + version.Get().GitVersion

// Client talks to a Hugging Face Hub compatible hosting API.
type Client struct {
	Endpoint string
	Token    string
	HTTP     *http.Client
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		Token:    token,
		HTTP:     http.DefaultClient,
	}
}

// InsecureHTTPClient skips TLS verification, for hubs behind self-signed certificates.
func InsecureHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &http.Client{Transport: transport}
}

// StatusError is a non 2xx response of the hosting API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) request(ctx context.Context, method, url string, header map[string]string, body any, into any) (*http.Response, error) {
	if strings.HasPrefix(url, "/") {
		url = c.Endpoint + url
	}

	var reqbody io.Reader
	switch val := body.(type) {
	case io.Reader:
		reqbody = val
	case nil:
		reqbody = nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		reqbody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqbody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp, decodeStatusError(resp)
	}
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func decodeStatusError(resp *http.Response) StatusError {
	statuserr := StatusError{StatusCode: resp.StatusCode}
	bodystr, _ := io.ReadAll(resp.Body)
	var apierr apiError
	if err := json.Unmarshal(bodystr, &apierr); err == nil && (apierr.Error != "" || apierr.Message != "") {
		statuserr.Message = apierr.Error
		if statuserr.Message == "" {
			statuserr.Message = apierr.Message
		}
	} else {
		statuserr.Message = strings.TrimSpace(string(bodystr))
	}
	return statuserr
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
