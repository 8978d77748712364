package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

// maxErrorBody bounds how much of an error response is quoted.
const maxErrorBody = 512

// doGetJSON performs a GET request and unmarshals the JSON response into the result type.
func doGetJSON[T any](ctx context.Context, c *Client, path ...string) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodGet, nil, []int{http.StatusOK}, path...)
}

// doPutJSON replaces the value at path.
func doPutJSON[T any](ctx context.Context, c *Client, body any, path ...string) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodPut, body, []int{http.StatusOK}, path...)
}

// doPostJSON appends a child with a generated key under path.
func doPostJSON[T any](ctx context.Context, c *Client, body any, path ...string) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodPost, body, []int{http.StatusOK, http.StatusCreated}, path...)
}

// doRequestJSON performs a request with an optional JSON body and decodes the
// JSON response. Any status outside expected is an error.
func doRequestJSON[T any](ctx context.Context, c *Client, method string, requestBody any, expected []int, path ...string) (*T, error) {
	body, err := c.do(ctx, method, requestBody, expected, path...)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method string, requestBody any, expected []int, path ...string) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(path...), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the configured base via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(expected, resp.StatusCode) {
		return nil, &StatusError{Method: method, Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	return body, nil
}

// StatusError is an unexpected HTTP status from the database.
type StatusError struct {
	Method string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %s", e.Method, e.Code, e.Body)
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return "<unreadable body>"
	}
	return strings.TrimSpace(string(b))
}
