package registry

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

	"github.com/ruteri/workstation-provisioning/api"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// HTTPClient implements interfaces.NameRegistry against the registry
// service (package httpserver).
type HTTPClient struct {
	// ServerAddr is the base URL of the registry service
	ServerAddr string

	httpClient *http.Client
}

// NewHTTPClient creates a client with the given per-request timeout
// (default 30 seconds).
func NewHTTPClient(serverAddr string, timeout ...time.Duration) *HTTPClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	return &HTTPClient{
		ServerAddr: strings.TrimSuffix(serverAddr, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *HTTPClient) ReserveName(ctx context.Context, domain interfaces.DomainConfig, assignedUser string) (*interfaces.Reservation, error) {
	path := strings.NewReplacer("{domain}", url.PathEscape(domain.Name)).Replace(api.ReservationsPath)

	var reservation interfaces.Reservation
	if err := c.post(ctx, path, api.ReserveNameRequest{AssignedUser: assignedUser}, &reservation); err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (c *HTTPClient) MarkJoined(ctx context.Context, domain interfaces.DomainConfig, sequence int, notes string) error {
	path := strings.NewReplacer(
		"{domain}", url.PathEscape(domain.Name),
		"{sequence}", strconv.Itoa(sequence),
	).Replace(api.MarkJoinedPath)

	return c.post(ctx, path, api.MarkJoinedRequest{Notes: notes}, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+path, bytes.NewReader(reqJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", interfaces.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: could not parse response: %v", interfaces.ErrRegistryUnavailable, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var errResp api.ErrorResponse
	if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Code != "" {
		if sentinel := api.CodeToError(errResp.Code); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, errResp.Error)
		}
		if errResp.Code != api.CodeInternal {
			return fmt.Errorf("registry service returned %d: %s", resp.StatusCode, errResp.Error)
		}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: registry service returned %d: %s", interfaces.ErrRegistryUnavailable, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return fmt.Errorf("registry service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}
