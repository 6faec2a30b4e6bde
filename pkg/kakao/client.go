/**
 * @description
 * This package provides a client for the Kakao user API. The storefront's
 * Kakao login hands the backend an access token issued by the Kakao
 * JavaScript SDK; this client verifies that token by fetching the profile it
 * belongs to. An invalid or expired token surfaces as a typed error with the
 * provider's negative code.
 *
 * @dependencies
 * - context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 */
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the Kakao REST API host.
const DefaultBaseURL = "https://kapi.kakao.com"

// Profile is the subset of /v2/user/me the storefront stores.
type Profile struct {
	ID              int64
	Nickname        string
	ProfileImageURL string
	Email           string
}

// APIError is a typed error from the Kakao API. Codes are negative numbers;
// -401 means the access token is invalid or expired.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kakao api error: %d - %s", e.Code, e.Message)
}

// Client is a client for the Kakao user API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Kakao API client. An empty baseURL uses the
// production host.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetMe fetches the profile behind an access token. A rejected token comes
// back as an *APIError.
func (c *Client) GetMe(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v2/user/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create kakao request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute kakao request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read kakao response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr APIError
		if err := json.Unmarshal(bodyBytes, &apiErr); err != nil || apiErr.Code == 0 {
			return nil, fmt.Errorf("kakao api returned status %d", resp.StatusCode)
		}
		return nil, &apiErr
	}

	var payload struct {
		ID         int64 `json:"id"`
		Properties struct {
			Nickname     string `json:"nickname"`
			ProfileImage string `json:"profile_image"`
		} `json:"properties"`
		KakaoAccount struct {
			Email string `json:"email"`
		} `json:"kakao_account"`
	}
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode kakao response: %w", err)
	}

	return &Profile{
		ID:              payload.ID,
		Nickname:        payload.Properties.Nickname,
		ProfileImageURL: payload.Properties.ProfileImage,
		Email:           payload.KakaoAccount.Email,
	}, nil
}
