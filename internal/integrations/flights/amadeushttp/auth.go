package amadeushttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// AuthClient обменивает client credentials на bearer-токен
// (identity endpoint провайдера). Кэшированием занимается tokencache.
type AuthClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpc        *http.Client
}

func NewAuthClient(baseURL, clientID, clientSecret string) *AuthClient {
	if baseURL == "" {
		baseURL = "https://test.api.amadeus.com"
	}
	return &AuthClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type authResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *AuthClient) FetchToken(ctx context.Context) (string, time.Duration, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return "", 0, errors.New("amadeus credentials are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", 0, fmt.Errorf("identity endpoint http %d", resp.StatusCode)
	}

	var r authResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", 0, errors.Wrap(err, "decode")
	}
	if r.AccessToken == "" {
		return "", 0, errors.New("identity endpoint returned empty token")
	}
	return r.AccessToken, time.Duration(r.ExpiresIn) * time.Second, nil
}
