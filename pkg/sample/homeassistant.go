package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energystats/pkg/common"
)

// supervisorURL is where the core API is reachable from inside an add-on.
const supervisorURL = "http://supervisor/core"

// HomeAssistant reads entity states from the Home Assistant REST API.
type HomeAssistant struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHomeAssistant creates a source talking to the instance at baseURL.
func NewHomeAssistant(baseURL, token string, timeout time.Duration) *HomeAssistant {
	return &HomeAssistant{
		client:  common.HTTPClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Configured sets up the Home Assistant source from flags. Inside an add-on
// the supervisor URL and token are used when no flags are given.
func Configured() *HomeAssistant {
	haURL := lflag.String("ha-url", "", "Home Assistant base URL (e.g. http://homeassistant.local:8123)")
	haToken := lflag.String("ha-token", "", "Home Assistant long-lived access token")
	timeout := lflag.Duration("ha-timeout", 10*time.Second, "Timeout for Home Assistant API requests")

	h := &HomeAssistant{}

	lflag.Do(func() {
		baseURL := *haURL
		token := *haToken
		if supervisorToken := os.Getenv("SUPERVISOR_TOKEN"); supervisorToken != "" {
			if baseURL == "" {
				baseURL = supervisorURL
			}
			if token == "" {
				token = supervisorToken
			}
		}
		if baseURL == "" {
			panic("ha-url is required when not running as an add-on")
		}
		*h = *NewHomeAssistant(baseURL, token, *timeout)
	})

	return h
}

type haState struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// State implements StateSource using GET /api/states/<entity_id>.
func (h *HomeAssistant) State(ctx context.Context, entityID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to get state of %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("unexpected status %d for %s: %s", resp.StatusCode, entityID, strings.TrimSpace(string(body)))
	}

	var st haState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", false, fmt.Errorf("failed to decode state of %s: %w", entityID, err)
	}
	return st.State, true, nil
}
