package baserate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"storagepricing/internal/domain/pricing"
	"storagepricing/internal/domain/shared/money"
)

// ErrUnknownUnitType is returned when neither the rate service nor the
// fallback table knows the requested unit type.
var ErrUnknownUnitType = errors.New("baserate: unknown unit type")

// Client resolves base rates from an external rate service, falling
// back to the static table when the endpoint is unset or the call
// fails. It satisfies pricing.BaseRateLookup.
type Client struct {
	HTTP     *http.Client
	Endpoint string
	Table    RateTable
	Logger   *slog.Logger
}

type rateRequest struct {
	FacilityID int64  `json:"facility_id"`
	UnitType   string `json:"unit_type"`
}

type rateResponse struct {
	BaseRateCents int64  `json:"base_rate_cents"`
	Currency      string `json:"currency"`
}

func (c *Client) BaseRate(ctx context.Context, facilityID int64, unitType string) (money.Money, error) {
	if c.Endpoint != "" && c.HTTP != nil {
		rate, err := c.fetch(ctx, facilityID, unitType)
		if err == nil {
			return rate, nil
		}
		if c.Logger != nil {
			c.Logger.Warn("base rate service failed, using fallback table",
				"facility_id", facilityID, "unit_type", unitType, "error", err)
		}
	}
	rate, ok := c.Table.Rate(facilityID, unitType)
	if !ok {
		return money.Money{}, fmt.Errorf("%w: %q", ErrUnknownUnitType, unitType)
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, facilityID int64, unitType string) (money.Money, error) {
	body, err := json.Marshal(rateRequest{FacilityID: facilityID, UnitType: unitType})
	if err != nil {
		return money.Money{}, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return money.Money{}, err
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(request)
	if err != nil {
		return money.Money{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return money.Money{}, fmt.Errorf("rate service returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var decoded rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return money.Money{}, err
	}
	if decoded.BaseRateCents <= 0 {
		return money.Money{}, fmt.Errorf("rate service returned non-positive rate %d", decoded.BaseRateCents)
	}
	currency := decoded.Currency
	if currency == "" {
		currency = c.Table.Currency
	}
	return money.Money{Amount: decoded.BaseRateCents, Currency: currency}, nil
}

var _ pricing.BaseRateLookup = (*Client)(nil)
