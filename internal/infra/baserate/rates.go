package baserate

import (
	"encoding/json"
	"log/slog"
	"strings"

	"storagepricing/internal/domain/shared/money"
)

// RateTable is the static base-rate fallback used when no rate service
// is configured or the service is unreachable. Amounts are monthly
// rates in minor units keyed by unit type, with optional per-facility
// overrides.
type RateTable struct {
	Currency   string                     `json:"currency"`
	Defaults   map[string]int64           `json:"defaults"`
	Facilities map[int64]map[string]int64 `json:"facilities"`
}

func DefaultRateTable() RateTable {
	return RateTable{
		Currency: "USD",
		Defaults: map[string]int64{
			"SMALL":        6_500,
			"MEDIUM":       12_000,
			"LARGE":        19_500,
			"CLIMATE":      16_000,
			"VEHICLE":      14_500,
			"LOCKER":       3_500,
			"WINE_STORAGE": 22_000,
		},
	}
}

// LoadRateTable parses the BASE_RATE_TABLE JSON, falling back to the
// default table when the value is empty or malformed.
func LoadRateTable(raw string, logger *slog.Logger) RateTable {
	if strings.TrimSpace(raw) == "" {
		return DefaultRateTable()
	}
	var table RateTable
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		if logger != nil {
			logger.Warn("invalid BASE_RATE_TABLE JSON, using defaults", "error", err)
		}
		return DefaultRateTable()
	}
	if table.Currency == "" {
		table.Currency = DefaultRateTable().Currency
	}
	if table.Defaults == nil {
		table.Defaults = DefaultRateTable().Defaults
	}
	return table
}

// Rate resolves the base rate for a facility and unit type. Facility
// overrides win over type defaults.
func (t RateTable) Rate(facilityID int64, unitType string) (money.Money, bool) {
	unitType = strings.ToUpper(strings.TrimSpace(unitType))
	if overrides, ok := t.Facilities[facilityID]; ok {
		if cents, ok := overrides[unitType]; ok {
			return money.Money{Amount: cents, Currency: t.Currency}, true
		}
	}
	if cents, ok := t.Defaults[unitType]; ok {
		return money.Money{Amount: cents, Currency: t.Currency}, true
	}
	return money.Money{}, false
}
