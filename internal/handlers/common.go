package handlers

import (
	"errors"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"encoding/json"

	domain "github.com/oakmart/api/internal/domain"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 64 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("must be RFC3339 timestamp")
}

type addressPayload struct {
	Recipient   string `json:"recipient"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	Phone       string `json:"phone,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	TaxNumber   string `json:"tax_number,omitempty"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Recipient:   addr.Recipient,
		Line1:       addr.Line1,
		Line2:       addr.Line2,
		City:        addr.City,
		PostalCode:  addr.PostalCode,
		Country:     addr.Country,
		Phone:       addr.Phone,
		CompanyName: addr.CompanyName,
		TaxNumber:   addr.TaxNumber,
	}
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:   strings.TrimSpace(p.Recipient),
		Line1:       strings.TrimSpace(p.Line1),
		Line2:       strings.TrimSpace(p.Line2),
		City:        strings.TrimSpace(p.City),
		PostalCode:  strings.TrimSpace(p.PostalCode),
		Country:     strings.ToUpper(strings.TrimSpace(p.Country)),
		Phone:       strings.TrimSpace(p.Phone),
		CompanyName: strings.TrimSpace(p.CompanyName),
		TaxNumber:   strings.TrimSpace(p.TaxNumber),
	}
}
