package quote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider field names inside the "Global Quote" section
const (
	FieldSymbol           = "01. symbol"
	FieldOpen             = "02. open"
	FieldHigh             = "03. high"
	FieldLow              = "04. low"
	FieldPrice            = "05. price"
	FieldVolume           = "06. volume"
	FieldLatestTradingDay = "07. latest trading day"
	FieldPreviousClose    = "08. previous close"
	FieldChange           = "09. change"
	FieldChangePercent    = "10. change percent"
)

var (
	// ErrSymbolNotFound is returned when the provider does not know the symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrRateLimited is returned when the provider throttled the request
	ErrRateLimited = errors.New("provider rate limit reached")
	// ErrMalformedPayload is returned when the quote section is missing or unusable
	ErrMalformedPayload = errors.New("malformed quote payload")
)

// Payload is the decoded provider document for a GLOBAL_QUOTE request.
// GlobalQuote is nil when the section is absent from the response.
type Payload struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	ErrorMessage string            `json:"Error Message,omitempty"`
	Note         string            `json:"Note,omitempty"`
	Information  string            `json:"Information,omitempty"`
}

// Normalize converts a provider payload into a Record.
//
// Provider signals are checked before the quote section: an error message
// means the symbol is unknown, a note or information message means the
// request was throttled. An empty quote section is how the provider answers
// for an unknown ticker.
func Normalize(p Payload) (Record, error) {
	switch {
	case p.ErrorMessage != "":
		return Record{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, p.ErrorMessage)
	case p.Note != "":
		return Record{}, fmt.Errorf("%w: %s", ErrRateLimited, p.Note)
	case p.Information != "":
		return Record{}, fmt.Errorf("%w: %s", ErrRateLimited, p.Information)
	case p.GlobalQuote == nil:
		return Record{}, fmt.Errorf("%w: quote section missing", ErrMalformedPayload)
	case len(p.GlobalQuote) == 0:
		return Record{}, fmt.Errorf("%w: empty quote section", ErrSymbolNotFound)
	}

	q := p.GlobalQuote
	rec := Record{Symbol: NormalizeSymbol(q[FieldSymbol])}
	if rec.Symbol == "" {
		return Record{}, missingField(FieldSymbol)
	}

	required := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{FieldOpen, &rec.Open},
		{FieldHigh, &rec.High},
		{FieldLow, &rec.Low},
		{FieldPrice, &rec.Price},
		{FieldPreviousClose, &rec.PreviousClose},
	}
	for _, r := range required {
		d, err := parseDecimal(q, r.field)
		if err != nil {
			return Record{}, err
		}
		*r.dst = d
	}

	volume, err := parseVolume(q)
	if err != nil {
		return Record{}, err
	}
	rec.Volume = volume

	// change and change percent are derived fields; an absent value means flat
	if v := strings.TrimSpace(q[FieldChange]); v != "" {
		if rec.Change, err = decimal.NewFromString(v); err != nil {
			return Record{}, invalidField(FieldChange, v)
		}
	}
	if v := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(q[FieldChangePercent]), "%")); v != "" {
		if rec.ChangePercent, err = decimal.NewFromString(v); err != nil {
			return Record{}, invalidField(FieldChangePercent, q[FieldChangePercent])
		}
	}

	if v := strings.TrimSpace(q[FieldLatestTradingDay]); v != "" {
		if rec.LatestTradingDay, err = ParseDate(v); err != nil {
			return Record{}, invalidField(FieldLatestTradingDay, v)
		}
	}

	return rec, nil
}

// Fields renders a record back into provider field names
func (r Record) Fields() map[string]string {
	return map[string]string{
		FieldSymbol:           r.Symbol,
		FieldOpen:             r.Open.StringFixed(4),
		FieldHigh:             r.High.StringFixed(4),
		FieldLow:              r.Low.StringFixed(4),
		FieldPrice:            r.Price.StringFixed(4),
		FieldVolume:           strconv.FormatInt(r.Volume, 10),
		FieldLatestTradingDay: r.LatestTradingDay.String(),
		FieldPreviousClose:    r.PreviousClose.StringFixed(4),
		FieldChange:           r.Change.StringFixed(4),
		FieldChangePercent:    r.ChangePercent.StringFixed(4) + "%",
	}
}

func parseDecimal(q map[string]string, field string) (decimal.Decimal, error) {
	v := strings.TrimSpace(q[field])
	if v == "" {
		return decimal.Decimal{}, missingField(field)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, invalidField(field, v)
	}
	return d, nil
}

func parseVolume(q map[string]string) (int64, error) {
	v := strings.TrimSpace(q[FieldVolume])
	if v == "" {
		return 0, missingField(FieldVolume)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, invalidField(FieldVolume, v)
	}
	return n, nil
}

func missingField(field string) error {
	return fmt.Errorf("%w: field %q missing", ErrMalformedPayload, field)
}

func invalidField(field, value string) error {
	return fmt.Errorf("%w: field %q has invalid value %q", ErrMalformedPayload, field, value)
}
