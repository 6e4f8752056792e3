package call

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"

	"github.com/truliv/voice-agent/internal/domain"
)

// ErrEmptyNumber is returned by NormalizeNumber for blank input.
var ErrEmptyNumber = errors.New("phone number is empty")

// ResolveCallContext decides from job metadata whether the session dials out.
// Anything that is not a JSON object with a non-empty string phone_number is
// treated as an inbound call; this function never fails.
func ResolveCallContext(metadata string, region string) domain.CallContext {
	metadata = strings.TrimSpace(metadata)
	if metadata == "" {
		return domain.InboundCall()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(metadata), &fields); err != nil || fields == nil {
		return domain.InboundCall()
	}

	raw, ok := fields["phone_number"]
	if !ok {
		return domain.InboundCall()
	}
	var phone string
	if err := json.Unmarshal(raw, &phone); err != nil {
		return domain.InboundCall()
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.InboundCall()
	}

	destination, err := NormalizeNumber(phone, region)
	if err != nil {
		// The bridge gets the number as given and reports its own failure.
		destination = phone
	}

	return domain.CallContext{
		Direction:   domain.DirectionOutbound,
		Destination: destination,
		Purpose:     purposeFrom(fields),
	}
}

// NormalizeNumber parses raw in the given default region and formats it as E.164.
func NormalizeNumber(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyNumber
	}
	if region == "" {
		region = "IN"
	}
	number, err := libphonenumber.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsPossibleNumber(number) {
		return "", errors.New("not a possible phone number")
	}
	return libphonenumber.Format(number, libphonenumber.E164), nil
}

func purposeFrom(fields map[string]json.RawMessage) domain.CallPurpose {
	raw, ok := fields["purpose"]
	if !ok {
		return domain.PurposeNone
	}
	var purpose string
	if err := json.Unmarshal(raw, &purpose); err != nil {
		return domain.PurposeNone
	}
	return domain.ParseCallPurpose(purpose)
}
