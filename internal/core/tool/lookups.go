package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	httpadapter "github.com/truliv/voice-agent/internal/adapters/http"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// Tool name constants
const (
	ToolNameGetProperties       = "get_properties"
	ToolNameGetRoomAvailability = "get_room_availability"
	ToolNameGetBedAvailability  = "get_bed_availability"
	ToolNameGetLocation         = "get_location"
	ToolNameTransferToHuman     = "transfer_to_human"
)

// Apologies spoken when a lookup fails for any reason.
const (
	PropertiesFailure = "Sorry, I'm having trouble looking up properties right now. Please try again shortly."
	RoomsFailure      = "Sorry, I'm having trouble checking room availability right now. Please try again shortly."
	BedsFailure       = "Sorry, I'm having trouble checking bed availability right now. Please try again shortly."
	LocationFailure   = "Sorry, I'm having trouble looking up the location right now. Please try again shortly."
)

// PropertyLookup is the Truliv API surface the tools need.
type PropertyLookup interface {
	ListProperties(ctx context.Context, city, area string) ([]httpadapter.Property, error)
	ListRooms(ctx context.Context, propertyID string) ([]httpadapter.Availability, error)
	ListBeds(ctx context.Context, propertyID string) ([]httpadapter.Availability, error)
}

// Geocoder resolves free-form addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*httpadapter.GeocodeResponse, error)
}

// Lookups implements the four read-only lookup tools.
type Lookups struct {
	properties PropertyLookup
	geocoder   Geocoder
}

// NewLookups creates the lookup tools over the given clients.
func NewLookups(properties PropertyLookup, geocoder Geocoder) *Lookups {
	return &Lookups{properties: properties, geocoder: geocoder}
}

// PropertiesArgs are the arguments of get_properties.
type PropertiesArgs struct {
	City string                 `json:"city"`
	Area httpadapter.FlexString `json:"area"`
}

// PropertyArgs are the arguments of the room and bed tools.
type PropertyArgs struct {
	PropertyID httpadapter.FlexString `json:"property_id"`
}

// LocationArgs are the arguments of get_location.
type LocationArgs struct {
	Address string `json:"address"`
}

// Validate requires a city.
func (a *PropertiesArgs) Validate() error {
	if strings.TrimSpace(a.City) == "" {
		return errors.New("city is required")
	}
	return nil
}

// Validate requires a property id.
func (a *PropertyArgs) Validate() error {
	if strings.TrimSpace(a.PropertyID.Or("")) == "" {
		return errors.New("property_id is required")
	}
	return nil
}

// Validate requires an address.
func (a *LocationArgs) Validate() error {
	if strings.TrimSpace(a.Address) == "" {
		return errors.New("address is required")
	}
	return nil
}

// GetProperties lists properties in a city and optional area.
func (l *Lookups) GetProperties(ctx context.Context, city, area string) string {
	props, err := l.properties.ListProperties(ctx, city, area)
	if err != nil {
		logLookupFailure(ctx, ToolNameGetProperties, err)
		return PropertiesFailure
	}

	if len(props) == 0 {
		where := city
		if area != "" {
			where += ", " + area
		}
		return fmt.Sprintf("No properties found in %s. Would you like to check another area?", where)
	}

	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, fmt.Sprintf("%s in %s, starting at Rs %s per month (ID: %s)",
			p.Name.Or("Unknown"),
			p.Area.Or(""),
			p.StartingPrice.Or("N/A"),
			p.ID.Or("")))
	}
	return fmt.Sprintf("Found %d properties: %s", len(parts), strings.Join(parts, "; "))
}

// GetRoomAvailability reports room availability for a property.
func (l *Lookups) GetRoomAvailability(ctx context.Context, propertyID string) string {
	items, err := l.properties.ListRooms(ctx, propertyID)
	if err != nil {
		logLookupFailure(ctx, ToolNameGetRoomAvailability, err)
		return RoomsFailure
	}
	if len(items) == 0 {
		return "No rooms are currently available at this property. Would you like to check another property?"
	}
	return "Room availability: " + availabilityLines(items)
}

// GetBedAvailability reports bed availability for a property.
func (l *Lookups) GetBedAvailability(ctx context.Context, propertyID string) string {
	items, err := l.properties.ListBeds(ctx, propertyID)
	if err != nil {
		logLookupFailure(ctx, ToolNameGetBedAvailability, err)
		return BedsFailure
	}
	if len(items) == 0 {
		return "No beds are currently available at this property. Would you like to check another property?"
	}
	return "Bed availability: " + availabilityLines(items)
}

// GetLocation geocodes an address and reads back the first match.
func (l *Lookups) GetLocation(ctx context.Context, address string) string {
	resp, err := l.geocoder.Geocode(ctx, address)
	if err != nil {
		logLookupFailure(ctx, ToolNameGetLocation, err)
		return LocationFailure
	}
	if !resp.Found() {
		return fmt.Sprintf("I couldn't find location details for '%s'. Could you provide a more specific address?", address)
	}

	first := resp.Results[0]
	lat, lng := first.Coordinates()
	return fmt.Sprintf("The address is: %s. You can find it on Google Maps by searching for these coordinates: %s, %s.",
		first.FormattedAddress, lat, lng)
}

// Register adds the four lookup tools to the manager.
func (l *Lookups) Register(m *ToolManager) {
	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameGetProperties,
		Description: "Get the list of available Truliv PG properties in a given city and optionally a specific area.",
		Parameters: object([]string{"city"}, map[string]interface{}{
			"city": stringProp(`The city to search in (e.g. "Chennai" or "Bangalore")`),
			"area": stringProp(`Optional specific area or neighborhood (e.g. "Koramangala", "OMR", "HSR Layout")`),
		}),
		Executor: Typed(PropertiesFailure, func(ctx context.Context, args PropertiesArgs) string {
			return l.GetProperties(ctx, args.City, args.Area.Or(""))
		}),
	})

	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameGetRoomAvailability,
		Description: "Check room availability for a specific Truliv property.",
		Parameters: object([]string{"property_id"}, map[string]interface{}{
			"property_id": stringProp("The property ID to check room availability for"),
		}),
		Executor: Typed(RoomsFailure, func(ctx context.Context, args PropertyArgs) string {
			return l.GetRoomAvailability(ctx, args.PropertyID.Or(""))
		}),
	})

	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameGetBedAvailability,
		Description: "Check bed availability for a specific Truliv property.",
		Parameters: object([]string{"property_id"}, map[string]interface{}{
			"property_id": stringProp("The property ID to check bed availability for"),
		}),
		Executor: Typed(BedsFailure, func(ctx context.Context, args PropertyArgs) string {
			return l.GetBedAvailability(ctx, args.PropertyID.Or(""))
		}),
	})

	m.RegisterTool(&ToolDefinition{
		Name:        ToolNameGetLocation,
		Description: "Get the full address and location details for a place using Google Geolocation API.",
		Parameters: object([]string{"address"}, map[string]interface{}{
			"address": stringProp(`The property name, address, or area to look up (e.g. "Truliv HSR Layout Bangalore")`),
		}),
		Executor: Typed(LocationFailure, func(ctx context.Context, args LocationArgs) string {
			return l.GetLocation(ctx, args.Address)
		}),
	})
}

func availabilityLines(items []httpadapter.Availability) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s: %s available at Rs %s/month",
			item.Type.Or("Unknown"),
			item.AvailableCount.Or("0"),
			item.Price.Or("N/A")))
	}
	return strings.Join(parts, "; ")
}

func logLookupFailure(ctx context.Context, tool string, err error) {
	kind := "unknown"
	var le *httpadapter.LookupError
	if errors.As(err, &le) {
		kind = string(le.Kind)
	}
	logger.Warn(ctx, "Lookup tool failed",
		zap.String("tool_name", tool),
		zap.String("failure_kind", kind),
		zap.Error(err))
}
