package tool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/truliv/voice-agent/internal/adapters/http"
)

type fakeLookup struct {
	props []httpadapter.Property
	rooms []httpadapter.Availability
	beds  []httpadapter.Availability
	err   error

	lastCity, lastArea, lastID string
}

func (f *fakeLookup) ListProperties(_ context.Context, city, area string) ([]httpadapter.Property, error) {
	f.lastCity, f.lastArea = city, area
	return f.props, f.err
}

func (f *fakeLookup) ListRooms(_ context.Context, id string) ([]httpadapter.Availability, error) {
	f.lastID = id
	return f.rooms, f.err
}

func (f *fakeLookup) ListBeds(_ context.Context, id string) ([]httpadapter.Availability, error) {
	f.lastID = id
	return f.beds, f.err
}

type fakeGeocoder struct {
	resp *httpadapter.GeocodeResponse
	err  error
}

func (f *fakeGeocoder) Geocode(context.Context, string) (*httpadapter.GeocodeResponse, error) {
	return f.resp, f.err
}

func flex(s string) httpadapter.FlexString { return httpadapter.FlexString{Value: s, Valid: true} }

func TestGetPropertiesSentences(t *testing.T) {
	ctx := context.Background()

	lookup := &fakeLookup{props: []httpadapter.Property{
		{ID: flex("p1"), Name: flex("Truliv Aura"), Area: flex("OMR"), StartingPrice: flex("8500")},
		{ID: flex("p2")},
	}}
	got := NewLookups(lookup, nil).GetProperties(ctx, "Chennai", "")
	assert.Equal(t, "Found 2 properties: Truliv Aura in OMR, starting at Rs 8500 per month (ID: p1); Unknown in , starting at Rs N/A per month (ID: p2)", got)

	empty := NewLookups(&fakeLookup{}, nil)
	assert.Equal(t, "No properties found in Chennai. Would you like to check another area?", empty.GetProperties(ctx, "Chennai", ""))
	assert.Equal(t, "No properties found in Bangalore, HSR Layout. Would you like to check another area?", empty.GetProperties(ctx, "Bangalore", "HSR Layout"))

	failing := NewLookups(&fakeLookup{err: errors.New("boom")}, nil)
	assert.Equal(t, PropertiesFailure, failing.GetProperties(ctx, "Chennai", ""))
}

func TestAvailabilitySentences(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{
		rooms: []httpadapter.Availability{
			{Type: flex("Single"), AvailableCount: flex("2"), Price: flex("12000")},
			{Type: flex("Double")},
		},
		beds: []httpadapter.Availability{
			{Type: flex("Twin sharing"), AvailableCount: flex("5"), Price: flex("7000")},
		},
	}
	l := NewLookups(lookup, nil)

	assert.Equal(t, "Room availability: Single: 2 available at Rs 12000/month; Double: 0 available at Rs N/A/month", l.GetRoomAvailability(ctx, "p1"))
	assert.Equal(t, "p1", lookup.lastID)
	assert.Equal(t, "Bed availability: Twin sharing: 5 available at Rs 7000/month", l.GetBedAvailability(ctx, "p9"))

	none := NewLookups(&fakeLookup{}, nil)
	assert.Equal(t, "No rooms are currently available at this property. Would you like to check another property?", none.GetRoomAvailability(ctx, "p1"))
	assert.Equal(t, "No beds are currently available at this property. Would you like to check another property?", none.GetBedAvailability(ctx, "p1"))

	failing := NewLookups(&fakeLookup{err: &httpadapter.LookupError{Kind: httpadapter.FailureStatus, StatusCode: 500}}, nil)
	assert.Equal(t, RoomsFailure, failing.GetRoomAvailability(ctx, "p1"))
	assert.Equal(t, BedsFailure, failing.GetBedAvailability(ctx, "p1"))
}

func TestGetLocationSentences(t *testing.T) {
	ctx := context.Background()
	lat, lng := 12.9116, 77.6389

	found := &httpadapter.GeocodeResponse{Status: "OK", Results: []httpadapter.GeocodeResult{{FormattedAddress: "HSR Layout, Bengaluru"}}}
	found.Results[0].Geometry.Location.Lat = &lat
	found.Results[0].Geometry.Location.Lng = &lng

	l := NewLookups(nil, &fakeGeocoder{resp: found})
	assert.Equal(t, "The address is: HSR Layout, Bengaluru. You can find it on Google Maps by searching for these coordinates: 12.9116, 77.6389.", l.GetLocation(ctx, "HSR"))

	l = NewLookups(nil, &fakeGeocoder{resp: &httpadapter.GeocodeResponse{Status: "ZERO_RESULTS"}})
	assert.Equal(t, "I couldn't find location details for 'Nowhere'. Could you provide a more specific address?", l.GetLocation(ctx, "Nowhere"))

	l = NewLookups(nil, &fakeGeocoder{err: &httpadapter.LookupError{Kind: httpadapter.FailureTimeout}})
	assert.Equal(t, LocationFailure, l.GetLocation(ctx, "HSR"))
}

func TestLookupToolsOverHTTP(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/properties/42/rooms":
			_, _ = w.Write([]byte(`[{"type":"Single","available_count":3,"price":11000}]`))
		case "/properties/42/beds":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewToolManager()
	client := httpadapter.NewTrulivClient(srv.URL, "key", time.Second)
	NewLookups(client, httpadapter.NewGeocodeClient("", "", time.Second)).Register(m)

	ctx := context.Background()
	assert.Equal(t, "Room availability: Single: 3 available at Rs 11000/month",
		m.ExecuteTool(ctx, ToolNameGetRoomAvailability, `{"property_id":42}`))
	assert.Equal(t, BedsFailure, m.ExecuteTool(ctx, ToolNameGetBedAvailability, `{"property_id":"42"}`))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	// Unconfigured geocoder: no request, apology sentence.
	assert.Equal(t, LocationFailure, m.ExecuteTool(ctx, ToolNameGetLocation, `{"address":"HSR"}`))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestToolManagerDefinitionsAndRouting(t *testing.T) {
	m := NewToolManager()
	NewLookups(&fakeLookup{}, &fakeGeocoder{}).Register(m)
	NewTransferHandler(nil, nil, nil, "").Register(m)

	assert.Equal(t, []string{
		ToolNameGetProperties,
		ToolNameGetRoomAvailability,
		ToolNameGetBedAvailability,
		ToolNameGetLocation,
		ToolNameTransferToHuman,
	}, m.Names())

	defs := m.GetToolDefinitions()
	require.Len(t, defs, 5)
	first := defs[0].(map[string]interface{})
	assert.Equal(t, "function", first["type"])
	assert.Equal(t, ToolNameGetProperties, first["name"])

	var seen []Invocation
	m.SetObserver(func(_ context.Context, inv Invocation) { seen = append(seen, inv) })

	assert.Equal(t, UnknownToolResult, m.ExecuteTool(context.Background(), "book_hotel", `{}`))
	got := m.ExecuteTool(context.Background(), ToolNameGetProperties, `not json`)
	assert.Equal(t, PropertiesFailure, got)

	require.Len(t, seen, 2)
	assert.Equal(t, "book_hotel", seen[0].Name)
	assert.Equal(t, got, seen[1].Result)
}

func TestLookupToolsRejectBadArguments(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	geo := &fakeGeocoder{resp: &httpadapter.GeocodeResponse{Status: "ZERO_RESULTS"}}
	m := NewToolManager()
	NewLookups(httpadapter.NewTrulivClient(srv.URL, "key", time.Second), geo).Register(m)

	tests := []struct {
		name      string
		tool      string
		arguments string
		want      string
	}{
		{"properties malformed", ToolNameGetProperties, `{"city":`, PropertiesFailure},
		{"properties without city", ToolNameGetProperties, `{"area":"OMR"}`, PropertiesFailure},
		{"properties blank city", ToolNameGetProperties, `{"city":"  "}`, PropertiesFailure},
		{"rooms without id", ToolNameGetRoomAvailability, `{}`, RoomsFailure},
		{"rooms empty id", ToolNameGetRoomAvailability, `{"property_id":""}`, RoomsFailure},
		{"beds malformed", ToolNameGetBedAvailability, `[1,2]`, BedsFailure},
		{"location without address", ToolNameGetLocation, `{"address":""}`, LocationFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.ExecuteTool(context.Background(), tt.tool, tt.arguments))
		})
	}
	assert.Zero(t, atomic.LoadInt32(&hits))

	// numeric ids still pass validation
	assert.Equal(t, "No rooms are currently available at this property. Would you like to check another property?",
		m.ExecuteTool(context.Background(), ToolNameGetRoomAvailability, `{"property_id":7}`))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
