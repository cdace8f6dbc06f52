package track

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newParamsContext(method, target, contentType, body string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestParamsStorage_JSONBody(t *testing.T) {
	body := `{"dog_name":"Rex","distance_meters":1234.5,"duration_seconds":900,"shared":true}`
	c := newParamsContext(http.MethodPost, "/api/tracks", "application/json", body)

	ps, err := NewParamsStorage(c, 1024)
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := ps.Get("dog_name"); !ok || v != "Rex" {
		t.Errorf("dog_name = %v, %v", v, ok)
	}
	if v, ok := ps.GetFloat("distance_meters"); !ok || v != 1234.5 {
		t.Errorf("distance_meters = %v, %v", v, ok)
	}
	if v, ok := ps.GetInt("duration_seconds"); !ok || v != 900 {
		t.Errorf("duration_seconds = %v, %v", v, ok)
	}
	if v, ok := ps.Get("shared"); !ok || v != "true" {
		t.Errorf("shared = %v, %v", v, ok)
	}
}

func TestParamsStorage_BodyTooLarge(t *testing.T) {
	body := `{"narrative":"` + strings.Repeat("x", 100) + `"}`
	c := newParamsContext(http.MethodPost, "/api/reports", "application/json", body)

	if _, err := NewParamsStorage(c, 16); err == nil {
		t.Error("expected an error for an oversized body")
	}
}

func TestParamsStorage_MalformedJSONYieldsNoBodyParams(t *testing.T) {
	c := newParamsContext(http.MethodPost, "/api/tracks?dog_name=Rex", "application/json", "{not json")

	ps, err := NewParamsStorage(c, 1024)
	if err != nil {
		t.Fatal(err)
	}
	// falls back to the query string when the body parses to nothing
	if v, ok := ps.Get("dog_name"); !ok || v != "Rex" {
		t.Errorf("dog_name = %v, %v", v, ok)
	}
}

func TestParamsStorage_FormBody(t *testing.T) {
	form := url.Values{"operator_name": {"J. Alvarez"}, "empty": {""}}
	c := newParamsContext(http.MethodPost, "/api/tracks", "application/x-www-form-urlencoded", form.Encode())

	ps, err := NewParamsStorage(c, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := ps.Get("operator_name"); !ok || v != "J. Alvarez" {
		t.Errorf("operator_name = %v, %v", v, ok)
	}
	if _, ok := ps.Get("empty"); ok {
		t.Error("empty values must read as absent")
	}
}

func TestParamsStorage_QueryFallback(t *testing.T) {
	c := newParamsContext(http.MethodPost, "/api/tracks?device_topic=devices/collar-7/telemetry", "", "")

	ps, err := NewParamsStorage(c, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := ps.Get("device_topic"); !ok || v != "devices/collar-7/telemetry" {
		t.Errorf("device_topic = %v, %v", v, ok)
	}
}

func TestParamsStorage_GetNumericRejectsGarbage(t *testing.T) {
	c := newParamsContext(http.MethodPost, "/api/tracks?distance_meters=far&duration_seconds=1.5", "", "")

	ps, err := NewParamsStorage(c, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ps.GetFloat("distance_meters"); ok {
		t.Error("GetFloat accepted a non-number")
	}
	if _, ok := ps.GetInt("duration_seconds"); ok {
		t.Error("GetInt accepted a fraction")
	}
	if _, ok := ps.GetInt("missing"); ok {
		t.Error("GetInt reported a missing key as present")
	}
}
