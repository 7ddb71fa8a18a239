package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	u "zetaconvert/internal/utils"
)

func testAppConfig() u.Config {
	var cfg u.Config
	cfg.Limits.MaxUploadBytes = 20 << 20
	cfg.Limits.ConvertTimeoutSecs = 30
	cfg.Convert.DefaultQuality = 90
	cfg.Convert.DefaultDPI = 72
	cfg.Convert.Workers = 2
	return cfg
}

func TestHealthEndpoint(t *testing.T) {
	app := SetupApp(testAppConfig(), nil)
	defer app.Shutdown()

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 but got %d", resp.StatusCode)
	}
}

func TestFormatsEndpoint(t *testing.T) {
	app := SetupApp(testAppConfig(), nil)
	defer app.Shutdown()

	resp, err := app.Test(httptest.NewRequest("GET", "/formats.json", nil), -1)
	if err != nil {
		t.Fatalf("formats request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 but got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	var payload struct {
		Items []struct {
			Slug string `json:"slug"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("formats.json is not valid JSON: %v", err)
	}
	if len(payload.Items) == 0 {
		t.Fatal("expected at least one catalog item")
	}
}

func TestNotFoundReturnsJSONEnvelope(t *testing.T) {
	app := SetupApp(testAppConfig(), nil)
	defer app.Shutdown()

	resp, err := app.Test(httptest.NewRequest("GET", "/no-such-path", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 but got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("404 body is not the JSON envelope: %v", err)
	}
	if payload.Error.Code != fiber.StatusNotFound {
		t.Fatalf("expected error code 404 but got %d", payload.Error.Code)
	}
}

func TestOversizedUploadRejected(t *testing.T) {
	cfg := testAppConfig()
	cfg.Limits.MaxUploadBytes = 1024
	app := SetupApp(cfg, nil)
	defer app.Shutdown()

	body := bytes.Repeat([]byte("a"), 8192)
	req := httptest.NewRequest("POST", "/api/convert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 but got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	app := SetupApp(testAppConfig(), nil)
	defer app.Shutdown()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/stats", nil), -1)
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 but got %d", resp.StatusCode)
	}
}
