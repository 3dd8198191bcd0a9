package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func setupResponseTestApp() *fiber.App {
	app := fiber.New()

	app.Get("/success", func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"id": "123"})
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusBadRequest, "invalid input")
	})
	app.Get("/limited", func(c *fiber.Ctx) error {
		return RateLimited(c, 90*time.Second+time.Millisecond, "too many attempts, try again in 2 minutes")
	})

	return app
}

func performResponseTestRequest(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding %s response body: %v", path, err)
	}
	return resp, body
}

func TestResponseEnvelopes(t *testing.T) {
	app := setupResponseTestApp()

	t.Run("success wraps data", func(t *testing.T) {
		resp, body := performResponseTestRequest(t, app, "/success")
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		if body["success"] != true {
			t.Fatalf("expected success=true, got %v", body["success"])
		}
		data, ok := body["data"].(map[string]any)
		if !ok || data["id"] != "123" {
			t.Fatalf("unexpected data: %v", body["data"])
		}
	})

	t.Run("error carries message", func(t *testing.T) {
		resp, body := performResponseTestRequest(t, app, "/error")
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if body["success"] != false || body["error"] != "invalid input" {
			t.Fatalf("unexpected body: %v", body)
		}
	})

	t.Run("rate limited rounds retry-after up", func(t *testing.T) {
		resp, body := performResponseTestRequest(t, app, "/limited")
		if resp.StatusCode != fiber.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", resp.StatusCode)
		}
		if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "91" {
			t.Fatalf("expected Retry-After 91, got %q", got)
		}
		if body["retryAfterSeconds"] != float64(91) {
			t.Fatalf("expected retryAfterSeconds 91, got %v", body["retryAfterSeconds"])
		}
	})
}
