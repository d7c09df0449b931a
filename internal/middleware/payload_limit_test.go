package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(maxBytes int64) *gin.Engine {
	logger := zerolog.Nop()
	router := gin.New()
	router.Use(PayloadLimit(maxBytes, logger))

	router.POST("/test", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			if limit, ok := PayloadTooLarge(c, err); ok {
				RespondPayloadTooLarge(c, limit)
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": len(body)})
	})

	return router
}

func TestPayloadLimit_UnderLimit(t *testing.T) {
	router := setupTestRouter(1024)

	body := strings.Repeat("a", 500)
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["received"] != 500 {
		t.Errorf("expected received=500, got %d", resp["received"])
	}
}

func TestPayloadLimit_AtExactLimit(t *testing.T) {
	router := setupTestRouter(100)

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 100)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPayloadLimit_OverLimit_ContentLength(t *testing.T) {
	router := setupTestRouter(100)

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 200)))
	req.ContentLength = 200

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", w.Code, w.Body.String())
	}

	var resp PayloadLimitErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error != "payload_too_large" {
		t.Errorf("expected error='payload_too_large', got '%s'", resp.Error)
	}
	if resp.Message == "" {
		t.Error("message field should not be empty")
	}
	if resp.MaxBytes != 100 {
		t.Errorf("expected maxBytes=100, got %d", resp.MaxBytes)
	}
}

func TestPayloadLimit_OverLimit_StreamedBody(t *testing.T) {
	router := setupTestRouter(100)

	body := bytes.NewReader([]byte(strings.Repeat("x", 200)))
	req := httptest.NewRequest(http.MethodPost, "/test", body)
	req.ContentLength = -1

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPayloadLimit_EmptyBody(t *testing.T) {
	router := setupTestRouter(100)

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for empty body, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPayloadLimit_InventoryReport(t *testing.T) {
	router := setupTestRouter(1 << 20)

	report := map[string]interface{}{
		"name": "PC-01",
		"components": []map[string]interface{}{
			{"type": "Processor", "name": "Intel i7-12700"},
			{"type": "Memory", "manufacturer": "Kingston", "quantity": 16, "data": "DDR5"},
			{"type": "Disk", "name": "C:", "size": 512, "freeSpace": 300},
		},
	}
	body, _ := json.Marshal(report)

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPayloadTooLarge_OtherError(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := PayloadTooLarge(c, io.ErrUnexpectedEOF); ok {
		t.Error("expected unrelated error not to be treated as payload too large")
	}
}
