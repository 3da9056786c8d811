package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandler_EvaluateAllHealthy(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.AddCheck("sessions", func(context.Context) error { return nil })
	h.AddCheck("secrets", func(context.Context) error { return nil })

	report := h.Evaluate(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "sessions", report.Checks[0].Name)
}

func TestHandler_EvaluateFailingCheck(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.AddCheck("sessions", func(context.Context) error { return nil })
	h.AddCheck("secrets", func(context.Context) error { return errors.New("vault sealed") })

	report := h.Evaluate(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusUnhealthy, report.Checks[1].Status)
	assert.Contains(t, report.Checks[1].Error, "sealed")
}

func TestHandler_ReplaceCheck(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.AddCheck("store", func(context.Context) error { return errors.New("down") })
	h.AddCheck("store", func(context.Context) error { return nil })

	report := h.Evaluate(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 1)
}

func TestHandler_CheckTimeout(t *testing.T) {
	t.Parallel()

	h := NewHandler(WithCheckTimeout(20 * time.Millisecond))
	h.AddCheck("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	report := h.Evaluate(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestHandler_GinEndpoints(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.AddCheck("secrets", func(context.Context) error { return errors.New("down") })

	engine := gin.New()
	engine.GET("/healthz", h.LivenessHandler())
	engine.GET("/readyz", h.ReadinessHandler())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestHandler_ConcurrentAddAndEvaluate(t *testing.T) {
	t.Parallel()

	h := NewHandler()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.AddCheck("store", func(context.Context) error { return nil })
			_ = h.Evaluate(context.Background())
		}()
	}
	wg.Wait()
}
