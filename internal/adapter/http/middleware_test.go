package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	adapter "github.com/neomorfeo/budgetiq/internal/adapter/http"
	"github.com/neomorfeo/budgetiq/internal/logger"
)

func TestRequestLogger_CarriesActorAndRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(adapter.RequestLogger(zap.New(core)))
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handled")
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	for _, e := range entries {
		fields := e.ContextMap()
		if fields["tenant_id"] != "tenant-a" || fields["user_id"] != "user-1" || fields["request_id"] != "req-42" {
			t.Errorf("%s: fields = %v, want tenant, user and request id", e.Message, fields)
		}
	}

	done := entries[1].ContextMap()
	if done["status"] != int64(http.StatusTeapot) {
		t.Errorf("status = %v, want %d", done["status"], http.StatusTeapot)
	}
}
