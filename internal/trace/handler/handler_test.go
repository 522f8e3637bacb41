package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/edierwan/serapod2u-prod-sub000/internal/config"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/testutil"
	"go.uber.org/zap"
)

// setupTraceTest wires the full stack over an isolated schema: no redis,
// no artifact store, database arbitration only.
func setupTraceTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()

	cfg := config.TraceConfig{
		DefaultBufferPercent: 0,
		DefaultUnitsPerCase:  24,
		SealTolerance:        0,
		SessionTTL:           time.Hour,
		JanitorInterval:      time.Minute,
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, nil, nil, cfg, zap.NewNop())
	handlers := NewHandlers(services, zap.NewNop())

	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/batches", handlers.Batch.Generate)
	api.GET("/batches/:id", handlers.Batch.Get)
	api.POST("/scans/manufacturer", handlers.Scan.ScanUnique)
	api.GET("/codes/:code", handlers.Scan.Lookup)
	api.GET("/codes/:code/history", handlers.Scan.History)
	api.POST("/links", handlers.Link.Link)
	api.POST("/receiving/scans", handlers.Receive.Receive)
	api.POST("/sessions", handlers.Shipment.Open)
	api.GET("/sessions/:id", handlers.Shipment.Get)
	api.POST("/sessions/:id/scans", handlers.Shipment.Scan)
	api.POST("/sessions/:id/close", handlers.Shipment.Close)
	api.POST("/sessions/:id/validate", handlers.Shipment.Validate)
	api.GET("/reports", handlers.Report.List)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

// generateBatch runs the generation endpoint for a fresh approved order
// and returns the batch ID. With zero buffer the unit count equals the
// ordered quantity.
func generateBatch(t *testing.T, env *testutil.TestEnv, token string, quantity int) string {
	t.Helper()
	order := testutil.SeedApprovedOrder(t, env.DB, "", "Test Pod 30ml", quantity)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/batches",
		map[string]interface{}{"order_id": order.ID}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	return data["batch_id"].(string)
}

// batchCodes loads the generated codes of a batch from the database,
// the way a printing line would receive them.
func batchCodes(t *testing.T, env *testutil.TestEnv, batchID string) ([]entity.MasterCode, []entity.UniqueCode) {
	t.Helper()
	var masters []entity.MasterCode
	if err := env.DB.Where("batch_id = ?", batchID).Order("case_number ASC").Find(&masters).Error; err != nil {
		t.Fatalf("Failed to load master codes: %v", err)
	}
	var units []entity.UniqueCode
	if err := env.DB.Where("batch_id = ?", batchID).Order("code ASC").Find(&units).Error; err != nil {
		t.Fatalf("Failed to load unique codes: %v", err)
	}
	return masters, units
}

// linkCase links the given unit codes into a case via the endpoint.
func linkCase(t *testing.T, env *testutil.TestEnv, token, masterCode string, unitCodes []string) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/links",
		map[string]interface{}{"master_code": masterCode, "unique_codes": unitCodes}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 linking %d units, got %d: %s", len(unitCodes), w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

// receiveCase checks a sealed case into the warehouse via the endpoint.
func receiveCase(t *testing.T, env *testutil.TestEnv, token, masterCode string) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/receiving/scans",
		map[string]interface{}{"master_code": masterCode}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 receiving case, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})
}

func unitCodeStrings(units []entity.UniqueCode) []string {
	codes := make([]string, len(units))
	for i, u := range units {
		codes[i] = u.Code
	}
	return codes
}
