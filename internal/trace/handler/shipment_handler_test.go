package handler

import (
	"net/http"
	"testing"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/testutil"
)

// prepareReceivedCase walks one 24-unit case through generation, linking
// and receiving so shipment tests start from received stock.
func prepareReceivedCase(t *testing.T, env *testutil.TestEnv, mfgToken, whToken string) (string, []string) {
	t.Helper()
	batchID := generateBatch(t, env, mfgToken, 24)
	masters, units := batchCodes(t, env, batchID)
	linkCase(t, env, mfgToken, masters[0].Code, unitCodeStrings(units))
	receiveCase(t, env, whToken, masters[0].Code)
	return masters[0].Code, unitCodeStrings(units)
}

func openSession(t *testing.T, env *testutil.TestEnv, token, destOrgID string, expected int) string {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions",
		map[string]interface{}{
			"destination_org_id": destOrgID,
			"expected_quantity":  expected,
		}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 opening session, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})["id"].(string)
}

func TestShipmentSessionFullFlow(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, _ := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionID := openSession(t, env, whToken, dist.ID, 24)

	// One master scan claims the whole case.
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if int(data["unit_count"].(float64)) != 24 {
		t.Errorf("unit_count = %v, want 24", data["unit_count"])
	}

	// Quantities align, so the close needs no override.
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200 closing, got %d: %s", w2.Code, w2.Body.String())
	}
	resp2 := testutil.ParseResponse(w2)
	report := resp2["data"].(map[string]interface{})["report"].(map[string]interface{})
	if report["is_matched"] != true {
		t.Errorf("Report is_matched = %v, want true", report["is_matched"])
	}

	var master entity.MasterCode
	env.DB.First(&master, "code = ?", masterCode)
	if master.Status != entity.MasterStatusShipped {
		t.Errorf("Master status = %s, want %s", master.Status, entity.MasterStatusShipped)
	}
	var shipped int64
	env.DB.Model(&entity.UniqueCode{}).
		Where("master_id = ? AND status = ?", master.ID, entity.UniqueStatusShipped).
		Count(&shipped)
	if shipped != 24 {
		t.Errorf("%d units shipped, want 24", shipped)
	}

	// The shipment scan trail was written at scan time with the session
	// reference attached.
	var shipScans int64
	env.DB.Model(&entity.ScanEvent{}).
		Where("code = ? AND scan_type = ? AND session_id = ?", masterCode, entity.ScanTypeShipment, sessionID).
		Count(&shipScans)
	if shipScans != 1 {
		t.Errorf("%d shipment scan events for the case, want 1", shipScans)
	}

	// Destination acknowledgment moves units to validated.
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/validate",
		nil, testutil.GenerateTestToken("test-user-dist", "Receiver", dist.ID, entity.OrgTypeDistributor))
	if w3.Code != http.StatusOK {
		t.Fatalf("Expected 200 validating, got %d: %s", w3.Code, w3.Body.String())
	}
	var validated int64
	env.DB.Model(&entity.UniqueCode{}).
		Where("master_id = ? AND status = ?", master.ID, entity.UniqueStatusValidated).
		Count(&validated)
	if validated != 24 {
		t.Errorf("%d units validated, want 24", validated)
	}
}

func TestShipmentSessionExclusivity(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, _ := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionA := openSession(t, env, whToken, dist.ID, 0)
	sessionB := openSession(t, env, whToken, dist.ID, 0)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionA+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 in session A, got %d: %s", w.Code, w.Body.String())
	}

	// The other session cannot take the same case.
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionB+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 in session B, got %d: %s", w2.Code, w2.Body.String())
	}
	resp := testutil.ParseResponse(w2)
	if int(resp["code"].(float64)) != CodeAlreadyClaimed {
		t.Errorf("Expected app code %d, got %v", CodeAlreadyClaimed, resp["code"])
	}

	// Re-scanning inside the owning session is a harmless replay.
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionA+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w3.Code != http.StatusOK {
		t.Fatalf("Expected 200 on replay, got %d: %s", w3.Code, w3.Body.String())
	}
	resp3 := testutil.ParseResponse(w3)
	if resp3["data"].(map[string]interface{})["already_in_session"] != true {
		t.Error("Replay not reported as already_in_session")
	}
}

func TestShipmentCaseScanBlocksLooseMemberScan(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, unitCodes := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionA := openSession(t, env, whToken, dist.ID, 0)
	sessionB := openSession(t, env, whToken, dist.ID, 0)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionA+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 claiming case, got %d: %s", w.Code, w.Body.String())
	}

	// A unit inside the claimed case cannot ship loose in another session.
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionB+"/scans",
		map[string]interface{}{"code": unitCodes[0]}, whToken)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for claimed member unit, got %d: %s", w2.Code, w2.Body.String())
	}
	resp := testutil.ParseResponse(w2)
	if int(resp["code"].(float64)) != CodeAlreadyClaimed {
		t.Errorf("Expected app code %d, got %v", CodeAlreadyClaimed, resp["code"])
	}

	// Inside the owning session the unit already rides with its case.
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionA+"/scans",
		map[string]interface{}{"code": unitCodes[0]}, whToken)
	if w3.Code != http.StatusOK {
		t.Fatalf("Expected 200 in owning session, got %d: %s", w3.Code, w3.Body.String())
	}
	resp3 := testutil.ParseResponse(w3)
	if resp3["data"].(map[string]interface{})["already_in_session"] != true {
		t.Error("Member unit not reported as already_in_session")
	}
}

func TestShipmentLooseMemberScanBlocksCaseScan(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, unitCodes := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionA := openSession(t, env, whToken, dist.ID, 0)
	sessionB := openSession(t, env, whToken, dist.ID, 0)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionA+"/scans",
		map[string]interface{}{"code": unitCodes[0]}, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 claiming loose unit, got %d: %s", w.Code, w.Body.String())
	}

	// A case with a member counted loose cannot be claimed whole.
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionB+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 claiming case, got %d: %s", w2.Code, w2.Body.String())
	}
	resp := testutil.ParseResponse(w2)
	if int(resp["code"].(float64)) != CodeAlreadyClaimed {
		t.Errorf("Expected app code %d, got %v", CodeAlreadyClaimed, resp["code"])
	}

	// The rejected claim leaves nothing behind in session B.
	var leftover int64
	env.DB.Model(&entity.SessionScan{}).Where("session_id = ?", sessionB).Count(&leftover)
	if leftover != 0 {
		t.Errorf("%d claim rows left in the losing session, want 0", leftover)
	}
}

func TestShipmentScanShippedCode(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, unitCodes := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionID := openSession(t, env, whToken, dist.ID, 0)
	testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)

	// Shipped codes answer with the dedicated conflict, not a generic one.
	later := openSession(t, env, whToken, dist.ID, 0)
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+later+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for shipped case, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["code"].(float64)) != CodeAlreadyShipped {
		t.Errorf("Expected app code %d, got %v", CodeAlreadyShipped, resp["code"])
	}

	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+later+"/scans",
		map[string]interface{}{"code": unitCodes[0]}, whToken)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for shipped unit, got %d: %s", w2.Code, w2.Body.String())
	}
	resp2 := testutil.ParseResponse(w2)
	if int(resp2["code"].(float64)) != CodeAlreadyShipped {
		t.Errorf("Expected app code %d, got %v", CodeAlreadyShipped, resp2["code"])
	}
}

func TestShipmentCloseQuantityMismatch(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, _ := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionID := openSession(t, env, whToken, dist.ID, 27)

	testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)

	// 24 scanned against 27 expected: blocked without an override.
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 on mismatch, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["code"].(float64)) != CodeQuantityMismatch {
		t.Errorf("Expected app code %d, got %v", CodeQuantityMismatch, resp["code"])
	}

	// The approved close still records the discrepancy on the report.
	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{"approve_discrepancy": true, "notes": "3 units damaged at dock"}, whToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200 with override, got %d: %s", w2.Code, w2.Body.String())
	}
	resp2 := testutil.ParseResponse(w2)
	report := resp2["data"].(map[string]interface{})["report"].(map[string]interface{})
	if report["is_matched"] != false {
		t.Error("Overridden close reported as matched")
	}
	if int(report["discrepancy"].(float64)) != -3 {
		t.Errorf("discrepancy = %v, want -3", report["discrepancy"])
	}
	if report["override_approved"] != true {
		t.Error("override_approved not recorded")
	}
}

func TestShipmentScanRejectsUnreceivedCase(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	// Sealed but never received.
	batchID := generateBatch(t, env, mfgToken, 24)
	masters, units := batchCodes(t, env, batchID)
	linkCase(t, env, mfgToken, masters[0].Code, unitCodeStrings(units))

	sessionID := openSession(t, env, whToken, dist.ID, 0)
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masters[0].Code}, whToken)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for unreceived case, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["code"].(float64)) != CodeTransitionConflict {
		t.Errorf("Expected app code %d, got %v", CodeTransitionConflict, resp["code"])
	}
}

func TestShipmentLooseUnitScan(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	_, unitCodes := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionID := openSession(t, env, whToken, dist.ID, 0)

	// A received unit can ship loose, counting as one.
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": unitCodes[0]}, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["data"].(map[string]interface{})["unit_count"].(float64)) != 1 {
		t.Errorf("Loose unit count = %v, want 1", resp["data"].(map[string]interface{})["unit_count"])
	}

	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200 closing, got %d: %s", w2.Code, w2.Body.String())
	}

	var unit entity.UniqueCode
	env.DB.First(&unit, "code = ?", unitCodes[0])
	if unit.Status != entity.UniqueStatusShipped {
		t.Errorf("Loose unit status = %s, want %s", unit.Status, entity.UniqueStatusShipped)
	}
	// Its casemates stay received.
	var stillReceived int64
	env.DB.Model(&entity.UniqueCode{}).
		Where("status = ?", entity.UniqueStatusReceived).
		Count(&stillReceived)
	if stillReceived != 23 {
		t.Errorf("%d units still received, want 23", stillReceived)
	}
}

func TestShipmentCloseTwice(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, _ := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionID := openSession(t, env, whToken, dist.ID, 0)
	testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)
	if w2.Code != http.StatusConflict {
		t.Fatalf("Expected 409 on second close, got %d: %s", w2.Code, w2.Body.String())
	}
	resp := testutil.ParseResponse(w2)
	if int(resp["code"].(float64)) != CodeSessionClosed {
		t.Errorf("Expected app code %d, got %v", CodeSessionClosed, resp["code"])
	}

	// A closed session takes no further scans either.
	w3 := testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	if w3.Code != http.StatusConflict {
		t.Errorf("Expected 409 scanning into closed session, got %d", w3.Code)
	}
}

func TestReportsListFilters(t *testing.T) {
	env := setupTraceTest(t)
	mfg := testutil.SeedOrganization(t, env.DB, "Acme Manufacturing", entity.OrgTypeManufacturer)
	wh := testutil.SeedOrganization(t, env.DB, "Central Warehouse", entity.OrgTypeWarehouse)
	dist := testutil.SeedOrganization(t, env.DB, "North Distributor", entity.OrgTypeDistributor)
	mfgToken := testutil.ManufacturerToken(mfg.ID)
	whToken := testutil.WarehouseToken(wh.ID)

	masterCode, _ := prepareReceivedCase(t, env, mfgToken, whToken)
	sessionID := openSession(t, env, whToken, dist.ID, 24)
	testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/scans",
		map[string]interface{}{"code": masterCode}, whToken)
	testutil.DoRequest(env.Router, "POST", "/api/v1/sessions/"+sessionID+"/close",
		map[string]interface{}{}, whToken)

	// One receiving report from the case, one shipment report from the close.
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/reports", nil, whToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if int(resp["data"].(map[string]interface{})["total"].(float64)) != 2 {
		t.Errorf("Expected 2 reports, got %v", resp["data"].(map[string]interface{})["total"])
	}

	w2 := testutil.DoRequest(env.Router, "GET", "/api/v1/reports?type=shipment", nil, whToken)
	resp2 := testutil.ParseResponse(w2)
	data2 := resp2["data"].(map[string]interface{})
	if int(data2["total"].(float64)) != 1 {
		t.Fatalf("Expected 1 shipment report, got %v", data2["total"])
	}
	items := data2["items"].([]interface{})
	report := items[0].(map[string]interface{})
	if report["session_id"] != sessionID {
		t.Errorf("Shipment report session = %v, want %s", report["session_id"], sessionID)
	}
}
