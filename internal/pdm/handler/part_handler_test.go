package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/testutil"
)

func createPart(t *testing.T, env *testutil.TestEnv, token, code, name string) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": code,
		"name": name,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating part %s, got %d: %s", code, w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func freezeVersion(t *testing.T, env *testutil.TestEnv, token, partID, versionID string) {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST",
		"/api/v1/parts/"+partID+"/versions/"+versionID+"/freeze", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 freezing version, got %d: %s", w.Code, w.Body.String())
	}
}

func firstVersion(t *testing.T, data map[string]interface{}) map[string]interface{} {
	t.Helper()
	versions, ok := data["versions"].([]interface{})
	if !ok || len(versions) == 0 {
		t.Fatalf("Expected part payload to carry versions, got %v", data["versions"])
	}
	return versions[0].(map[string]interface{})
}

func TestPartCreateInitialVersion(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-1", "设计师一号", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-1", "审批人一号", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-100", "Bracket")
	v1 := firstVersion(t, part)
	if v1["version_label"] != "V1" {
		t.Errorf("Expected initial label V1, got %v", v1["version_label"])
	}
	if v1["status"] != "working" {
		t.Errorf("Expected initial status working, got %v", v1["status"])
	}
	if part["criticality"] != "normal" {
		t.Errorf("Expected default criticality normal, got %v", part["criticality"])
	}

	// 编码重复
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": "PN-100", "name": "Duplicate",
	}, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate code, got %d", w.Code)
	}

	// 非法枚举
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": "PN-101", "name": "Bad", "criticality": "extreme",
	}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid criticality, got %d", w.Code)
	}

	// 审批人不能创建物料
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": "PN-102", "name": "Nope",
	}, approver)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for approver creating part, got %d", w.Code)
	}
}

func TestPartUpdatePatchSemantics(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-2", "设计师", entity.RoleDesigner)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": "PN-200", "name": "Shaft", "material": "steel", "vendor": "acme",
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	part := testutil.ParseResponse(w)["data"].(map[string]interface{})
	partID := part["id"].(string)

	// 只改名称，其余字段保持
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/parts/"+partID, map[string]interface{}{
		"name": "Shaft v2",
	}, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if updated["name"] != "Shaft v2" {
		t.Errorf("Expected updated name, got %v", updated["name"])
	}
	if updated["material"] != "steel" || updated["vendor"] != "acme" {
		t.Errorf("Expected untouched fields to survive, got material=%v vendor=%v",
			updated["material"], updated["vendor"])
	}

	// 其他设计师无权编辑
	_, stranger := testutil.SeedTestUser(t, env.DB, "u-designer-3", "路人设计师", entity.RoleDesigner)
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/parts/"+partID, map[string]interface{}{
		"name": "Hijack",
	}, stranger)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner update, got %d", w.Code)
	}
}

func TestPartVersionSingleWorkingCopy(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-4", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-4", "审批人", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-300", "Gear")
	partID := part["id"].(string)
	v1 := firstVersion(t, part)
	v1ID := v1["id"].(string)

	// V1 还在工作态，不允许再开新版本
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts/"+partID+"/versions",
		map[string]interface{}{"change_notes": "too early"}, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 while working copy exists, got %d: %s", w.Code, w.Body.String())
	}

	// 设计师无冻结权限
	w = testutil.DoRequest(env.Router, "POST",
		"/api/v1/parts/"+partID+"/versions/"+v1ID+"/freeze", nil, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer freeze, got %d", w.Code)
	}

	freezeVersion(t, env, approver, partID, v1ID)

	// 冻结后可开 V2
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/"+partID+"/versions",
		map[string]interface{}{"change_notes": "next rev"}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for V2, got %d: %s", w.Code, w.Body.String())
	}
	v2 := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if v2["version_label"] != "V2" {
		t.Errorf("Expected label V2, got %v", v2["version_label"])
	}
	if v2["status"] != "working" {
		t.Errorf("Expected V2 working, got %v", v2["status"])
	}

	// 已冻结版本拒绝再次冻结
	w = testutil.DoRequest(env.Router, "POST",
		"/api/v1/parts/"+partID+"/versions/"+v1ID+"/freeze", nil, approver)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for re-freeze, got %d: %s", w.Code, w.Body.String())
	}

	// 版本列表最新在前
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/"+partID+"/versions", nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(items))
	}
	if items[0].(map[string]interface{})["version_label"] != "V2" {
		t.Errorf("Expected most-recent-first ordering")
	}
}

func TestPartRollback(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-5", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-5", "审批人", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-400", "Plate")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)
	freezeVersion(t, env, approver, partID, v1ID)

	// V2 工作中，回滚被拒
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts/"+partID+"/versions",
		map[string]interface{}{}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for V2, got %d", w.Code)
	}
	v2ID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, "POST",
		"/api/v1/parts/"+partID+"/versions/"+v1ID+"/rollback", nil, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 rollback with working latest, got %d: %s", w.Code, w.Body.String())
	}

	freezeVersion(t, env, approver, partID, v2ID)

	// 回滚生成新的工作版本 V3，历史保持完整
	w = testutil.DoRequest(env.Router, "POST",
		"/api/v1/parts/"+partID+"/versions/"+v1ID+"/rollback", nil, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for rollback, got %d: %s", w.Code, w.Body.String())
	}
	restored := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if restored["version_label"] != "V3" {
		t.Errorf("Expected next sequential label V3, got %v", restored["version_label"])
	}
	if restored["status"] != "working" {
		t.Errorf("Expected restored version working, got %v", restored["status"])
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/"+partID+"/versions", nil, designer)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 3 {
		t.Errorf("Expected 3 versions after rollback, got %d", len(items))
	}
}

func TestPartDeleteReferentialIntegrity(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-6", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-6", "审批人", entity.RoleApprover)
	_, admin := testutil.SeedTestUser(t, env.DB, "u-admin-6", "管理员", entity.RoleAdmin)

	part := createPart(t, env, designer, "PN-500", "Bolt")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)
	freezeVersion(t, env, approver, partID, v1ID)

	// 组装引用冻结版本
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-1", "name": "Frame", "part_version_ids": []string{v1ID},
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating assembly, got %d: %s", w.Code, w.Body.String())
	}

	// 非管理员不能删除
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/parts/"+partID, nil, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer delete, got %d", w.Code)
	}

	// 被引用的零件拒绝删除，错误信息点名装配体
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/parts/"+partID, nil, admin)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for referenced part delete, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if msg, _ := resp["message"].(string); !strings.Contains(msg, "ASM-1") {
		t.Errorf("Expected conflict message to name ASM-1, got %q", msg)
	}

	// 被引用版本也不能作为回滚目标
	w = testutil.DoRequest(env.Router, "POST",
		"/api/v1/parts/"+partID+"/versions/"+v1ID+"/rollback", nil, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 rollback of referenced version, got %d", w.Code)
	}

	// 未被引用的零件可删除
	other := createPart(t, env, designer, "PN-501", "Washer")
	otherID := other["id"].(string)
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/parts/"+otherID, nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 deleting unreferenced part, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/"+otherID, nil, admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestPartBulkDeleteFailClosed(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-7", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-7", "审批人", entity.RoleApprover)
	_, admin := testutil.SeedTestUser(t, env.DB, "u-admin-7", "管理员", entity.RoleAdmin)

	referenced := createPart(t, env, designer, "PN-600", "Axle")
	referencedID := referenced["id"].(string)
	v1ID := firstVersion(t, referenced)["id"].(string)
	freezeVersion(t, env, approver, referencedID, v1ID)

	free := createPart(t, env, designer, "PN-601", "Spacer")
	freeID := free["id"].(string)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-2", "name": "Wheel", "part_version_ids": []string{v1ID},
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating assembly, got %d: %s", w.Code, w.Body.String())
	}

	// 一个被引用，整批拒绝
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/bulk-delete", map[string]interface{}{
		"ids": []string{referencedID, freeID},
	}, admin)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for fail-closed bulk delete, got %d: %s", w.Code, w.Body.String())
	}

	// 未被引用的那个也必须原样保留
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/"+freeID, nil, admin)
	if w.Code != http.StatusOK {
		t.Errorf("Expected unreferenced part untouched after rejected batch, got %d", w.Code)
	}

	// 空批次
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/bulk-delete", map[string]interface{}{
		"ids": []string{},
	}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty batch, got %d", w.Code)
	}
}

func TestPartListFiltersAndAggregates(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-8", "设计师", entity.RoleDesigner)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": "PN-700", "name": "Housing", "criticality": "high", "material": "aluminum",
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts", map[string]interface{}{
		"code": "PN-701", "name": "Cover", "criticality": "low",
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}

	// criticality 过滤
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts?criticality=high", nil, designer)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 high-criticality part, got %d", len(items))
	}
	row := items[0].(map[string]interface{})
	if row["code"] != "PN-700" {
		t.Errorf("Expected PN-700, got %v", row["code"])
	}
	if row["version_count"] != float64(1) || row["latest_version_label"] != "V1" {
		t.Errorf("Expected version aggregates on list row, got count=%v label=%v",
			row["version_count"], row["latest_version_label"])
	}

	// 关键字搜索命中材料字段
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts?q=aluminum", nil, designer)
	items = testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("Expected keyword match on material, got %d rows", len(items))
	}
}

func TestPartExportCSV(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-8", "设计师八号", entity.RoleDesigner)

	createPart(t, env, designer, "PN-800", "Gear")
	createPart(t, env, designer, "PN-801", "Shaft")

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/parts/export?format=csv", nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv content type, got %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "编码") {
		t.Errorf("Expected CSV header row, got: %s", body)
	}
	for _, code := range []string{"PN-800", "PN-801"} {
		if !strings.Contains(body, code) {
			t.Errorf("Expected CSV to contain %s", code)
		}
	}

	// 过滤条件同样作用于导出
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/export?format=csv&q=Gear", nil, designer)
	body = w.Body.String()
	if !strings.Contains(body, "PN-800") || strings.Contains(body, "PN-801") {
		t.Errorf("Expected filtered CSV with only PN-800, got: %s", body)
	}
}
