package handler_test

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/testutil"
)

// frozenPartVersion 造一个零件并冻结其 V1，返回 (partID, versionID)
func frozenPartVersion(t *testing.T, env *testutil.TestEnv, designer, approver, code string) (string, string) {
	t.Helper()
	part := createPart(t, env, designer, code, "Part "+code)
	partID := part["id"].(string)
	versionID := firstVersion(t, part)["id"].(string)
	freezeVersion(t, env, approver, partID, versionID)
	return partID, versionID
}

func TestAssemblyRequiresFrozenPartVersions(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-10", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-10", "审批人", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-800", "Rotor")
	workingVersionID := firstVersion(t, part)["id"].(string)

	// 引用工作态版本被拒
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-10", "name": "Motor", "part_version_ids": []string{workingVersionID},
	}, designer)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for working part version, got %d: %s", w.Code, w.Body.String())
	}

	// 失败的创建不留残骸
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/assemblies", nil, designer)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 0 {
		t.Errorf("Expected no assembly persisted after rejected create, got %d", len(items))
	}

	// 空组成
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-11", "name": "Empty", "part_version_ids": []string{},
	}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty composition, got %d", w.Code)
	}

	// 不存在的版本ID
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-12", "name": "Ghost", "part_version_ids": []string{"no-such-version"},
	}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown part version, got %d", w.Code)
	}

	// 冻结后创建成功，首版本 V1 带组成边
	freezeVersion(t, env, approver, part["id"].(string), workingVersionID)
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-10", "name": "Motor", "part_version_ids": []string{workingVersionID},
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	asm := testutil.ParseResponse(w)["data"].(map[string]interface{})
	asmID := asm["id"].(string)
	v1 := firstVersion(t, asm)
	if v1["version_label"] != "V1" || v1["status"] != "working" {
		t.Errorf("Expected working V1, got label=%v status=%v", v1["version_label"], v1["status"])
	}

	// BOM 展开到零件与版本
	w = testutil.DoRequest(env.Router, "GET",
		"/api/v1/assemblies/"+asmID+"/versions/"+v1["id"].(string)+"/bom", nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for BOM, got %d: %s", w.Code, w.Body.String())
	}
	lines := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("Expected 1 BOM line, got %d", len(lines))
	}
	line := lines[0].(map[string]interface{})
	if line["part_code"] != "PN-800" || line["version_label"] != "V1" || line["status"] != "frozen" {
		t.Errorf("Unexpected BOM line: %v", line)
	}
}

func TestAssemblyVersionAtomicity(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-11", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-11", "审批人", entity.RoleApprover)

	_, pv1 := frozenPartVersion(t, env, designer, approver, "PN-810")
	_, pv2 := frozenPartVersion(t, env, designer, approver, "PN-811")

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
		"code": "ASM-20", "name": "Pump", "part_version_ids": []string{pv1},
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	asm := testutil.ParseResponse(w)["data"].(map[string]interface{})
	asmID := asm["id"].(string)
	asmV1 := firstVersion(t, asm)["id"].(string)

	// V1 还在工作态，不能开新版本
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies/"+asmID+"/versions",
		map[string]interface{}{"part_version_ids": []string{pv1, pv2}}, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 while working copy exists, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "POST",
		"/api/v1/assemblies/"+asmID+"/versions/"+asmV1+"/freeze", nil, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 freezing assembly V1, got %d: %s", w.Code, w.Body.String())
	}

	// 部分版本ID无效时整个版本不落库
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies/"+asmID+"/versions",
		map[string]interface{}{"part_version_ids": []string{pv2, "no-such-version"}}, designer)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for partially invalid composition, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/assemblies/"+asmID+"/versions", nil, designer)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("Expected only V1 after failed version create, got %d versions", len(items))
	}

	// 合法组成则版本与组成边一起生效
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies/"+asmID+"/versions",
		map[string]interface{}{"part_version_ids": []string{pv1, pv2}, "change_notes": "add PN-811"}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for V2, got %d: %s", w.Code, w.Body.String())
	}
	v2 := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if v2["version_label"] != "V2" {
		t.Errorf("Expected V2, got %v", v2["version_label"])
	}
	w = testutil.DoRequest(env.Router, "GET",
		"/api/v1/assemblies/"+asmID+"/versions/"+v2["id"].(string)+"/bom", nil, designer)
	lines := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(lines) != 2 {
		t.Errorf("Expected 2 BOM lines for V2, got %d", len(lines))
	}
}

func TestPartImpactAcrossAssemblies(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-12", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-12", "审批人", entity.RoleApprover)

	partID, pv1 := frozenPartVersion(t, env, designer, approver, "PN-820")

	for _, code := range []string{"ASM-30", "ASM-31"} {
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/assemblies", map[string]interface{}{
			"code": code, "name": "Uses " + code, "part_version_ids": []string{pv1},
		}, designer)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201 for %s, got %d: %s", code, w.Code, w.Body.String())
		}
	}

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/parts/"+partID+"/impact", nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	lines := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(lines) != 2 {
		t.Fatalf("Expected 2 impact lines, got %d", len(lines))
	}
	first := lines[0].(map[string]interface{})
	if first["assembly_code"] != "ASM-30" || first["part_version_label"] != "V1" {
		t.Errorf("Unexpected impact line: %v", first)
	}
}
