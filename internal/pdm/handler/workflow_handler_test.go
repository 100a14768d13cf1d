package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/testutil"
)

func TestEditRequestGrantFlow(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, owner := testutil.SeedTestUser(t, env.DB, "u-owner-20", "所有者", entity.RoleDesigner)
	_, colleague := testutil.SeedTestUser(t, env.DB, "u-colleague-20", "同事", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-20", "审批人", entity.RoleApprover)

	part := createPart(t, env, owner, "PN-900", "Valve")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)
	freezeVersion(t, env, approver, partID, v1ID)

	// 未获授权的同事不能开新版本
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/parts/"+partID+"/versions",
		map[string]interface{}{}, colleague)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 before grant, got %d: %s", w.Code, w.Body.String())
	}

	// 所有者申请自己的零件没有意义
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests", map[string]interface{}{
		"part_id": partID, "reason": "mine already",
	}, owner)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for owner self-request, got %d", w.Code)
	}

	// 同事提交编辑请求
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests", map[string]interface{}{
		"part_id": partID, "reason": "need to revise tolerances",
	}, colleague)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	req := testutil.ParseResponse(w)["data"].(map[string]interface{})
	reqID := req["id"].(string)
	if req["status"] != "pending" {
		t.Errorf("Expected pending, got %v", req["status"])
	}

	// 设计师无权决策
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": true}, colleague)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer deciding, got %d", w.Code)
	}

	// 审批人通过，授权生效
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": true}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decided := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if decided["status"] != "approved" {
		t.Errorf("Expected approved, got %v", decided["status"])
	}

	// 终态请求不可重复决策
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": false}, approver)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for re-decision, got %d", w.Code)
	}

	// 授权后同事可以开新版本
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/"+partID+"/versions",
		map[string]interface{}{"change_notes": "revised tolerances"}, colleague)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 after grant, got %d: %s", w.Code, w.Body.String())
	}
	v2 := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if v2["version_label"] != "V2" {
		t.Errorf("Expected V2, got %v", v2["version_label"])
	}

	// 所有者收到了请求通知
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/notifications", nil, owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	notes := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(notes) == 0 {
		t.Errorf("Expected owner to be notified of edit request")
	}
}

func TestEditRequestRejectNoSideEffect(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, owner := testutil.SeedTestUser(t, env.DB, "u-owner-21", "所有者", entity.RoleDesigner)
	_, colleague := testutil.SeedTestUser(t, env.DB, "u-colleague-21", "同事", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-21", "审批人", entity.RoleApprover)

	part := createPart(t, env, owner, "PN-910", "Seal")
	partID := part["id"].(string)
	freezeVersion(t, env, approver, partID, firstVersion(t, part)["id"].(string))

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests", map[string]interface{}{
		"part_id": partID,
	}, colleague)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	reqID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/edit-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": false}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if status := testutil.ParseResponse(w)["data"].(map[string]interface{})["status"]; status != "rejected" {
		t.Errorf("Expected rejected, got %v", status)
	}

	// 拒绝不产生任何授权
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/parts/"+partID+"/versions",
		map[string]interface{}{}, colleague)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 after rejection, got %d", w.Code)
	}
}

func TestReleaseRequestFreezesOnApproval(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-22", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-22", "审批人", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-920", "Cam")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests", map[string]interface{}{
		"item_type": "part", "item_id": partID, "item_version_id": v1ID, "reason": "ready for release",
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	reqID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	// 请求人自己不能放行
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": true}, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer deciding, got %d", w.Code)
	}

	// 审批通过即冻结目标版本
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": true}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/parts/"+partID+"/versions", nil, designer)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	v1 := items[0].(map[string]interface{})
	if v1["status"] != "frozen" {
		t.Errorf("Expected version frozen after approval, got %v", v1["status"])
	}
	if v1["frozen_by"] != "u-approver-22" {
		t.Errorf("Expected frozen_by approver, got %v", v1["frozen_by"])
	}
}

func TestReleaseRequestAgainstFrozenTarget(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-23", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-23", "审批人", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-930", "Pin")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)

	// 两个请求指向同一版本
	var reqIDs []string
	for i := 0; i < 2; i++ {
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests", map[string]interface{}{
			"item_type": "part", "item_id": partID, "item_version_id": v1ID,
		}, designer)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		reqIDs = append(reqIDs, testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string))
	}

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests/"+reqIDs[0]+"/decide",
		map[string]interface{}{"approve": true}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for first approval, got %d: %s", w.Code, w.Body.String())
	}

	// 目标已冻结，第二个请求无法通过
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests/"+reqIDs[1]+"/decide",
		map[string]interface{}{"approve": true}, approver)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 approving against frozen target, got %d: %s", w.Code, w.Body.String())
	}

	// 冲突的请求保持 pending，可被拒绝关闭
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests/"+reqIDs[1]+"/decide",
		map[string]interface{}{"approve": false}, approver)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 rejecting stale request, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReleaseRequestValidation(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-24", "设计师", entity.RoleDesigner)

	part := createPart(t, env, designer, "PN-940", "Nut")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)

	// item_type 非法
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests", map[string]interface{}{
		"item_type": "drawing", "item_id": partID, "item_version_id": v1ID,
	}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad item_type, got %d", w.Code)
	}

	// 版本不属于该物料
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests", map[string]interface{}{
		"item_type": "part", "item_id": partID, "item_version_id": "no-such-version",
	}, designer)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown version, got %d", w.Code)
	}
}

func TestReleaseApprovalNotifiesOwner(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, owner := testutil.SeedTestUser(t, env.DB, "u-owner-25", "所有者", entity.RoleDesigner)
	_, colleague := testutil.SeedTestUser(t, env.DB, "u-colleague-25", "同事", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-25", "审批人", entity.RoleApprover)

	part := createPart(t, env, owner, "PN-950", "Rotor")
	partID := part["id"].(string)
	v1ID := firstVersion(t, part)["id"].(string)

	// 同事代为申请发布，冻结的是所有者名下的零件
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests", map[string]interface{}{
		"item_type": "part", "item_id": partID, "item_version_id": v1ID,
	}, colleague)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	reqID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/release-requests/"+reqID+"/decide",
		map[string]interface{}{"approve": true}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 请求人收到决策通知
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/notifications", nil, colleague)
	notes := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(notes) == 0 {
		t.Errorf("Expected requester to be notified of decision")
	}

	// 所有者也收到冻结通知
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/notifications", nil, owner)
	notes = testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(notes) == 0 {
		t.Fatalf("Expected owner to be notified of freeze")
	}
	note := notes[0].(map[string]interface{})
	if content, _ := note["content"].(string); !strings.Contains(content, "PN-950") {
		t.Errorf("Expected owner notification to name the part, got %v", note["content"])
	}
}
