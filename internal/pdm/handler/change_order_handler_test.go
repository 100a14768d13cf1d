package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/testutil"
)

func createChangeOrder(t *testing.T, env *testutil.TestEnv, token string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating change order, got %d: %s", w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func TestChangeOrderLifecycle(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-40", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-40", "审批人", entity.RoleApprover)

	part := createPart(t, env, designer, "PN-600", "Housing")
	partID := part["id"].(string)

	eco := createChangeOrder(t, env, designer, map[string]interface{}{
		"title":  "外壳壁厚调整",
		"reason": "注塑缩痕",
		"affected_items": []map[string]interface{}{
			{"item_type": "part", "item_id": partID, "note": "壁厚 2.0 → 2.4"},
		},
	})
	ecoID := eco["id"].(string)
	if eco["status"] != "draft" {
		t.Errorf("Expected draft, got %v", eco["status"])
	}
	if eco["priority"] != "medium" {
		t.Errorf("Expected default priority medium, got %v", eco["priority"])
	}
	if number, _ := eco["number"].(string); !strings.HasPrefix(number, "ECO-") {
		t.Errorf("Expected ECO- number, got %v", eco["number"])
	}
	if items := eco["affected_items"].([]interface{}); len(items) != 1 {
		t.Errorf("Expected 1 affected item, got %d", len(items))
	}

	// 审批人不能发起变更单
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders",
		map[string]interface{}{"title": "nope"}, approver)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for approver creating change order, got %d", w.Code)
	}

	// 评审只能从 submitted 开始
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/review", nil, approver)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 reviewing a draft, got %d", w.Code)
	}

	// 提交进入审批
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/submit", nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if status := testutil.ParseResponse(w)["data"].(map[string]interface{})["status"]; status != "submitted" {
		t.Errorf("Expected submitted, got %v", status)
	}

	// 审批人收到待评审通知
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/notifications", nil, approver)
	notes := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(notes) == 0 {
		t.Errorf("Expected approver to be notified of submission")
	}

	// 重复提交与提交后编辑都被拒绝
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/submit", nil, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for re-submit, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/change-orders/"+ecoID,
		map[string]interface{}{"title": "too late"}, designer)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 editing after submit, got %d", w.Code)
	}

	// 设计师无权领取评审
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/review", nil, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer reviewing, got %d", w.Code)
	}

	// 审批人领取评审
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/review", nil, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	reviewed := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if reviewed["status"] != "in_review" {
		t.Errorf("Expected in_review, got %v", reviewed["status"])
	}
	if reviewed["reviewer_id"] != "u-approver-40" {
		t.Errorf("Expected reviewer recorded, got %v", reviewed["reviewer_id"])
	}

	// 通过
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/decide",
		map[string]interface{}{"approve": true, "comment": "方案可行"}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decided := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if decided["status"] != "approved" {
		t.Errorf("Expected approved, got %v", decided["status"])
	}
	if decided["decided_at"] == nil {
		t.Errorf("Expected decided_at to be set")
	}

	// 实施并关闭
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/implement",
		map[string]interface{}{"notes": "模具已修改，首件检验通过"}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	done := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if done["status"] != "implemented" {
		t.Errorf("Expected implemented, got %v", done["status"])
	}
	if done["implementation_notes"] != "模具已修改，首件检验通过" {
		t.Errorf("Expected implementation notes recorded, got %v", done["implementation_notes"])
	}

	// 终态不可再实施
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/implement",
		map[string]interface{}{}, approver)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 re-implementing, got %d", w.Code)
	}

	// 发起人收到了决策与实施通知
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/notifications", nil, designer)
	notes = testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(notes) < 2 {
		t.Errorf("Expected requester notifications for decision and implementation, got %d", len(notes))
	}
}

func TestChangeOrderRejectIsTerminal(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-41", "设计师", entity.RoleDesigner)
	_, approver := testutil.SeedTestUser(t, env.DB, "u-approver-41", "审批人", entity.RoleApprover)

	eco := createChangeOrder(t, env, designer, map[string]interface{}{
		"title": "更换供应商", "priority": "high",
	})
	ecoID := eco["id"].(string)
	if eco["priority"] != "high" {
		t.Errorf("Expected high, got %v", eco["priority"])
	}

	for _, step := range []string{"submit", "review"} {
		token := designer
		if step == "review" {
			token = approver
		}
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/"+step, nil, token)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200 at %s, got %d: %s", step, w.Code, w.Body.String())
		}
	}

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/decide",
		map[string]interface{}{"approve": false, "comment": "影响交期"}, approver)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if status := testutil.ParseResponse(w)["data"].(map[string]interface{})["status"]; status != "rejected" {
		t.Errorf("Expected rejected, got %v", status)
	}

	// 被拒绝的变更单不能实施
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders/"+ecoID+"/implement",
		map[string]interface{}{}, approver)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 implementing a rejected order, got %d", w.Code)
	}
}

func TestChangeOrderValidationAndDraftEdit(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-42", "设计师", entity.RoleDesigner)
	_, other := testutil.SeedTestUser(t, env.DB, "u-designer-43", "另一位设计师", entity.RoleDesigner)

	// 非法优先级
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders",
		map[string]interface{}{"title": "bad", "priority": "urgent"}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid priority, got %d", w.Code)
	}

	// 受影响物料必须真实存在
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/change-orders", map[string]interface{}{
		"title": "ghost",
		"affected_items": []map[string]interface{}{
			{"item_type": "part", "item_id": "no-such-part"},
		},
	}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown affected part, got %d", w.Code)
	}

	// 校验失败不留残留
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/change-orders", nil, designer)
	if items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{}); len(items) != 0 {
		t.Errorf("Expected no residue after failed creation, got %d", len(items))
	}

	eco := createChangeOrder(t, env, designer, map[string]interface{}{
		"title": "初稿", "description": "first pass",
	})
	ecoID := eco["id"].(string)

	// 草稿只能由发起人或管理员编辑
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/change-orders/"+ecoID,
		map[string]interface{}{"title": "hijack"}, other)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-requester edit, got %d", w.Code)
	}

	// patch 语义：未提交的字段保持原值
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/change-orders/"+ecoID,
		map[string]interface{}{"priority": "critical"}, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if updated["priority"] != "critical" || updated["description"] != "first pass" {
		t.Errorf("Expected patch semantics, got priority=%v description=%v",
			updated["priority"], updated["description"])
	}
}

func TestChangeOrderListFiltersAndDelete(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-44", "设计师", entity.RoleDesigner)
	_, admin := testutil.SeedTestUser(t, env.DB, "u-admin-44", "管理员", entity.RoleAdmin)

	createChangeOrder(t, env, designer, map[string]interface{}{"title": "齿轮材料替换", "priority": "high"})
	eco := createChangeOrder(t, env, designer, map[string]interface{}{"title": "轴承润滑脂更换", "priority": "low"})
	ecoID := eco["id"].(string)

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/change-orders?priority=high", nil, designer)
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("Expected 1 high-priority order, got %d", len(items))
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/change-orders?q=轴承", nil, designer)
	items = testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Errorf("Expected keyword match on title, got %d", len(items))
	}

	// 只有管理员可以删除
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/change-orders/"+ecoID, nil, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer delete, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/change-orders/"+ecoID, nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/change-orders/"+ecoID, nil, admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}
