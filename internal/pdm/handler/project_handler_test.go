package handler_test

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/testutil"
)

func TestProjectTaskLifecycle(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-30", "设计师", entity.RoleDesigner)
	assignee, _ := testutil.SeedTestUser(t, env.DB, "u-designer-31", "执行人", entity.RoleDesigner)
	_, admin := testutil.SeedTestUser(t, env.DB, "u-admin-30", "管理员", entity.RoleAdmin)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/projects", map[string]interface{}{
		"code": "PRJ-1", "name": "新产品导入", "description": "Q3 立项",
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	project := testutil.ParseResponse(w)["data"].(map[string]interface{})
	projectID := project["id"].(string)
	if project["status"] != "active" {
		t.Errorf("Expected default status active, got %v", project["status"])
	}

	// 指派任务并通知执行人
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/projects/"+projectID+"/tasks",
		map[string]interface{}{"title": "整理零件台账", "assignee_id": assignee.ID}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating task, got %d: %s", w.Code, w.Body.String())
	}
	task := testutil.ParseResponse(w)["data"].(map[string]interface{})
	taskID := task["id"].(string)
	if task["status"] != "todo" {
		t.Errorf("Expected default status todo, got %v", task["status"])
	}

	// 非法状态
	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/projects/"+projectID+"/tasks/"+taskID,
		map[string]interface{}{"status": "shipped"}, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid status, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/projects/"+projectID+"/tasks/"+taskID,
		map[string]interface{}{"status": "done"}, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if status := testutil.ParseResponse(w)["data"].(map[string]interface{})["status"]; status != "done" {
		t.Errorf("Expected done, got %v", status)
	}

	// 删除项目仅限管理员
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/projects/"+projectID, nil, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer delete, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "DELETE", "/api/v1/projects/"+projectID, nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/projects/"+projectID, nil, admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestGlobalSearch(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-32", "设计师", entity.RoleDesigner)

	createPart(t, env, designer, "PN-950", "Turbine Blade")
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/projects", map[string]interface{}{
		"code": "PRJ-2", "name": "Turbine Upgrade",
	}, designer)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/search?q=Turbine", nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if parts := data["parts"].([]interface{}); len(parts) != 1 {
		t.Errorf("Expected 1 part hit, got %d", len(parts))
	}
	if projects := data["projects"].([]interface{}); len(projects) != 1 {
		t.Errorf("Expected 1 project hit, got %d", len(projects))
	}

	// 空关键字
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/search?q=+", nil, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank query, got %d", w.Code)
	}
}

func TestActivityTrail(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-33", "设计师", entity.RoleDesigner)

	part := createPart(t, env, designer, "PN-960", "Lever")
	partID := part["id"].(string)

	w := testutil.DoRequest(env.Router, "PUT", "/api/v1/parts/"+partID,
		map[string]interface{}{"name": "Lever mk2"}, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/activity?entity_type=part&entity_id="+partID, nil, designer)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) < 2 {
		t.Errorf("Expected create+update activity entries, got %d", len(items))
	}

	// 缺参数
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/activity?entity_type=part", nil, designer)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing entity_id, got %d", w.Code)
	}
}

func TestUserRegistrationAdminOnly(t *testing.T) {
	env := testutil.SetupEnv(t)
	_, designer := testutil.SeedTestUser(t, env.DB, "u-designer-34", "设计师", entity.RoleDesigner)
	_, admin := testutil.SeedTestUser(t, env.DB, "u-admin-34", "管理员", entity.RoleAdmin)

	payload := map[string]interface{}{
		"username": "newbie", "password": "password123", "name": "新同事", "role": "designer",
	}
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/users", payload, designer)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for designer registering users, got %d", w.Code)
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/users", payload, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if created["username"] != "newbie" {
		t.Errorf("Expected username newbie, got %v", created["username"])
	}
	if _, leaked := created["password_hash"]; leaked {
		t.Errorf("Password hash must not appear in responses")
	}

	// 用户名冲突
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/users", payload, admin)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate username, got %d", w.Code)
	}

	// 弱口令
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/users", map[string]interface{}{
		"username": "weak", "password": "short", "name": "弱口令", "role": "designer",
	}, admin)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for short password, got %d", w.Code)
	}

	// 未认证访问
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/users", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}
