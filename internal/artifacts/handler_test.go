package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docalign-backend/internal/shared/auth"
	"docalign-backend/internal/shared/server/middleware"
)

func setupArtifactRouter(t *testing.T, o *staticOracle) (*gin.Engine, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := &Service{Repo: repo, Oracle: o}
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(middleware.Auth())
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return router, repo
}

func authorize(t *testing.T, req *http.Request, userID string) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := auth.SignJWT(auth.Claims{Sub: userID})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func postJSON(t *testing.T, router *gin.Engine, path, userID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	authorize(t, req, userID)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRegisterArtifactRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, _ := setupArtifactRouter(t, &staticOracle{})

	resp := postJSON(t, router, "/api/v1/artifacts", "user-1", map[string]string{
		"name":          "payment handler",
		"artifact_type": "file",
		"location":      "https://example.com/payment.go",
		"version":       "v2",
	})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var artifact Artifact
	if err := json.Unmarshal(resp.Body.Bytes(), &artifact); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if artifact.ID == "" {
		t.Fatalf("expected artifact id in response")
	}
	if artifact.ArtifactType != "File" {
		t.Fatalf("expected canonical type File, got %q", artifact.ArtifactType)
	}
	if artifact.AnalysisStatus != AnalysisPending {
		t.Fatalf("expected pending status, got %q", artifact.AnalysisStatus)
	}
}

func TestRegisterArtifactRouteRejectsUnknownType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, _ := setupArtifactRouter(t, &staticOracle{})

	resp := postJSON(t, router, "/api/v1/artifacts", "user-1", map[string]string{
		"name":          "payment handler",
		"artifact_type": "Blueprint",
		"location":      "https://example.com/payment.go",
	})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAnalyzeRouteReturnsAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := serveSource(t, http.StatusOK, "package main")
	o := &staticOracle{response: `{"summary": "ok", "structured_analysis": {}}`}
	router, repo := setupArtifactRouter(t, o)
	seedArtifact(t, repo, "artifact-1", "user-1", server.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artifacts/artifact-1/analyze", nil)
	authorize(t, req, "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		ArtifactID string `json:"artifact_id"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ArtifactID != "artifact-1" {
		t.Fatalf("expected artifact-1, got %q", body.ArtifactID)
	}
	if body.Message == "" {
		t.Fatalf("expected scheduling message")
	}

	waitForStatus(t, repo, "artifact-1", AnalysisCompleted)
}

func TestAnalyzeRouteMasksForeignArtifacts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, repo := setupArtifactRouter(t, &staticOracle{})
	seedArtifact(t, repo, "artifact-1", "user-2", "https://example.com/main.go")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artifacts/artifact-1/analyze", nil)
	authorize(t, req, "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDeleteArtifactRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, repo := setupArtifactRouter(t, &staticOracle{})
	seedArtifact(t, repo, "artifact-1", "user-1", "https://example.com/main.go")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/artifacts/artifact-1", nil)
	authorize(t, req, "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}
	if _, err := repo.GetByID(context.Background(), "artifact-1"); err == nil {
		t.Fatalf("expected artifact gone")
	}
}

func TestListArtifactsRouteScopesToOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, repo := setupArtifactRouter(t, &staticOracle{})
	now := time.Now().UTC()
	for i, spec := range []struct{ id, owner string }{
		{"artifact-1", "user-1"},
		{"artifact-2", "user-2"},
		{"artifact-3", "user-1"},
	} {
		artifact := Artifact{
			ID:             spec.id,
			OwnerID:        spec.owner,
			Name:           spec.id,
			ArtifactType:   "File",
			Location:       "https://example.com/" + spec.id,
			AnalysisStatus: AnalysisPending,
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(context.Background(), artifact); err != nil {
			t.Fatalf("seed %s: %v", spec.id, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/artifacts", nil)
	authorize(t, req, "user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var artifacts []Artifact
	if err := json.Unmarshal(resp.Body.Bytes(), &artifacts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(artifacts))
	}
	if artifacts[0].ID != "artifact-3" {
		t.Fatalf("expected newest first, got %q", artifacts[0].ID)
	}
}
