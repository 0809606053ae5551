package scene

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/locus/backend/internal/model/scene"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(scene.NewMemoryStore(scene.Seed())).RegisterRoutes(r)
	return r
}

func TestListScenes(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/scenes", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var scenes []scene.Scene
	if err := json.NewDecoder(resp.Body).Decode(&scenes); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(scenes) != len(scene.Seed()) {
		t.Fatalf("expected %d scenes, got %d", len(scene.Seed()), len(scenes))
	}
	if scenes[0].ID != scene.DefaultID || scenes[0].Locked {
		t.Fatalf("cafe must be first and unlocked: %+v", scenes[0])
	}
}

func TestGetSceneNotFound(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/scenes/moon", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
