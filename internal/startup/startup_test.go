package startup

import (
	"testing"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/match", nil).Methods("POST")
	r.HandleFunc("/api/get_image/{id}", nil).Methods("GET", "HEAD")
	r.HandleFunc("/healthz", nil)

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	want := []RouteInfo{
		{Method: "POST", Path: "/api/match"},
		{Method: "GET", Path: "/api/get_image/{id}"},
		{Method: "HEAD", Path: "/api/get_image/{id}"},
		{Method: "*", Path: "/healthz"},
	}
	if len(routes) != len(want) {
		t.Fatalf("GetRoutes() returned %d routes, want %d: %+v", len(routes), len(want), routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("route %d = %+v, want %+v", i, routes[i], want[i])
		}
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/match", "api/match"},
		{"/api/get_video/{path}", "api/get_video"},
		{"/healthz", "healthz"},
		{"/", ""},
		{"/api", "api"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getRouteGroup(tt.path); got != tt.want {
				t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://app:secret@db:5432/assets", "postgres://app:****@db:5432/assets"},
		{"postgres://app@db/assets", "postgres://app@db/assets"},
		{"host=db user=app", "host=db user=app"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnabledString(t *testing.T) {
	if enabledString(true) != "ENABLED" || enabledString(false) != "DISABLED" {
		t.Error("enabledString returned unexpected values")
	}
}
