package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cfilipov/containerdeck/internal/tool"
)

const defaultStatePath = "/tmp/containerdeck-mock/state.yaml"

// mockState is everything the fake CLI remembers between invocations.
type mockState struct {
	Running bool         `yaml:"running"`
	NextIP  int          `yaml:"nextIP"`
	Units   []tool.Unit  `yaml:"units"`
	Images  []tool.Image `yaml:"images"`
}

func seedState() *mockState {
	return &mockState{
		Running: true,
		NextIP:  4,
		Units: []tool.Unit{
			{ID: "web", Image: "docker.io/library/nginx:latest", OS: "linux", Arch: "arm64", State: tool.StateRunning, Addr: "192.168.64.2"},
			{ID: "cache", Image: "docker.io/library/redis:7", OS: "linux", Arch: "arm64", State: tool.StateRunning, Addr: "192.168.64.3"},
			{ID: "db", Image: "docker.io/library/postgres:16", OS: "linux", Arch: "arm64", State: tool.StateStopped},
		},
		Images: []tool.Image{
			{Name: "docker.io/library/nginx", Tag: "latest", Digest: "sha256:4f5a7b2c9d1e8f3a6b0c7d2e9f1a4b8c5d6e7f8091a2b3c4d5e6f708192a3b4c"},
			{Name: "docker.io/library/redis", Tag: "7", Digest: "sha256:1b2c3d4e5f60718293a4b5c6d7e8f90112233445566778899aabbccddeeff00"},
			{Name: "docker.io/library/postgres", Tag: "16", Digest: "sha256:aa11bb22cc33dd44ee55ff6677889900aabbccddeeff00112233445566778899"},
			{Name: "docker.io/library/alpine", Tag: "3.20", Digest: "sha256:9e8d7c6b5a4f3e2d1c0b9a8f7e6d5c4b3a29180706f5e4d3c2b1a09f8e7d6c5b"},
		},
	}
}

// statePath resolves MOCK_CONTAINER_STATE or the default.
func statePath() string {
	if p := os.Getenv("MOCK_CONTAINER_STATE"); p != "" {
		return p
	}
	return defaultStatePath
}

// loadState reads path, seeding it on first use.
func loadState(path string) (*mockState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		st := seedState()
		return st, saveState(path, st)
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st mockState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return &st, nil
}

func saveState(path string, st *mockState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, path)
}

func (st *mockState) unit(id string) *tool.Unit {
	for i := range st.Units {
		if st.Units[i].ID == id {
			return &st.Units[i]
		}
	}
	return nil
}

func (st *mockState) nextAddr() string {
	ip := st.NextIP
	if ip < 2 {
		ip = 2
	}
	st.NextIP = ip + 1
	return fmt.Sprintf("192.168.64.%d", ip)
}

// imageInUse reports whether any unit was created from img.
func (st *mockState) imageInUse(img tool.Image) bool {
	ref := img.Reference()
	for _, u := range st.Units {
		if u.Image == ref {
			return true
		}
	}
	return false
}
