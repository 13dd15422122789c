package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTilePath(t *testing.T) {
	tests := []struct {
		name    string
		layer   string
		z, x, y int
		ext     string
		want    string
	}{
		{"origin", "basic", 0, 0, 0, "png", "basic/00/000/000/000/000/000/000.png"},
		{"scenario", "osm", 3, 1234567, 890123, "png", "osm/03/001/234/567/000/890/123.png"},
		{"two digit zoom", "sat", 17, 65535, 43210, "jpeg", "sat/17/000/065/535/000/043/210.jpeg"},
		{"wide high component", "osm", 30, 1073741823, 5, "png", "osm/30/1073/741/823/000/000/005.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TilePath("/cache", tt.layer, tt.z, tt.x, tt.y, tt.ext)
			assert.Equal(t, filepath.Join("/cache", tt.want), got)
		})
	}
}

func TestTilePathDeterministic(t *testing.T) {
	a := TilePath("/cache", "osm", 12, 2047, 1362, "png")
	b := TilePath("/cache", "osm", 12, 2047, 1362, "png")
	assert.Equal(t, a, b)
}

func TestTilePathInjective(t *testing.T) {
	coords := []int{0, 1, 999, 1000, 1001, 999999, 1000000, 1000001, 123456789, 999999999}
	seen := make(map[string][3]int)
	for _, z := range []int{0, 9, 18} {
		for _, x := range coords {
			for _, y := range coords {
				p := TilePath("/cache", "osm", z, x, y, "png")
				if prev, dup := seen[p]; dup {
					t.Fatalf("path %s produced by %v and %v", p, prev, [3]int{z, x, y})
				}
				seen[p] = [3]int{z, x, y}
			}
		}
	}
	assert.NotEqual(t,
		TilePath("/cache", "osm", 1, 1, 1, "png"),
		TilePath("/cache", "osm", 1, 1, 1, "jpg"))
	assert.NotEqual(t,
		TilePath("/cache", "osm", 1, 1, 1, "png"),
		TilePath("/cache", "sat", 1, 1, 1, "png"))
}

func TestUnixAccess(t *testing.T) {
	dir := t.TempDir()
	var access UnixAccess
	assert.True(t, access.CanRead(dir))
	assert.True(t, access.CanWrite(dir))
	assert.False(t, access.CanRead(filepath.Join(dir, "missing")))
}
