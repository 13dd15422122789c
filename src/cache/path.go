package cache

import (
	"fmt"
	"path/filepath"
)

// TilePath maps a tile identity to its sharded location under base:
//
//	base/layer/zz/xxx/xxx/xxx/yyy/yyy/yyy.ext
//
// Each coordinate is split into millions, thousands and units so that no
// directory holds more than 1000 children for coordinates below 1e9.
// Larger coordinates widen the leading component rather than wrap.
func TilePath(base, layer string, z, x, y int, ext string) string {
	return filepath.Join(
		base,
		layer,
		fmt.Sprintf("%02d", z),
		fmt.Sprintf("%03d", x/1000000),
		fmt.Sprintf("%03d", x/1000%1000),
		fmt.Sprintf("%03d", x%1000),
		fmt.Sprintf("%03d", y/1000000),
		fmt.Sprintf("%03d", y/1000%1000),
		fmt.Sprintf("%03d.%s", y%1000, ext),
	)
}

func (cm *CacheManager) tilePath(tile Tile) string {
	z, x, y := tile.Coords()
	return TilePath(cm.config.BaseDir, tile.LayerName(), z, x, y, tile.Extension())
}

func (cm *CacheManager) lockPath(tile Tile) string {
	return cm.tilePath(tile) + lockSuffix
}
