package main

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"unsafe"

	"tilecache/src/api"
	"tilecache/src/cache"
	"tilecache/src/config"
)

// C library interface, built with -buildmode=c-shared. Every function
// returns 1 for success and 0 for failure unless noted.

func cTile(layer *C.char, z, x, y C.int, ext *C.char) *cache.TileRef {
	return &cache.TileRef{
		Layer: C.GoString(layer),
		Ext:   C.GoString(ext),
		Z:     int(z),
		X:     int(x),
		Y:     int(y),
	}
}

func cBool(ok bool) C.int {
	if ok {
		return 1
	}
	return 0
}

//export Init
func Init(configPath *C.char) C.int {
	cfg, err := config.LoadFile(C.GoString(configPath))
	if err != nil {
		return 0
	}
	cacheConfig, err := cfg.CacheConfig(nil)
	if err != nil {
		return 0
	}
	return cBool(api.Init(cacheConfig))
}

// Get returns a malloc'd buffer the caller releases with FreeMem, or
// NULL on a miss. A zero-byte tile is a non-NULL buffer with length 0.
//
//export Get
func Get(layer *C.char, z, x, y C.int, ext *C.char, resultLen *C.int) *C.char {
	result := api.Get(cTile(layer, z, x, y, ext))
	if result == nil {
		*resultLen = 0
		return nil
	}

	*resultLen = C.int(len(result))
	if len(result) == 0 {
		// malloc(0) may return NULL
		return (*C.char)(C.malloc(1))
	}
	return (*C.char)(C.CBytes(result))
}

//export Set
func Set(layer *C.char, z, x, y C.int, ext *C.char, content *C.char, contentLen C.int) C.int {
	contentBytes := C.GoBytes(unsafe.Pointer(content), contentLen)
	return cBool(api.Set(cTile(layer, z, x, y, ext), contentBytes))
}

//export Delete
func Delete(layer *C.char, z, x, y C.int, ext *C.char) C.int {
	return cBool(api.Delete(cTile(layer, z, x, y, ext)))
}

// Lock returns 1 when the lock was taken and 0 when another producer
// holds it.
//
//export Lock
func Lock(layer *C.char, z, x, y C.int, ext *C.char) C.int {
	return cBool(api.Lock(cTile(layer, z, x, y, ext)))
}

//export Unlock
func Unlock(layer *C.char, z, x, y C.int, ext *C.char) C.int {
	return cBool(api.Unlock(cTile(layer, z, x, y, ext)))
}

//export Close
func Close() C.int {
	return cBool(api.Close())
}

//export FreeMem
func FreeMem(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}
