// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const cacheSysfsRoot = "/sys/devices/system/cpu/cpu0/cache"

var (
	cacheLineSizeOnce  sync.Once
	cacheLineSizeValue int
	cacheLineSizeMu    sync.Mutex
)

// CacheLineSize returns the largest data cache line size across levels
// 1-2 on the current host, falling back to the natural alignment of a
// float64 if probing fails. The value is read once per process and
// memoized; it is carried verbatim in the request header so a peer can
// reject a mismatched layout.
func CacheLineSize() int {
	cacheLineSizeMu.Lock()
	defer cacheLineSizeMu.Unlock()
	cacheLineSizeOnce.Do(func() {
		cacheLineSizeValue = probeCacheLineSize(log.NewNopLogger())
	})
	return cacheLineSizeValue
}

// WithCacheLineSizeForTesting overrides the memoized cache line size and
// returns a restore function, so tests can run with a cache line size
// other than the host's. The override is process-wide: an initiator and
// an acceptor in the same process both see the overridden value.
func WithCacheLineSizeForTesting(n int) (restore func()) {
	cacheLineSizeMu.Lock()
	prevOnce := cacheLineSizeOnce
	prevValue := cacheLineSizeValue
	cacheLineSizeOnce = sync.Once{}
	cacheLineSizeOnce.Do(func() { cacheLineSizeValue = n })
	cacheLineSizeMu.Unlock()

	return func() {
		cacheLineSizeMu.Lock()
		cacheLineSizeOnce = prevOnce
		cacheLineSizeValue = prevValue
		cacheLineSizeMu.Unlock()
	}
}

func probeCacheLineSize(logger log.Logger) int {
	fallback := int(unsafe.Alignof(float64(0)))

	best := 0
	for idx := 0; idx < 4; idx++ {
		cls, ok := readDataCacheLine(idx)
		if !ok {
			continue
		}
		if cls > best {
			best = cls
		}
	}

	if best == 0 {
		level.Debug(logger).Log("msg", "cache probe failed, using fallback alignment", "fallback", fallback)
		return fallback
	}

	level.Debug(logger).Log("msg", "resolved cache line size", "bytes", best)
	return best
}

// readDataCacheLine reads one /sys/devices/system/cpu/cpu0/cache/indexN
// entry and reports its coherency_line_size if it names a Data cache at
// level 1 or 2.
func readDataCacheLine(index int) (int, bool) {
	base := fmt.Sprintf("%s/index%d", cacheSysfsRoot, index)

	cacheType, err := readSysfsString(base + "/type")
	if err != nil || cacheType != "Data" {
		return 0, false
	}

	level, err := readSysfsInt(base + "/level")
	if err != nil || level > 2 {
		return 0, false
	}

	cls, err := readSysfsInt(base + "/coherency_line_size")
	if err != nil || cls <= 0 {
		return 0, false
	}

	return cls, true
}

func readSysfsString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readSysfsInt(path string) (int, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}
