// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc_test

import (
	"testing"

	"code.hybscloud.com/rtipc"
)

func TestCacheLineSizePositive(t *testing.T) {
	if n := rtipc.CacheLineSize(); n <= 0 {
		t.Fatalf("CacheLineSize: got %d, want > 0", n)
	}
}

func TestWithCacheLineSizeForTestingOverridesAndRestores(t *testing.T) {
	before := rtipc.CacheLineSize()

	restore := rtipc.WithCacheLineSizeForTesting(128)
	if got := rtipc.CacheLineSize(); got != 128 {
		t.Fatalf("CacheLineSize after override: got %d, want 128", got)
	}
	restore()

	if got := rtipc.CacheLineSize(); got != before {
		t.Fatalf("CacheLineSize after restore: got %d, want %d", got, before)
	}
}
