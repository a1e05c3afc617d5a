package volume

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ctlcore/supervisor/internal/ctlerr"
)

func TestPlaceBudgetClaimAndRelease(t *testing.T) {
	b := &placeBudget{totalFree: 100}

	assert.NilError(t, b.claim(40, 10))
	assert.Equal(t, b.claimed, int64(40))
	assert.Equal(t, b.guaranteeTotal, int64(10))

	b.release(40, 10)
	assert.Equal(t, b.claimed, int64(0))
	assert.Equal(t, b.guaranteeTotal, int64(0))
}

func TestPlaceBudgetClaimRejectsGuaranteeViolation(t *testing.T) {
	b := &placeBudget{totalFree: 100}
	assert.NilError(t, b.claim(50, 50))

	err := b.claim(40, 20)
	assert.Equal(t, ctlerr.IsNoSpace(err), true)
}

func TestPlaceBudgetClaimRejectsExceedingFreeSpace(t *testing.T) {
	b := &placeBudget{totalFree: 100}
	assert.NilError(t, b.claim(60, 0))

	err := b.claim(60, 0)
	assert.Equal(t, ctlerr.IsNoSpace(err), true)
	assert.Equal(t, b.claimed, int64(60))
}

func TestPlaceBudgetReleaseNeverGoesNegative(t *testing.T) {
	b := &placeBudget{totalFree: 100}
	b.release(10, 10)
	assert.Equal(t, b.claimed, int64(0))
	assert.Equal(t, b.guaranteeTotal, int64(0))
}
