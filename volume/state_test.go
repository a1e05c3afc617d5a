package volume

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestCanTransitionAllowsDocumentedPath(t *testing.T) {
	assert.Equal(t, StateInitial.CanTransition(StateConfigured), true)
	assert.Equal(t, StateConfigured.CanTransition(StateBuilding), true)
	assert.Equal(t, StateBuilding.CanTransition(StateReady), true)
	assert.Equal(t, StateReady.CanTransition(StateTuning), true)
	assert.Equal(t, StateTuning.CanTransition(StateReady), true)
	assert.Equal(t, StateReady.CanTransition(StateUnlinked), true)
	assert.Equal(t, StateUnlinked.CanTransition(StateToDestroy), true)
	assert.Equal(t, StateToDestroy.CanTransition(StateDestroying), true)
	assert.Equal(t, StateDestroying.CanTransition(StateDestroyed), true)
}

func TestCanTransitionRejectsSkippingStates(t *testing.T) {
	assert.Equal(t, StateInitial.CanTransition(StateReady), false)
	assert.Equal(t, StateReady.CanTransition(StateDestroyed), false)
	assert.Equal(t, StateDestroyed.CanTransition(StateInitial), false)
}

func TestBuildingCanFailToUnready(t *testing.T) {
	assert.Equal(t, StateBuilding.CanTransition(StateUnready), true)
	assert.Equal(t, StateUnready.CanTransition(StateBuilding), true)
	assert.Equal(t, StateUnready.CanTransition(StateToDestroy), true)
}

func TestStateStringers(t *testing.T) {
	assert.Equal(t, StateReady.String(), "READY")
	assert.Equal(t, StateToDestroy.String(), "TO_DESTROY")
	assert.Equal(t, State(99).String(), "UNKNOWN")
}
