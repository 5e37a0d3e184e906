package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMultiObserver(t *testing.T) {
	a, b := newRecordingObserver(), newRecordingObserver()
	obs := MultiObserver(a, nil, b)

	obs.ObserveTransition(string(NodeStart), string(NodeClassify))
	obs.ObserveRun("completed", time.Millisecond)
	obs.ObserveGovernance("allow")
	obs.ObserveApproval("approved")
	obs.ObserveCheckpointWrite(time.Millisecond, errors.New("disk full"))
	obs.ObserveToolExecution("get_employee", "success", time.Millisecond)

	for _, o := range []*recordingObserver{a, b} {
		assert.Equal(t, 1, o.transitions)
		assert.Equal(t, 1, o.runs["completed"])
		assert.Equal(t, 1, o.verdicts["allow"])
		assert.Equal(t, 1, o.approvals["approved"])
		assert.Equal(t, 1, o.writeErrors)
		assert.Equal(t, 1, o.toolCount("get_employee"))
	}
}

func TestMultiObserver_Collapses(t *testing.T) {
	assert.IsType(t, nopObserver{}, MultiObserver())
	assert.IsType(t, nopObserver{}, MultiObserver(nil))

	single := newRecordingObserver()
	assert.Same(t, single, MultiObserver(nil, single))
}
