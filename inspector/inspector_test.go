package inspector

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paraxVM/pevm/mvtypes"
)

func TestUnionTwoNoOverlap(t *testing.T) {
	a := rect{x0: 0, y0: 0, x1: 1, y1: 1}
	b := rect{x0: 2, y0: 2, x1: 3, y1: 3}
	u := unionTwo(a, b)
	require.Equal(t, rect{x0: 0, y0: 0, x1: 3, y1: 3}, u)
}

func TestUnionAllMultipleRects(t *testing.T) {
	rects := []rect{
		{x0: 0, y0: 0, x1: 1, y1: 1},
		{x0: 1, y0: 1, x1: 3, y1: 3},
		{x0: -1, y0: -1, x1: 0.5, y1: 0.5},
	}
	u := unionAll(rects)
	require.Equal(t, rect{x0: -1, y0: -1, x1: 3, y1: 3}, u)
}

func TestRecordAndMeasure(t *testing.T) {
	ins := New()
	created := time.Now()

	ins.Measure(0, Task{Kind: TaskExecution, Version: mvtypes.TxVersion{TxIdx: 0}}, func() {
		time.Sleep(time.Millisecond)
	})
	ins.Record(1, Task{Kind: TaskValidation, Version: mvtypes.TxVersion{TxIdx: 1}}, created, time.Now())

	svg := ins.ToSVG(created, time.Now())
	require.True(t, strings.HasPrefix(svg, "<svg"))
	require.Contains(t, svg, "<rect")
	require.Contains(t, svg, "Execution(tx#0@0)")
	require.Contains(t, svg, "Validation(tx#1@0)")
}

func TestClearRemovesPriorEvents(t *testing.T) {
	ins := New()
	ins.Record(0, Task{Kind: TaskExecution}, time.Now(), time.Now())
	ins.Clear()

	svg := ins.ToSVG(time.Now(), time.Now())
	require.NotContains(t, svg, "Execution")
}
