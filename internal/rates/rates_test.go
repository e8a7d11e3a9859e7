package rates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTensor(t *testing.T) {
	tn := New([]string{"1", "2"}, []string{"U235", "U238"}, []string{"fission", "(n,gamma)"})

	assert.Equal(t, 2, tn.NumNuc())
	assert.Equal(t, 2, tn.NumReact())
	assert.Equal(t, 1, tn.MatIndex["2"])
	assert.Equal(t, 1, tn.ReactIndex["(n,gamma)"])

	tn.Set(1, 0, 1, 3.5)
	assert.Equal(t, 3.5, tn.At(1, 0, 1))
	assert.Zero(t, tn.At(0, 0, 1))

	tn.Scale(2.0)
	assert.Equal(t, 7.0, tn.At(1, 0, 1))

	tn.Zero()
	assert.Zero(t, tn.At(1, 0, 1))
}

func TestSetRow(t *testing.T) {
	tn := New([]string{"1", "2"}, []string{"U235"}, []string{"fission", "(n,gamma)"})
	tn.SetRow(1, []float64{1.0, 2.0})
	assert.Equal(t, 1.0, tn.At(1, 0, 0))
	assert.Equal(t, 2.0, tn.At(1, 0, 1))
	assert.Zero(t, tn.At(0, 0, 0), "other rows untouched")
}
