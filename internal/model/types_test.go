package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, KindInvalidParameter, ErrorKind(fmt.Errorf("%w: dt", ErrInvalidParameter)))
	assert.Equal(t, KindNumericalInstability, ErrorKind(fmt.Errorf("wrap: %w", fmt.Errorf("%w: dt", ErrNumericalInstability))))
	assert.Equal(t, KindInternal, ErrorKind(errors.New("boom")))
	assert.Equal(t, KindInternal, ErrorKind(context.Canceled))
}

func TestNewChannelAxionAngle(t *testing.T) {
	ch := NewChannel(3)
	assert.Equal(t, 3, ch.Chern)
	assert.InDelta(t, 6*math.Pi, ch.AxionAngle, 1e-12)
	assert.Zero(t, ch.Amplitude)
}

func TestFieldTraceTime(t *testing.T) {
	tr := FieldTrace{Dt: 0.25, Amplitude: make([]float64, 5)}
	assert.Equal(t, 5, tr.Len())
	assert.Equal(t, 1.0, tr.Time(4))
}

func TestMismatchMatrixCell(t *testing.T) {
	accuracy := 0.75
	m := MismatchMatrix{Cells: []MismatchCell{{TxChern: 1, RxChern: 2, MeanAccuracy: &accuracy}}}
	cell, ok := m.Cell(1, 2)
	assert.True(t, ok)
	assert.Equal(t, 0.75, *cell.MeanAccuracy)
	_, ok = m.Cell(2, 1)
	assert.False(t, ok)
}

func TestLeaderboardRowMatched(t *testing.T) {
	assert.True(t, LeaderboardRow{TxChern: 2, RxChern: 2}.Matched())
	assert.False(t, LeaderboardRow{TxChern: 2, RxChern: 1}.Matched())
}
