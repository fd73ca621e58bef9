package meter

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleRejectsNonPositivePowerDivider(t *testing.T) {
	_, _, err := Sample(Params{MaxPower: 22000, PowerDivider: 0}, 0, time.Minute, nil)
	require.Error(t, err)
	var target *ErrInvalidPowerDivider
	assert.ErrorAs(t, err, &target)
}

func TestSampleDefaultsToEnergyMeasurand(t *testing.T) {
	mv, newEnergy, err := Sample(Params{MaxPower: 7200, PowerDivider: 1}, 0, time.Hour, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, mv.SampledValue, 1)
	assert.Equal(t, string(MeasurandEnergyActiveImportRegister), mv.SampledValue[0].Measurand)
	assert.InDelta(t, 7200, newEnergy, 0.5)
}

func TestSampleEnergyAccumulatesAcrossTicks(t *testing.T) {
	p := Params{MaxPower: 3600, PowerDivider: 1}
	_, e1, err := Sample(p, 0, time.Hour, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, e2, err := Sample(p, e1, time.Hour, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Greater(t, e2, e1)
}

func TestSampleVoltageSinglePhaseWithinTenPercent(t *testing.T) {
	p := Params{MaxPower: 7200, PowerDivider: 1, NominalVoltage: 230, NumberOfPhases: 1, MeasurandList: []string{string(MeasurandVoltage)}}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		mv, _, err := Sample(p, 0, time.Minute, rng)
		require.NoError(t, err)
		require.Len(t, mv.SampledValue, 1)
		v := mv.SampledValue[0]
		assert.Empty(t, v.Phase)
		var f float64
		_, scanErr := fmt.Sscan(v.Value, &f)
		require.NoError(t, scanErr)
		assert.GreaterOrEqual(t, f, 230*0.9)
		assert.LessOrEqual(t, f, 230*1.1)
	}
}

func TestSampleVoltageThreePhaseTagsLN(t *testing.T) {
	p := Params{MaxPower: 11000, PowerDivider: 1, NominalVoltage: 230, NumberOfPhases: 3, MeasurandList: []string{string(MeasurandVoltage)}}
	mv, _, err := Sample(p, 0, time.Minute, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Len(t, mv.SampledValue, 3)
	assert.Equal(t, "L1-N", mv.SampledValue[0].Phase)
	assert.Equal(t, "L2-N", mv.SampledValue[1].Phase)
	assert.Equal(t, "L3-N", mv.SampledValue[2].Phase)
}

func TestSamplePowerThreePhaseSumsToTotal(t *testing.T) {
	p := Params{MaxPower: 11000, PowerDivider: 1, NumberOfPhases: 3, MeasurandList: []string{string(MeasurandPowerActiveImport)}}
	mv, _, err := Sample(p, 0, time.Hour, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, mv.SampledValue, 3)
	var sum float64
	for _, sv := range mv.SampledValue {
		var f float64
		_, err := fmt.Sscan(sv.Value, &f)
		require.NoError(t, err)
		sum += f
		assert.NotEmpty(t, sv.Phase)
	}
	assert.InDelta(t, 11000, sum, 5)
}

func TestSampleStateOfChargeClampedTo100(t *testing.T) {
	soc := 150
	p := Params{MaxPower: 7200, PowerDivider: 1, MeasurandList: []string{string(MeasurandStateOfCharge)}, StateOfCharge: &soc}
	mv, _, err := Sample(p, 0, time.Minute, nil)
	require.NoError(t, err)
	require.Len(t, mv.SampledValue, 1)
	assert.Equal(t, "100", mv.SampledValue[0].Value)
}

func TestSampleStateOfChargeOmittedWhenNotConfigured(t *testing.T) {
	p := Params{MaxPower: 7200, PowerDivider: 1, MeasurandList: []string{string(MeasurandStateOfCharge)}}
	mv, _, err := Sample(p, 0, time.Minute, nil)
	require.NoError(t, err)
	assert.Empty(t, mv.SampledValue)
}
