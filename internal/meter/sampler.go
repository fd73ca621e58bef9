// Package meter implements the Meter-Value Sampler (§4.4): synthesizes
// MeterValue/SampledValue entries for an active transaction on each sample
// tick.
package meter

import (
	"fmt"
	"math/rand"
	"time"
)

// Measurand is an OCPP SampledValue.measurand value.
type Measurand string

const (
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandVoltage                    Measurand = "Voltage"
	MeasurandPowerActiveImport           Measurand = "Power.Active.Import"
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandStateOfCharge               Measurand = "SoC"
)

// SampledValue is one (value, measurand, unit, phase) tuple within a
// MeterValue.
type SampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand"`
	Unit      string `json:"unit,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

// MeterValue is one sample tick's worth of SampledValue entries.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// Params bounds a sample to the connector/station configuration it belongs
// to (§4.4).
type Params struct {
	MaxPower       float64
	NominalVoltage float64
	NumberOfPhases int
	PowerDivider   int
	MeasurandList  []string
	StateOfCharge  *int // nil when V2G/SoC reporting is not configured
}

// ErrInvalidPowerDivider is returned when PowerDivider <= 0: the caller MUST
// NOT emit a meter value for this tick (§4.4 "do NOT emit corrupt meter
// values").
type ErrInvalidPowerDivider struct{ PowerDivider int }

func (e *ErrInvalidPowerDivider) Error() string {
	return fmt.Sprintf("invalid powerDivider %d: meter value sample skipped", e.PowerDivider)
}

// Sample synthesizes one MeterValue for a tick of the given interval,
// accumulating energy into energyRegisterWh (returned updated) and emitting
// samples per the configured measurand list (§4.4): voltage is drawn at
// random, power and current are derived from the tick's energy delta, and
// SoC is the clamped Params.StateOfCharge.
func Sample(p Params, energyRegisterWh float64, interval time.Duration, rng *rand.Rand) (*MeterValue, float64, error) {
	if p.PowerDivider <= 0 {
		return nil, energyRegisterWh, &ErrInvalidPowerDivider{PowerDivider: p.PowerDivider}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	measurands := p.MeasurandList
	if len(measurands) == 0 {
		measurands = []string{string(MeasurandEnergyActiveImportRegister)}
	}

	seconds := interval.Seconds()
	deltaWh := p.MaxPower / (float64(p.PowerDivider) * 3600) * seconds
	newEnergy := energyRegisterWh + deltaWh

	mv := &MeterValue{Timestamp: time.Now()}
	for _, m := range measurands {
		switch Measurand(m) {
		case MeasurandEnergyActiveImportRegister:
			mv.SampledValue = append(mv.SampledValue, SampledValue{
				Value: fmt.Sprintf("%.2f", newEnergy), Measurand: m, Unit: "Wh",
			})
		case MeasurandVoltage:
			mv.SampledValue = append(mv.SampledValue, voltageSamples(p, rng)...)
		case MeasurandPowerActiveImport:
			mv.SampledValue = append(mv.SampledValue, powerSamples(p, deltaWh, seconds)...)
		case MeasurandCurrentImport:
			mv.SampledValue = append(mv.SampledValue, currentSamples(p, deltaWh, seconds)...)
		case MeasurandStateOfCharge:
			if p.StateOfCharge != nil {
				soc := clamp(*p.StateOfCharge, 0, 100)
				mv.SampledValue = append(mv.SampledValue, SampledValue{
					Value: fmt.Sprintf("%d", soc), Measurand: m, Unit: "Percent",
				})
			}
		default:
			mv.SampledValue = append(mv.SampledValue, SampledValue{
				Value: fmt.Sprintf("%.2f", newEnergy), Measurand: m, Unit: "Wh",
			})
		}
	}
	return mv, newEnergy, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// voltageSamples draws within ±10% of nominal voltage, per-phase for
// 3-phase stations with L-N (or L-L above 250V) tagging (§4.4).
func voltageSamples(p Params, rng *rand.Rand) []SampledValue {
	nominal := p.NominalVoltage
	if nominal <= 0 {
		nominal = 230
	}
	jitter := func() float64 {
		return nominal * (0.9 + 0.2*rng.Float64())
	}

	if p.NumberOfPhases <= 1 {
		return []SampledValue{{Value: fmt.Sprintf("%.1f", jitter()), Measurand: string(MeasurandVoltage), Unit: "V"}}
	}

	out := make([]SampledValue, 0, p.NumberOfPhases)
	for i := 1; i <= p.NumberOfPhases; i++ {
		phase := fmt.Sprintf("L%d-N", i)
		if nominal > 250 {
			phase = fmt.Sprintf("L%d-L%d", i, i%p.NumberOfPhases+1)
		}
		out = append(out, SampledValue{Value: fmt.Sprintf("%.1f", jitter()), Measurand: string(MeasurandVoltage), Unit: "V", Phase: phase})
	}
	return out
}

// powerSamples scales the all-phases wattage by phase count, with per-phase
// entries summing (within rounding tolerance) to the all-phase total
// (§4.4).
func powerSamples(p Params, deltaWh float64, seconds float64) []SampledValue {
	totalW := 0.0
	if seconds > 0 {
		totalW = deltaWh * 3600 / seconds
	}
	phases := p.NumberOfPhases
	if phases <= 1 {
		return []SampledValue{{Value: fmt.Sprintf("%.1f", totalW), Measurand: string(MeasurandPowerActiveImport), Unit: "W"}}
	}
	perPhase := totalW / float64(phases)
	out := make([]SampledValue, 0, phases)
	for i := 1; i <= phases; i++ {
		out = append(out, SampledValue{
			Value: fmt.Sprintf("%.1f", perPhase), Measurand: string(MeasurandPowerActiveImport), Unit: "W",
			Phase: fmt.Sprintf("L%d", i),
		})
	}
	return out
}

func currentSamples(p Params, deltaWh float64, seconds float64) []SampledValue {
	totalW := 0.0
	if seconds > 0 {
		totalW = deltaWh * 3600 / seconds
	}
	voltage := p.NominalVoltage
	if voltage <= 0 {
		voltage = 230
	}
	phases := p.NumberOfPhases
	if phases <= 1 {
		amps := totalW / voltage
		return []SampledValue{{Value: fmt.Sprintf("%.2f", amps), Measurand: string(MeasurandCurrentImport), Unit: "A"}}
	}
	perPhaseW := totalW / float64(phases)
	out := make([]SampledValue, 0, phases)
	for i := 1; i <= phases; i++ {
		amps := perPhaseW / voltage
		out = append(out, SampledValue{
			Value: fmt.Sprintf("%.2f", amps), Measurand: string(MeasurandCurrentImport), Unit: "A",
			Phase: fmt.Sprintf("L%d", i),
		})
	}
	return out
}
