package tracker

import (
	"math"

	"github.com/tarkov-map/tracker/pkg/core"
)

// minDeterminant guards the innovation covariance inversion.
const minDeterminant = 1e-9

// kalman is a constant velocity filter over (x, y, vx, vy) with a 4x4
// row-major covariance.
type kalman struct {
	X, Y   float64
	VX, VY float64
	P      [16]float64
}

func newKalman(p core.Point, measurementNoise float64) kalman {
	return kalman{
		X: p.X,
		Y: p.Y,
		P: [16]float64{
			measurementNoise, 0, 0, 0,
			0, measurementNoise, 0, 0,
			0, 0, 100, 0,
			0, 0, 0, 100,
		},
	}
}

func (k *kalman) position() core.Point { return core.Point{X: k.X, Y: k.Y} }

func (k *kalman) velocity() core.Point { return core.Point{X: k.VX, Y: k.VY} }

// predict advances the state by dt seconds.
func (k *kalman) predict(dt float64, cfg Config) {
	if maxDt := cfg.MaxPredictDt.Seconds(); maxDt > 0 && dt > maxDt {
		dt = maxDt
	}
	if dt <= 0 {
		return
	}

	k.X += k.VX * dt
	k.Y += k.VY * dt

	// P' = F * P * F^T + Q
	P := k.P
	var FP [16]float64
	for j := 0; j < 4; j++ {
		FP[0*4+j] = P[0*4+j] + dt*P[2*4+j]
		FP[1*4+j] = P[1*4+j] + dt*P[3*4+j]
		FP[2*4+j] = P[2*4+j]
		FP[3*4+j] = P[3*4+j]
	}
	for i := 0; i < 4; i++ {
		k.P[i*4+0] = FP[i*4+0] + dt*FP[i*4+2]
		k.P[i*4+1] = FP[i*4+1] + dt*FP[i*4+3]
		k.P[i*4+2] = FP[i*4+2]
		k.P[i*4+3] = FP[i*4+3]
	}

	k.P[0*4+0] += cfg.ProcessNoisePos * dt
	k.P[1*4+1] += cfg.ProcessNoisePos * dt
	k.P[2*4+2] += cfg.ProcessNoiseVel * dt
	k.P[3*4+3] += cfg.ProcessNoiseVel * dt

	if cfg.MaxCovarianceDiag > 0 {
		for i := 0; i < 4; i++ {
			if k.P[i*4+i] > cfg.MaxCovarianceDiag {
				k.P[i*4+i] = cfg.MaxCovarianceDiag
			}
		}
	}
}

// update folds a position measurement into the state. Returns false when
// the innovation covariance is singular and the measurement was skipped.
func (k *kalman) update(z core.Point, cfg Config) bool {
	yX := z.X - k.X
	yY := z.Y - k.Y

	S00 := k.P[0*4+0] + cfg.MeasurementNoise
	S01 := k.P[0*4+1]
	S10 := k.P[1*4+0]
	S11 := k.P[1*4+1] + cfg.MeasurementNoise

	det := S00*S11 - S01*S10
	if det < minDeterminant {
		return false
	}
	invS00 := S11 / det
	invS01 := -S01 / det
	invS10 := -S10 / det
	invS11 := S00 / det

	var K [8]float64
	for i := 0; i < 4; i++ {
		K[i*2+0] = k.P[i*4+0]*invS00 + k.P[i*4+1]*invS10
		K[i*2+1] = k.P[i*4+0]*invS01 + k.P[i*4+1]*invS11
	}

	k.X += K[0]*yX + K[1]*yY
	k.Y += K[2]*yX + K[3]*yY
	k.VX += K[4]*yX + K[5]*yY
	k.VY += K[6]*yX + K[7]*yY

	// P' = (I - K*H) * P, H selects the position rows.
	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for m := 0; m < 4; m++ {
				var ikh float64
				if i == m {
					ikh = 1
				}
				if m < 2 {
					ikh -= K[i*2+m]
				}
				sum += ikh * k.P[m*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	k.P = newP
	return true
}

// clampVelocity scales the velocity so its magnitude stays within maxSpeed.
func (k *kalman) clampVelocity(maxSpeed float64) {
	speed := math.Hypot(k.VX, k.VY)
	if maxSpeed > 0 && speed > maxSpeed {
		scale := maxSpeed / speed
		k.VX *= scale
		k.VY *= scale
	}
}

func (k *kalman) isFinite() bool {
	for _, v := range []float64{k.X, k.Y, k.VX, k.VY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for i := 0; i < 4; i++ {
		v := k.P[i*4+i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
