package splatter

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func liveParticle(age, maxLifetime float32) Particle {
	return Particle{
		Color:       mgl32.Vec4{0.5, 0.5, 0.5, 1},
		Age:         age,
		MaxLifetime: maxLifetime,
	}
}

func TestFadeCurve(t *testing.T) {
	const fadeStart = 0.6
	cases := []struct {
		name      string
		ageAfter  float32 // age the particle reaches after one update
		wantAlpha float32
	}{
		{"fresh", 1.0, 1.0},
		{"fade boundary", 6.0, 1.0},
		{"half faded", 8.0, 0.875}, // 1 - 0.5^3
		{"deep fade", 9.0, 1 - 0.75*0.75*0.75},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := liveParticle(tc.ageAfter-0.1, 10)
			updateParticle(&p, 0.1, fadeStart)
			if math.Abs(float64(p.Color[3]-tc.wantAlpha)) > 1e-4 {
				t.Errorf("alpha at age %.2f = %.5f, want %.5f", tc.ageAfter, p.Color[3], tc.wantAlpha)
			}
		})
	}
}

func TestFadeForceKillsNearInvisible(t *testing.T) {
	// At age 9.98 of a 10s lifetime the cubic fade is below the kill
	// threshold; the particle must die before its nominal lifetime.
	p := liveParticle(9.88, 10)
	updateParticle(&p, 0.1, 0.6)
	if p.Age != p.MaxLifetime {
		t.Errorf("age = %v, want forced to maxLifetime %v", p.Age, p.MaxLifetime)
	}
	if p.Color[3] != 0 {
		t.Errorf("alpha = %v, want 0", p.Color[3])
	}
	if p.Alive() {
		t.Error("force-killed particle still reports alive")
	}
}

func TestUpdateSkipsDeadSlots(t *testing.T) {
	p := deadParticle()
	before := p
	updateParticle(&p, 0.5, 0.6)
	if p != before {
		t.Errorf("dead slot mutated by update: %+v", p)
	}
}

func TestUpdateDoesNotMoveParticles(t *testing.T) {
	p := liveParticle(1, 10)
	p.Position = mgl32.Vec3{100, 200, 0}
	p.Velocity = mgl32.Vec3{5, 5, 0} // never integrated
	updateParticle(&p, 0.1, 0.6)
	if p.Position != (mgl32.Vec3{100, 200, 0}) {
		t.Errorf("paint deposit moved to %v", p.Position)
	}
}

func TestUpdateAlphaClamped(t *testing.T) {
	p := liveParticle(0.1, 10)
	updateParticle(&p, 0.05, 0.6)
	if p.Color[3] < 0 || p.Color[3] > 1 {
		t.Errorf("alpha %v out of [0,1]", p.Color[3])
	}
}
