package splatter

// Update implements Device: advances age and recomputes the fade opacity
// for every slot. Dead slots are cheap no-ops. Position, rotation, and
// velocity are deliberately not integrated; paint is static once placed.
func (d *SoftwareDevice) Update(dt float32) error {
	fadeStart := d.cfg.Particles.FadeStart
	d.shard(len(d.particles), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			updateParticle(&d.particles[i], dt, fadeStart)
		}
	})
	return nil
}

// updateParticle applies the fade curve: fully opaque for the first
// fadeStart of the lifetime, then a cubic ease-out to zero. Strokes stay
// solid while fresh and visibly age out under newer paint. Near-invisible
// particles are force-killed so cull can reclaim them a frame early.
func updateParticle(p *Particle, dt, fadeStart float32) {
	if !p.Alive() {
		return
	}
	p.Age += dt

	alpha := float32(1)
	normalizedAge := p.Age / p.MaxLifetime
	if normalizedAge >= fadeStart {
		fadeProgress := (normalizedAge - fadeStart) / (1 - fadeStart)
		alpha = 1 - fadeProgress*fadeProgress*fadeProgress
	}
	if alpha < killAlphaThreshold {
		p.Age = p.MaxLifetime
		alpha = 0
	}
	p.Color[3] = clamp01(alpha)
}
