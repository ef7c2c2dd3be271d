package splatter

// Cull implements Device: resets the frame-scoped alive counter, counts
// live slots, and returns newly dead slots to the freelist. A dead slot can
// be revisited on every subsequent frame, so the push is guarded by the
// InFreelist flag; without it the same slot would enter the freelist twice
// and the store's conservation invariant would break.
func (d *SoftwareDevice) Cull() error {
	d.alive.Store(0)
	d.shard(len(d.particles), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			p := &d.particles[i]
			if p.Alive() {
				d.alive.Add(1)
				continue
			}
			if p.InFreelist == 0 {
				p.Age = p.MaxLifetime
				p.Color[3] = 0
				p.InFreelist = 1
				d.freelist.Free(uint32(i))
			}
		}
	})
	return nil
}
