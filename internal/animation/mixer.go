package animation

// Mixer is a controller's shared timeline: every action on it advances with
// the same dt and contributes to the blended pose by its weight.
type Mixer struct {
	actions []*Action
	time    float32
}

func NewMixer() *Mixer {
	return &Mixer{}
}

func (m *Mixer) Add(a *Action) {
	if m.Contains(a) {
		return
	}
	m.actions = append(m.actions, a)
}

func (m *Mixer) Remove(a *Action) {
	for i, x := range m.actions {
		if x == a {
			m.actions = append(m.actions[:i], m.actions[i+1:]...)
			return
		}
	}
}

func (m *Mixer) Contains(a *Action) bool {
	for _, x := range m.actions {
		if x == a {
			return true
		}
	}
	return false
}

func (m *Mixer) Actions() []*Action {
	result := make([]*Action, len(m.actions))
	copy(result, m.actions)
	return result
}

// Time is the total time the mixer has been advanced.
func (m *Mixer) Time() float32 {
	return m.time
}

func (m *Mixer) Update(dt float32) {
	m.time += dt
	for _, a := range m.actions {
		a.step(dt)
	}
}

// Pose blends the current samples of all weighted actions.
func (m *Mixer) Pose() Pose {
	poses := make([]Pose, 0, len(m.actions))
	weights := make([]float32, 0, len(m.actions))
	for _, a := range m.actions {
		if a.weight <= 0 || a.clip == nil {
			continue
		}
		poses = append(poses, a.sample())
		weights = append(weights, a.weight)
	}
	if len(poses) == 0 {
		return Pose{}
	}
	return BlendPoses(poses, weights)
}
