package audio

// Ducking volume targets per classification
const (
	VolumeFull         = 1.00
	VolumeBackchannel  = 0.80
	VolumeTentative    = 0.50
	VolumeInterruption = 0.20
)

// Ducker maps overlap classifications to a playback volume target and
// rate-limits transitions so volume changes are not audible steps.
type Ducker struct {
	current float64
	target  float64
	maxStep float64
}

// NewDucker creates a ducker at full volume
func NewDucker(maxStep float64) *Ducker {
	if maxStep <= 0 {
		maxStep = 0.05
	}
	return &Ducker{current: VolumeFull, target: VolumeFull, maxStep: maxStep}
}

// Observe updates the volume target from the latest classification.
// A clear interruption ducks hard; an ambiguous (low-confidence) one only
// ducks to the tentative level until the picture firms up.
func (d *Ducker) Observe(c Classification) {
	switch c.Label {
	case LabelBackchannel:
		d.target = VolumeBackchannel
	case LabelInterruption:
		if c.Confidence >= 0.7 {
			d.target = VolumeInterruption
		} else {
			d.target = VolumeTentative
		}
	default:
		d.target = VolumeFull
	}
}

// Release restores the full-volume target (no overlapping audio)
func (d *Ducker) Release() {
	d.target = VolumeFull
}

// Tick advances the current volume one rate-limited step toward the target
// and returns the new value. Called once per evaluation tick.
func (d *Ducker) Tick() float64 {
	diff := d.target - d.current
	if diff > d.maxStep {
		diff = d.maxStep
	} else if diff < -d.maxStep {
		diff = -d.maxStep
	}
	d.current += diff
	return d.current
}

// Current returns the present volume without advancing
func (d *Ducker) Current() float64 { return d.current }

// Target returns the present volume target
func (d *Ducker) Target() float64 { return d.target }
