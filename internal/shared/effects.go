package shared

// EffectStatus reports the outcome of a dependent side effect.
type EffectStatus string

const (
	EffectSucceeded EffectStatus = "SUCCEEDED"
	EffectFailed    EffectStatus = "FAILED"
)

// DependentEffect is the outcome of a best-effort side effect attached to a
// primary operation. A failed effect never fails the primary operation.
type DependentEffect struct {
	Name   string       `json:"name"`
	Status EffectStatus `json:"status"`
	Ref    string       `json:"ref,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Failed reports whether the effect did not complete.
func (e DependentEffect) Failed() bool {
	return e.Status == EffectFailed
}

// EffectRecorder observes dependent effect outcomes, typically as metrics.
type EffectRecorder interface {
	ObserveEffect(effect DependentEffect)
}
