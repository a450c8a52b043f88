package gateway

// Stage is a step of one gateway call:
//
//	Start -> IdentityResolved -> TenantResolved -> Authorized -> Executed
//
// Denied is terminal and is entered from TenantResolved (validator denial)
// or Authorized (a returned row failed re-validation). Unauthenticated
// callers and resolution failures are denied before TenantResolved.
type Stage string

const (
	StageStart            Stage = "start"
	StageIdentityResolved Stage = "identity_resolved"
	StageTenantResolved   Stage = "tenant_resolved"
	StageAuthorized       Stage = "authorized"
	StageExecuted         Stage = "executed"
	StageDenied           Stage = "denied"
)

func (s Stage) String() string { return string(s) }

type trail struct {
	stages []Stage
}

func newTrail() *trail {
	return &trail{stages: []Stage{StageStart}}
}

func (t *trail) advance(s Stage) {
	t.stages = append(t.stages, s)
}

func (t *trail) current() Stage {
	return t.stages[len(t.stages)-1]
}

func (t *trail) snapshot() []Stage {
	return append([]Stage(nil), t.stages...)
}
