package volume

// DefaultBackends constructs one instance of every backend named in
// spec.md §2.6, keyed by BackendType, for wiring into a Manager.
func DefaultBackends() map[BackendType]Backend {
	return map[BackendType]Backend{
		BackendPlain:     NewPlainBackend(),
		BackendBind:      BindBackend{},
		BackendLoop:      NewLoopBackend(),
		BackendOverlay:   OverlayBackend{},
		BackendTmpfs:     NewTmpfsBackend(),
		BackendHugetmpfs: NewHugetmpfsBackend(),
		BackendQuota:     &QuotaBackend{},
		BackendRBD:       NewRBDBackend(),
		BackendLVM:       NewLVMBackend(),
	}
}
