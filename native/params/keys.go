package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
)

const (
	// ModuleMarketplace gates every state-mutating marketplace operation.
	ModuleMarketplace = "marketplace"
)
