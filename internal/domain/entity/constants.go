package entity

// Actor constants for TransitionHistory
const (
	ActorSystem    = "system"
	ActorScheduler = "scheduler"
)

// Workflow definition identifiers of the built-in compliance workflows
const (
	DefinitionAuthorization = "authorization"
	DefinitionIncident      = "incident"
)
