package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus summarizes the pipeline as seen from the read side.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`

	// ActiveDegradationFlags name the ways the data being served is
	// reduced, e.g. "stale-cache" or "single-source".
	ActiveDegradationFlags []string `json:"activeDegradationFlags,omitempty"`
}

// Degradation flags.
const (
	DegradationStaleCache   = "stale-cache"
	DegradationNoCache      = "no-cache"
	DegradationSingleSource = "single-source"
	DegradationNoNarrative  = "no-narrative"
)

// SubsystemStatus is the status of one internal dependency.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus is the circuit state of one upstream provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
