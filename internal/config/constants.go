package config

// Application constants shared across the research binaries
const (
	AppName    = "commodities-research"
	AppVersion = "1.2.0"

	// API endpoints
	APIBasePath        = "/api"
	DatasetsEndpoint   = "/api/datasets"
	OperationsEndpoint = "/api/operations"
	HealthEndpoint     = "/api/health"
	MetricsEndpoint    = "/metrics"
	WebSocketEndpoint  = "/ws"
)
