package secrets

import "github.com/Strob0t/AgentFleet/internal/config"

// Keys served by ConfigLoader.
const (
	KeyMCPAPIKey = "mcp.api_key"
)

// ConfigLoader re-reads the YAML file at path (with environment overrides)
// and extracts the rotatable credentials.
func ConfigLoader(path string) Loader {
	return func() (map[string]string, error) {
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			KeyMCPAPIKey: cfg.MCP.APIKey,
		}, nil
	}
}
