package enums

import "fmt"

// GatewayEnvironment selects the Efí credential/endpoint set for a tenant.
type GatewayEnvironment string

const (
	GatewayEnvironmentHomologacao GatewayEnvironment = "homologacao"
	GatewayEnvironmentProducao    GatewayEnvironment = "producao"
)

var validGatewayEnvironments = []GatewayEnvironment{
	GatewayEnvironmentHomologacao,
	GatewayEnvironmentProducao,
}

// String implements fmt.Stringer.
func (e GatewayEnvironment) String() string {
	return string(e)
}

// IsValid reports whether the value is known.
func (e GatewayEnvironment) IsValid() bool {
	for _, candidate := range validGatewayEnvironments {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseGatewayEnvironment converts raw input into a GatewayEnvironment.
func ParseGatewayEnvironment(value string) (GatewayEnvironment, error) {
	for _, candidate := range validGatewayEnvironments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway environment %q", value)
}
