package enums

import "fmt"

// IntegrationType names an external integration a tenant may configure.
// Messaging integrations exist in the product; only PIX is wired into the
// billing core.
type IntegrationType string

const (
	IntegrationTypePix      IntegrationType = "pix"
	IntegrationTypeEmail    IntegrationType = "email"
	IntegrationTypeWhatsApp IntegrationType = "whatsapp"
)

var validIntegrationTypes = []IntegrationType{
	IntegrationTypePix,
	IntegrationTypeEmail,
	IntegrationTypeWhatsApp,
}

// String implements fmt.Stringer.
func (t IntegrationType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t IntegrationType) IsValid() bool {
	for _, candidate := range validIntegrationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseIntegrationType converts raw input into an IntegrationType.
func ParseIntegrationType(value string) (IntegrationType, error) {
	for _, candidate := range validIntegrationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid integration type %q", value)
}
