package coolfhir

import (
	"strings"

	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// FormatHumanName renders a name as shown to patients: its text, else the given names followed by the family name.
func FormatHumanName(name fhir.HumanName) string {
	if name.Text != nil && strings.TrimSpace(*name.Text) != "" {
		return *name.Text
	}
	var parts []string
	parts = append(parts, name.Given...)
	if name.Family != nil {
		parts = append(parts, *name.Family)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
