package authchain

import "github.com/ocppsim/simulator/pkg/models"

// IsValidIdentifier enforces the per-version length caps (§3, §8 invariant
// 5): [1,20] for 1.6, [1,36] for 2.0.1.
func IsValidIdentifier(id models.UnifiedIdentifier, version models.OCPPVersion) bool {
	return id.IsValid(version)
}

// OCPP20IdTokenEnumType mirrors the 2.0.1 wire enumeration for IdToken.type.
type OCPP20IdTokenEnumType string

const (
	IdTokenCentral    OCPP20IdTokenEnumType = "Central"
	IdTokeneMAID      OCPP20IdTokenEnumType = "eMAID"
	IdTokenISO14443   OCPP20IdTokenEnumType = "ISO14443"
	IdTokenISO15693   OCPP20IdTokenEnumType = "ISO15693"
	IdTokenKeyCode    OCPP20IdTokenEnumType = "KeyCode"
	IdTokenLocal      OCPP20IdTokenEnumType = "Local"
	IdTokenMacAddress OCPP20IdTokenEnumType = "MacAddress"
	IdTokenNoAuth     OCPP20IdTokenEnumType = "NoAuthorization"
)

// ToOCPP20 maps a UnifiedIdentifier.Type to the 2.0.1 wire enum (§4.5).
func ToOCPP20(t models.IdentifierType) OCPP20IdTokenEnumType {
	switch t {
	case models.IdentifierCentral:
		return IdTokenCentral
	case models.IdentifierLocal, models.IdentifierIDTag:
		return IdTokenLocal
	case models.IdentifierISO14443:
		return IdTokenISO14443
	case models.IdentifierISO15693:
		return IdTokenISO15693
	case models.IdentifierKeyCode:
		return IdTokenKeyCode
	case models.IdentifierEMAID:
		return IdTokeneMAID
	case models.IdentifierMACAddress:
		return IdTokenMacAddress
	case models.IdentifierNoAuth:
		return IdTokenNoAuth
	default:
		return IdTokenLocal
	}
}

// FromOCPP20 maps the 2.0.1 wire enum back to a UnifiedIdentifier.Type.
func FromOCPP20(t OCPP20IdTokenEnumType) models.IdentifierType {
	switch t {
	case IdTokenCentral:
		return models.IdentifierCentral
	case IdTokeneMAID:
		return models.IdentifierEMAID
	case IdTokenISO14443:
		return models.IdentifierISO14443
	case IdTokenISO15693:
		return models.IdentifierISO15693
	case IdTokenKeyCode:
		return models.IdentifierKeyCode
	case IdTokenMacAddress:
		return models.IdentifierMACAddress
	case IdTokenNoAuth:
		return models.IdentifierNoAuth
	case IdTokenLocal:
		return models.IdentifierLocal
	default:
		return models.IdentifierIDTag
	}
}

// ToOCPP16 maps a UnifiedIdentifier to a plain 1.6 idTag string — 1.6 has
// no typed IdToken, so this is a value-only projection.
func ToOCPP16(id models.UnifiedIdentifier) string {
	return id.Value
}

// FromOCPP16 wraps a plain 1.6 idTag string as a UnifiedIdentifier.
func FromOCPP16(idTag string) models.UnifiedIdentifier {
	return models.UnifiedIdentifier{
		Type:        models.IdentifierIDTag,
		Value:       idTag,
		OCPPVersion: models.OCPPVersion16,
	}
}
