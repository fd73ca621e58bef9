package variables

import "github.com/ocppsim/simulator/pkg/models"

// definition is one (component, variable, attributes) tuple installed by
// SeedDefaults.
type definition struct {
	component models.Component
	variable  models.Variable
	attrs     []models.VariableAttribute
}

// DefaultDefinitions returns the ChargingStation-component variables every
// 2.0.1 device model exposes out of the box (§4.6): the heartbeat/ping/
// message-timeout/meter-sampling intervals a CSMS reads on connect, plus
// the read-only per-message item limits mirroring this station's own
// Limits. A freshly launched station answers GetVariables for these without
// ever having been configured by the CSMS first.
func DefaultDefinitions(limits Limits) []definition {
	station := models.Component{Name: "ChargingStation"}
	itemsGet := itemsLimit(limits.ItemsPerMessageGetVariables, DefaultLimits.ItemsPerMessageGetVariables)
	itemsSet := itemsLimit(limits.ItemsPerMessageSetVariables, DefaultLimits.ItemsPerMessageSetVariables)

	return []definition{
		{
			component: station,
			variable:  models.Variable{Name: "HeartbeatInterval"},
			attrs: []models.VariableAttribute{{
				Type: models.AttributeActual, Value: "60",
				Mutability: models.MutabilityReadWrite, DataType: models.DataTypeInteger,
			}},
		},
		{
			component: station,
			variable:  models.Variable{Name: "WebSocketPingInterval"},
			attrs: []models.VariableAttribute{{
				Type: models.AttributeActual, Value: "30",
				Mutability: models.MutabilityReadWrite, DataType: models.DataTypeInteger,
			}},
		},
		{
			component: station,
			variable:  models.Variable{Name: "MessageTimeout"},
			attrs: []models.VariableAttribute{{
				Type: models.AttributeActual, Value: "30",
				Mutability: models.MutabilityReadWrite, RebootRequired: true, DataType: models.DataTypeInteger,
			}},
		},
		{
			component: station,
			variable:  models.Variable{Name: "TxUpdatedInterval"},
			attrs: []models.VariableAttribute{{
				Type: models.AttributeActual, Value: "60",
				Mutability: models.MutabilityReadWrite, DataType: models.DataTypeInteger,
			}},
		},
		{
			component: station,
			variable:  models.Variable{Name: "ItemsPerMessage", Instance: "GetVariables"},
			attrs: []models.VariableAttribute{{
				Type: models.AttributeActual, Value: itoa(itemsGet),
				Mutability: models.MutabilityReadOnly, DataType: models.DataTypeInteger,
			}},
		},
		{
			component: station,
			variable:  models.Variable{Name: "ItemsPerMessage", Instance: "SetVariables"},
			attrs: []models.VariableAttribute{{
				Type: models.AttributeActual, Value: itoa(itemsSet),
				Mutability: models.MutabilityReadOnly, DataType: models.DataTypeInteger,
			}},
		},
	}
}

// SeedDefaults installs DefaultDefinitions into the registry. Call once per
// station build, before the registry is handed off to a Manager.
func (r *Registry) SeedDefaults(limits Limits) {
	for _, d := range DefaultDefinitions(limits) {
		r.Define(d.component, d.variable, d.attrs)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
