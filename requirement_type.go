package core

// RequirementType selects which weight columns a health computation uses.
// Initial gates new risk-increasing actions, Maintenance gates forced
// liquidation, Equity applies weight 1 to both sides.
type RequirementType uint8

const (
	Initial RequirementType = iota
	Maintenance
	Equity
)

func (rt RequirementType) String() string {
	switch rt {
	case Initial:
		return "Initial"
	case Maintenance:
		return "Maintenance"
	case Equity:
		return "Equity"
	default:
		return "Unknown"
	}
}
