package domain

// Team is static reference data describing a responder group.
type Team struct {
	ID             int64
	Name           string
	ContactEmail   string
	ContactPhone   string
	Specialization string
}

// TeamNames lists the teams the classifier may route a defect to.
var TeamNames = []string{"Maintenance", "Quality Control", "Safety", "Production", "Engineering"}

// KnownTeam reports whether name is one of the routable teams.
func KnownTeam(name string) bool {
	for _, team := range TeamNames {
		if team == name {
			return true
		}
	}
	return false
}
