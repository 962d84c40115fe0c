package contract

// PropertyGenerator extracts a job property from an artifact with an XPath query.
type PropertyGenerator struct {
	Name   string `yaml:"name" json:"name"`
	Source string `yaml:"source" json:"source"`
	XPath  string `yaml:"xpath" json:"xpath"`
}

func (p PropertyGenerator) Location(parent string) string {
	return childLocation(parent, "Property (%s)", orUnknown(p.Name, unknownName))
}

func (p PropertyGenerator) Validate(errs *ErrorCollection, parent string) {
	location := p.Location(parent)
	errs.CheckMissing(location, "name", p.Name)
	errs.CheckMissing(location, "source", p.Source)
	errs.CheckMissing(location, "xpath", p.XPath)
}
