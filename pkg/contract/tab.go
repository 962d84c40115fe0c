package contract

// Tab is a custom tab shown on the job details page, backed by an artifact path.
type Tab struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

func (t Tab) Location(parent string) string {
	return childLocation(parent, "Tab (%s)", orUnknown(t.Name, unknownName))
}

func (t Tab) Validate(errs *ErrorCollection, parent string) {
	location := t.Location(parent)
	errs.CheckMissing(location, "name", t.Name)
	errs.CheckMissing(location, "path", t.Path)
}
