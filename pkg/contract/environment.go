package contract

import "fmt"

type EnvironmentVariable struct {
	Name           string `yaml:"name" json:"name"`
	Value          string `yaml:"value,omitempty" json:"value,omitempty"`
	EncryptedValue string `yaml:"encrypted_value,omitempty" json:"encrypted_value,omitempty"`
}

func (v EnvironmentVariable) Location(parent string) string {
	return childLocation(parent, "Environment variable (%s)", orUnknown(v.Name, unknownName))
}

func (v EnvironmentVariable) Validate(errs *ErrorCollection, parent string) {
	location := v.Location(parent)
	errs.CheckMissing(location, "name", v.Name)
	if v.Value != "" && v.EncryptedValue != "" {
		errs.AddError(location, "Environment variable cannot have both 'value' and 'encrypted_value' set.")
	}
}

// ValidateNameUniqueness claims the variable's name in names. It returns an
// error message when the name was already claimed, otherwise "".
func (v EnvironmentVariable) ValidateNameUniqueness(names NameSet) string {
	if !names.claim(v.Name) {
		return fmt.Sprintf("Environment variable %s defined more than once", v.Name)
	}
	return ""
}
