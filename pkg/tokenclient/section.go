package tokenclient

import (
	"reflect"
	"strings"
)

// DefaultSectionName is the configuration section shared by every token source.
// Values found there are inherited by each source's own section.
const DefaultSectionName = "TokenService"

const (
	errMissingSectionName = "Name cannot be null, empty, or whitespace. Please provide a valid section name."
	errInvalidSectionName = "Invalid section name TokenService. Use a different section name."
)

// SectionNamer lets an options type declare its configuration section.
// Only the type itself is consulted, a struct embedding it does not inherit the name.
type SectionNamer interface {
	SectionName() string
}

// ValidateSectionName rejects blank names and the reserved DefaultSectionName.
func ValidateSectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ConfigError{Field: "sectionName", Value: name, Message: errMissingSectionName}
	}
	if strings.EqualFold(name, DefaultSectionName) {
		return &ConfigError{Field: "sectionName", Value: name, Message: errInvalidSectionName}
	}
	return nil
}

// SectionNameFor resolves the section of T: its own SectionName method when declared, else the type name.
func SectionNameFor[T OptionsProvider]() (string, error) {
	t := optionsType[T]()
	namer, ok := any(newOptions[T]()).(SectionNamer)
	if !ok {
		return t.Name(), nil
	}

	name := namer.SectionName()
	if t == reflect.TypeFor[DefaultOptions]() {
		return name, nil
	}
	if promotedSectionName(t, name) {
		return t.Name(), nil
	}
	if err := ValidateSectionName(name); err != nil {
		return "", err
	}
	return name, nil
}

// promotedSectionName reports whether name comes from an embedded field rather than t itself.
func promotedSectionName(t reflect.Type, name string) bool {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() != reflect.Struct {
			continue
		}
		if namer, ok := reflect.New(ft).Interface().(SectionNamer); ok && namer.SectionName() == name {
			return true
		}
	}
	return false
}

// optionsType returns the struct type behind T.
func optionsType[T OptionsProvider]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// TypeName is the package qualified name of T used to derive cache and statistics keys.
func TypeName[T OptionsProvider]() string {
	t := optionsType[T]()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// newOptions allocates a zero T. T must be a pointer to a struct.
func newOptions[T OptionsProvider]() T {
	var zero T
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Pointer {
		return zero
	}
	return reflect.New(t.Elem()).Interface().(T)
}
