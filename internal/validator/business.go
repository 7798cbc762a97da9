package validator

// BusinessRules is implemented by request types that carry rules struct tags
// cannot express (cross-field checks, wall-clock windows).
type BusinessRules interface {
	ValidateBusiness() ValidationErrors
}

// BusinessValidator runs the optional business-rule hook on request types.
type BusinessValidator struct{}

func NewBusinessValidator() *BusinessValidator {
	return &BusinessValidator{}
}

func (v *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if rules, ok := s.(BusinessRules); ok {
		return rules.ValidateBusiness()
	}
	return nil
}
