package validator

import (
	"reflect"
	"strings"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator is the main validator instance that combines all validation types
type Validator struct {
	structValidator   *validator.Validate
	businessValidator *BusinessValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:   structValidator,
		businessValidator: NewBusinessValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if verrs := ToValidationErrors(err); len(verrs) > 0 {
			return verrs
		}
		return err
	}
	return nil
}

// ValidateBusiness validates business rules only
func (v *Validator) ValidateBusiness(s interface{}) ValidationErrors {
	return v.businessValidator.Validate(s)
}

// Validate performs complete validation (struct + business rules)
func (v *Validator) Validate(s interface{}) error {
	// First validate struct tags
	if err := v.ValidateStruct(s); err != nil {
		return err
	}

	// Then validate business rules
	if errors := v.ValidateBusiness(s); len(errors) > 0 {
		return errors
	}

	return nil
}

// Business returns the business validator
func (v *Validator) Business() *BusinessValidator {
	return v.businessValidator
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("attempt_status", validateAttemptStatus)
	validate.RegisterValidation("proctor_mode", validateProctorMode)
	validate.RegisterValidation("proctor_event_type", validateProctorEventType)
	validate.RegisterValidation("proctor_decision_status", validateProctorDecisionStatus)
	validate.RegisterValidation("incident_status", validateIncidentStatus)
	validate.RegisterValidation("incident_severity", validateIncidentSeverity)
	validate.RegisterValidation("incident_source", validateIncidentSource)
	validate.RegisterValidation("case_outcome", validateCaseOutcome)
	validate.RegisterValidation("appeal_status", validateAppealStatus)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validation functions

func validateAttemptStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.AttemptStatus{
		models.AttemptStarted,
		models.AttemptInProgress,
		models.AttemptPaused,
		models.AttemptResumed,
		models.AttemptSubmitted,
		models.AttemptExpired,
		models.AttemptCancelled,
		models.AttemptForceSubmitted,
		models.AttemptTerminated,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}

func validateProctorMode(fl validator.FieldLevel) bool {
	validModes := []models.ProctorMode{
		models.ProctorModeSoft,
		models.ProctorModeAdvanced,
	}

	value := fl.Field().String()
	for _, validMode := range validModes {
		if string(validMode) == value {
			return true
		}
	}
	return false
}

func validateProctorEventType(fl validator.FieldLevel) bool {
	validTypes := []models.ProctorEventType{
		models.EventTabSwitch,
		models.EventWindowBlur,
		models.EventFullscreenExit,
		models.EventMultipleFaces,
		models.EventNoFace,
		models.EventSuspiciousObject,
		models.EventAudioDetection,
		models.EventRightClick,
		models.EventCopyPaste,
		models.EventScreenshot,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

func validateProctorDecisionStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.ProctorDecisionStatus{
		models.DecisionPending,
		models.DecisionCleared,
		models.DecisionSuspicious,
		models.DecisionInvalidated,
		models.DecisionEscalated,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}

func validateIncidentStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.IncidentStatus{
		models.IncidentOpen,
		models.IncidentInReview,
		models.IncidentResolved,
		models.IncidentClosed,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}

func validateIncidentSeverity(fl validator.FieldLevel) bool {
	validSeverities := []models.IncidentSeverity{
		models.SeverityLow,
		models.SeverityMedium,
		models.SeverityHigh,
		models.SeverityCritical,
	}

	value := fl.Field().String()
	for _, validSeverity := range validSeverities {
		if string(validSeverity) == value {
			return true
		}
	}
	return false
}

func validateIncidentSource(fl validator.FieldLevel) bool {
	validSources := []models.IncidentSource{
		models.SourceProctorAuto,
		models.SourceManualReport,
		models.SourceSystemRule,
	}

	value := fl.Field().String()
	for _, validSource := range validSources {
		if string(validSource) == value {
			return true
		}
	}
	return false
}

func validateCaseOutcome(fl validator.FieldLevel) bool {
	validOutcomes := []models.CaseOutcome{
		models.OutcomeCleared,
		models.OutcomeSuspicious,
		models.OutcomeInvalidated,
		models.OutcomeEscalated,
	}

	value := fl.Field().String()
	for _, validOutcome := range validOutcomes {
		if string(validOutcome) == value {
			return true
		}
	}
	return false
}

func validateAppealStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.AppealStatus{
		models.AppealSubmitted,
		models.AppealInReview,
		models.AppealApproved,
		models.AppealRejected,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}
