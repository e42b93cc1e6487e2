package gamification

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/gurudigital/pelangi/core"
)

var (
	xpSourceTag  = "xpsource"
	xpSourceText = "invalid XP source"

	attendanceStatusTag  = "attendance_status"
	attendanceStatusText = "status must be one of present, late or absent"
)

// InitValidators registers the gamification validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(xpSourceTag, xpSourceValidation)
	core.RegisterCustomTranslation(validate, translator, xpSourceTag, xpSourceText)

	_ = validate.RegisterValidation(attendanceStatusTag, attendanceStatusValidation)
	core.RegisterCustomTranslation(validate, translator, attendanceStatusTag, attendanceStatusText)
}

func xpSourceValidation(fl validator.FieldLevel) bool {
	src := fl.Field().String()
	for _, s := range Sources {
		if src == s {
			return true
		}
	}
	return false
}

func attendanceStatusValidation(fl validator.FieldLevel) bool {
	switch AttendanceStatus(fl.Field().String()) {
	case AttendancePresent, AttendanceLate, AttendanceAbsent:
		return true
	}
	return false
}
