package server

import (
	"github.com/go-playground/validator/v10"
	"github.com/stardustagi/gptshell/libs/errors"
)

// CustomValidator 适配 echo.Validator
type CustomValidator struct {
	Validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.Validator.Struct(i); err != nil {
		return errors.Wrap(errors.KindValidation, err, "invalid request")
	}
	return nil
}
