package handlers

import (
	"reflect"
	"strings"
	"sync"

	"campussnap/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators teaches gin's validator the catalog tags and makes
// errors report json field names. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		v.RegisterValidation("department", func(fl validator.FieldLevel) bool {
			return models.IsDepartment(fl.Field().String())
		})
		v.RegisterValidation("year", func(fl validator.FieldLevel) bool {
			return models.IsYear(fl.Field().String())
		})
	})
}
